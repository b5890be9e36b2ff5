package iam

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	idmerrors "github.com/tendant/identity-core/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateUser checks the user's name and spec before creation
func validateUser(user *User) error {
	if err := validate.Var(user.Metadata.Name, "required,max=253"); err != nil {
		return invalidField("metadata.name", err)
	}
	if err := validate.Struct(user.Spec); err != nil {
		return invalidField("", err)
	}
	return nil
}

func invalidField(field string, err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		fe := errs[0]
		if field == "" {
			field = "spec." + fe.Field()
		}
		return idmerrors.InvalidInput(field, fmt.Sprintf("failed on the '%s' rule", fe.Tag())).
			WithDetail("rule", fe.Tag())
	}
	return idmerrors.Wrap(err, idmerrors.ErrCodeInvalidInput, "invalid user")
}
