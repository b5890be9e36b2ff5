package iam

import (
	"time"

	"github.com/tendant/identity-core/pkg/extension"
)

const (
	KindUser = "User"

	// FieldEmail is the indexed path of a user's email
	FieldEmail = "spec.email"

	// GhostUserName is the reserved name of the fallback identity
	GhostUserName = "ghost"

	// AnnotationRequestToUpdate records when role bindings were last reconciled
	AnnotationRequestToUpdate = "rbac.authorization.iam/request-to-update"
)

// User is an identity record
type User struct {
	Metadata extension.Metadata `json:"metadata"`
	Spec     UserSpec           `json:"spec"`
}

// UserSpec holds the user's profile and credentials. Password is always a
// hash once it leaves the hashing boundary; empty means no password is set.
type UserSpec struct {
	DisplayName   string     `json:"displayName,omitempty" validate:"max=253"`
	Avatar        string     `json:"avatar,omitempty"`
	Email         string     `json:"email,omitempty" validate:"omitempty,email"`
	EmailVerified bool       `json:"emailVerified,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Password      string     `json:"password,omitempty"`
	Bio           string     `json:"bio,omitempty"`
	RegisteredAt  *time.Time `json:"registeredAt,omitempty"`
	Disabled      bool       `json:"disabled,omitempty"`
}

func (u *User) Kind() string                     { return KindUser }
func (u *User) GetMetadata() *extension.Metadata { return &u.Metadata }

func (u *User) IndexedFields() map[string][]string {
	if u.Spec.Email == "" {
		return nil
	}
	return map[string][]string{FieldEmail: {u.Spec.Email}}
}

// HasPassword reports whether a password hash is set
func (u *User) HasPassword() bool {
	return u.Spec.Password != ""
}

// NewUser creates an unsaved user with the given name
func NewUser(name string, spec UserSpec) *User {
	return &User{Metadata: extension.Metadata{Name: name}, Spec: spec}
}

// GhostUser returns the built-in fallback identity used when neither the
// requested user nor a stored ghost record exists
func GhostUser() *User {
	return &User{
		Metadata: extension.Metadata{Name: GhostUserName},
		Spec: UserSpec{
			DisplayName: "Ghost",
			Email:       "ghost@identity.local",
			Bio:         "This user has been removed.",
		},
	}
}
