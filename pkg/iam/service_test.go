package iam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	idmerrors "github.com/tendant/identity-core/pkg/errors"
	"github.com/tendant/identity-core/pkg/event"
	"github.com/tendant/identity-core/pkg/role"
	"github.com/tendant/identity-core/pkg/setting"
)

func TestGetUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createUser(t, "alice", UserSpec{Email: "alice@example.com"})

	user, err := f.svc.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Spec.Email)
	assert.Equal(t, int64(1), user.Metadata.Version)

	_, err = f.svc.GetUser(ctx, "nobody")
	require.Error(t, err)
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeUserNotFound))
	assert.Equal(t, "nobody", idmerrors.GetDetails(err)["name"])
	assert.Equal(t, idmerrors.ReasonUserNotFound, idmerrors.GetReason(err))
}

func TestGetUserOrGhost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createUser(t, "alice", UserSpec{})

	user, err := f.svc.GetUserOrGhost(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Metadata.Name)

	// No ghost record stored
	user, err = f.svc.GetUserOrGhost(ctx, "deleted")
	require.NoError(t, err)
	assert.Equal(t, GhostUser(), user)

	f.createUser(t, GhostUserName, UserSpec{DisplayName: "Deleted user"})
	user, err = f.svc.GetUserOrGhost(ctx, "deleted")
	require.NoError(t, err)
	assert.Equal(t, GhostUserName, user.Metadata.Name)
	assert.Equal(t, "Deleted user", user.Spec.DisplayName)
}

func TestListByEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, u := range []struct {
		name    string
		email   string
		created time.Time
	}{
		{"bob", "shared@example.com", t0.Add(time.Hour)},
		{"carol", "shared@example.com", t0.Add(2 * time.Hour)},
		{"alice", "shared@example.com", t0.Add(time.Hour)},
		{"dave", "other@example.com", t0.Add(3 * time.Hour)},
		{"erin", "", t0},
	} {
		user := NewUser(u.name, UserSpec{Email: u.email})
		user.Metadata.CreationTimestamp = u.created
		require.NoError(t, f.client.Create(ctx, user))
	}

	names := func() []string {
		var out []string
		for user, err := range f.svc.ListByEmail(ctx, "shared@example.com") {
			require.NoError(t, err)
			out = append(out, user.Metadata.Name)
		}
		return out
	}

	seq := names()
	assert.Equal(t, []string{"carol", "alice", "bob"}, seq)

	// Restartable, and later writes are visible to the next pass
	f.createUser(t, "frank", UserSpec{Email: "shared@example.com"})
	assert.Equal(t, []string{"frank", "carol", "alice", "bob"}, names())

	for range f.svc.ListByEmail(ctx, "nobody@example.com") {
		t.Fatal("expected no users")
	}
}

func TestUpdatePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createUser(t, "alice", UserSpec{})

	user, changed, err := f.svc.UpdatePassword(ctx, "alice", "pre-hashed-value")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "pre-hashed-value", user.Spec.Password)

	stored, err := f.svc.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "pre-hashed-value", stored.Spec.Password, "stored verbatim")

	_, changed, err = f.svc.UpdatePassword(ctx, "alice", "pre-hashed-value")
	require.NoError(t, err)
	assert.False(t, changed)

	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].(event.PasswordChangedEvent).Username)
	assert.Len(t, f.store.Ops("update User/alice"), 1)

	_, _, err = f.svc.UpdatePassword(ctx, "nobody", "x")
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeUserNotFound))
}

func TestUpdateWithRawPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createUser(t, "alice", UserSpec{})

	user, changed, err := f.svc.UpdateWithRawPassword(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NotEqual(t, "secret", user.Spec.Password)
	ok, err := f.encoder.Verify("secret", user.Spec.Password)
	require.NoError(t, err)
	assert.True(t, ok)

	// Same plaintext again is a no-op
	_, changed, err = f.svc.UpdateWithRawPassword(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, f.store.Ops("update User/alice"), 1)
	assert.Len(t, f.events.Events(), 1)

	_, changed, err = f.svc.UpdateWithRawPassword(ctx, "alice", "another")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, f.events.Events(), 2)

	_, _, err = f.svc.UpdateWithRawPassword(ctx, "alice", "")
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeInvalidInput))
}

func TestUpdateWithRawPassword_RehashesUnrecognizedValue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createUser(t, "alice", UserSpec{Password: "legacy"})

	user, changed, err := f.svc.UpdateWithRawPassword(ctx, "alice", "legacy")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NotEqual(t, "legacy", user.Spec.Password)

	ok, err := f.svc.ConfirmPassword(ctx, "alice", "legacy")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConfirmPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createUser(t, "open", UserSpec{})

	hash, err := f.svc.EncryptPassword("secret")
	require.NoError(t, err)
	f.createUser(t, "locked", UserSpec{Password: hash})
	blankHash, err := f.svc.EncryptPassword("   ")
	require.NoError(t, err)
	f.createUser(t, "blank", UserSpec{Password: blankHash})

	tests := []struct {
		name     string
		username string
		input    string
		want     bool
	}{
		{"no password confirms empty input", "open", "", true},
		{"no password confirms anything", "open", "whatever", true},
		{"empty input never confirms a set password", "locked", "", false},
		{"whitespace input never confirms a set password", "locked", "  ", false},
		{"whitespace input is not supplied even when it was hashed", "blank", "   ", false},
		{"wrong password", "locked", "guess", false},
		{"right password", "locked", "secret", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := f.svc.ConfirmPassword(ctx, tt.username, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	_, err = f.svc.ConfirmPassword(ctx, "nobody", "secret")
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeUserNotFound))
}

func TestEncryptPassword(t *testing.T) {
	f := newFixture(t, nil)

	hash, err := f.svc.EncryptPassword("secret")
	require.NoError(t, err)
	ok, err := f.encoder.Verify("secret", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.svc.EncryptPassword("")
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeInvalidInput))
	assert.Empty(t, f.store.Ops(""), "no store access")
}

func TestGrantRoles_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createRoles(t, "A", "B")
	f.createUser(t, "alice", UserSpec{})

	first, err := f.svc.GrantRoles(ctx, "alice", []string{"A", "B"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, f.boundRoles(t, "alice"))

	second, err := f.svc.GrantRoles(ctx, "alice", []string{"A", "B"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, f.boundRoles(t, "alice"))
	assert.Equal(t, int64(1), f.binding(t, "alice-A-binding").Metadata.Version)
	assert.Equal(t, int64(1), f.binding(t, "alice-B-binding").Metadata.Version)
	assert.Len(t, f.store.Ops("create RoleBinding"), 2)

	t1, err := time.Parse(time.RFC3339Nano, first.Metadata.Annotations[AnnotationRequestToUpdate])
	require.NoError(t, err)
	t2, err := time.Parse(time.RFC3339Nano, second.Metadata.Annotations[AnnotationRequestToUpdate])
	require.NoError(t, err)
	assert.True(t, t2.After(t1), "annotation advances")
}

func TestGrantRoles_ReplacesRoleSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createRoles(t, "A", "B", "C")
	f.createUser(t, "alice", UserSpec{})

	_, err := f.svc.GrantRoles(ctx, "alice", []string{"A", "B"})
	require.NoError(t, err)

	_, err = f.svc.GrantRoles(ctx, "alice", []string{"B", "C"})
	require.NoError(t, err)

	assert.Nil(t, f.binding(t, "alice-A-binding"))
	assert.Equal(t, int64(1), f.binding(t, "alice-B-binding").Metadata.Version, "untouched")
	assert.NotNil(t, f.binding(t, "alice-C-binding"))
	assert.ElementsMatch(t, []string{"B", "C"}, f.boundRoles(t, "alice"))
}

func TestGrantRoles_SharedBinding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createRoles(t, "A")
	f.createUser(t, "alice", UserSpec{})
	f.createUser(t, "bob", UserSpec{})

	shared := role.NewRoleBinding("alice", "A")
	shared.Subjects = append(shared.Subjects, role.UserSubject("bob"))
	require.NoError(t, f.client.Create(ctx, shared))

	_, err := f.svc.GrantRoles(ctx, "alice", nil)
	require.NoError(t, err)

	binding := f.binding(t, "alice-A-binding")
	require.NotNil(t, binding, "binding still serves bob")
	assert.Equal(t, []role.Subject{role.UserSubject("bob")}, binding.Subjects)
	assert.Empty(t, f.boundRoles(t, "alice"))

	// Granting A back to alice reuses the surviving binding
	_, err = f.svc.GrantRoles(ctx, "alice", []string{"A"})
	require.NoError(t, err)
	binding = f.binding(t, "alice-A-binding")
	assert.ElementsMatch(t, []role.Subject{role.UserSubject("bob"), role.UserSubject("alice")}, binding.Subjects)

	_, err = f.svc.GrantRoles(ctx, "alice", []string{})
	require.NoError(t, err)
	_, err = f.svc.GrantRoles(ctx, "bob", []string{})
	require.NoError(t, err)
	assert.Nil(t, f.binding(t, "alice-A-binding"), "empty binding is deleted")
}

func TestGrantRoles_CollidingBindingNames(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createRoles(t, "c", "b-c")
	f.createUser(t, "a-b", UserSpec{})
	f.createUser(t, "a", UserSpec{})

	// "a-b"+"c" and "a"+"b-c" share the plain binding name
	_, err := f.svc.GrantRoles(ctx, "a-b", []string{"c"})
	require.NoError(t, err)
	_, err = f.svc.GrantRoles(ctx, "a", []string{"b-c"})
	require.NoError(t, err)

	assert.Equal(t, []string{"b-c"}, f.boundRoles(t, "a"))
	assert.Equal(t, []string{"c"}, f.boundRoles(t, "a-b"))

	plain := f.binding(t, "a-b-c-binding")
	require.NotNil(t, plain)
	assert.Equal(t, "c", plain.RoleRef.Name)
	assert.Equal(t, []role.Subject{role.UserSubject("a-b")}, plain.Subjects)

	hashed := f.binding(t, role.BindingNames("a", "b-c")[1])
	require.NotNil(t, hashed)
	assert.Equal(t, "b-c", hashed.RoleRef.Name)
	assert.Equal(t, []role.Subject{role.UserSubject("a")}, hashed.Subjects)

	// Granting again is a no-op and revoking removes only a's binding
	_, err = f.svc.GrantRoles(ctx, "a", []string{"b-c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b-c"}, f.boundRoles(t, "a"))

	_, err = f.svc.GrantRoles(ctx, "a", nil)
	require.NoError(t, err)
	assert.Empty(t, f.boundRoles(t, "a"))
	assert.Nil(t, f.binding(t, role.BindingNames("a", "b-c")[1]))
	assert.Equal(t, []string{"c"}, f.boundRoles(t, "a-b"))
}

func TestGrantRoles_BindingNamesExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createUser(t, "a", UserSpec{})
	for _, name := range role.BindingNames("a", "b-c") {
		squatter := role.NewRoleBinding("x", "c")
		squatter.Metadata.Name = name
		require.NoError(t, f.client.Create(ctx, squatter))
	}

	_, err := f.svc.GrantRoles(ctx, "a", []string{"b-c"})
	require.Error(t, err)
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeDuplicateName))
	assert.Empty(t, f.boundRoles(t, "a"))
	assert.Empty(t, f.store.Ops("update User/a"), "user is not stamped")
}

func TestGrantRoles_UpdatesBeforeDeletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createRoles(t, "A", "B", "C")
	f.createUser(t, "alice", UserSpec{})

	shared := role.NewRoleBinding("alice", "A")
	shared.Subjects = append(shared.Subjects, role.UserSubject("bob"))
	require.NoError(t, f.client.Create(ctx, shared))
	require.NoError(t, f.client.Create(ctx, role.NewRoleBinding("alice", "B")))
	f.store.Reset()

	_, err := f.svc.GrantRoles(ctx, "alice", []string{"C"})
	require.NoError(t, err)

	var writes []string
	for _, op := range f.store.Ops("") {
		if !strings.HasPrefix(op, "get ") && !strings.HasPrefix(op, "list ") {
			writes = append(writes, op)
		}
	}
	assert.Equal(t, []string{
		"update RoleBinding/alice-A-binding",
		"delete RoleBinding/alice-B-binding",
		"create RoleBinding/alice-C-binding",
		"update User/alice",
	}, writes)
}

func TestGrantRoles_SkipsBlankAndDuplicateNames(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createRoles(t, "A")
	f.createUser(t, "alice", UserSpec{})

	_, err := f.svc.GrantRoles(ctx, "alice", []string{"", "A", "  ", "A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, f.boundRoles(t, "alice"))
	assert.Len(t, f.store.Ops("create RoleBinding"), 1)
}

func TestGrantRoles_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.svc.GrantRoles(ctx, "nobody", []string{"A"})
		assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeUserNotFound))
		assert.Empty(t, f.store.Ops("create"))
	})

	t.Run("conflict is not retried", func(t *testing.T) {
		f := newFixture(t, nil)
		f.createUser(t, "alice", UserSpec{})
		f.store.userUpdateConflicts = 1

		_, err := f.svc.GrantRoles(ctx, "alice", []string{"A"})
		require.Error(t, err)
		assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeConcurrentModification))
		assert.Len(t, f.store.Ops("update User/alice"), 1)
	})

	t.Run("failed creation does not stop the others", func(t *testing.T) {
		f := newFixture(t, nil)
		f.createUser(t, "alice", UserSpec{})
		f.store.createErrs["RoleBinding/alice-A-binding"] = errors.New("disk full")

		_, err := f.svc.GrantRoles(ctx, "alice", []string{"A", "B", "C"})
		require.Error(t, err)
		assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeInternal))
		assert.ElementsMatch(t, []string{"B", "C"}, f.boundRoles(t, "alice"))
		assert.Empty(t, f.store.Ops("update User/alice"), "user is not stamped")
	})
}

func TestSignUp_BlankPasswordTouchesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &setting.UserSetting{AllowRegistration: boolPtr(true), DefaultRole: "subscriber"})

	for _, pw := range []string{"", "   "} {
		_, err := f.svc.SignUp(ctx, NewUser("alice", UserSpec{}), pw)
		require.Error(t, err)
		assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeInvalidInput))
		assert.True(t, idmerrors.IsInvalidArgument(err))
	}
	assert.Empty(t, f.store.Ops(""))
	assert.Zero(t, f.settings.calls)
}

func TestSignUp_Policy(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		setting    *setting.UserSetting
		wantCode   idmerrors.ErrorCode
		wantReason string
	}{
		{"not configured", nil, idmerrors.ErrCodeInvalidInput, ""},
		{"registration disabled", &setting.UserSetting{AllowRegistration: boolPtr(false), DefaultRole: "subscriber"}, idmerrors.ErrCodeAccessDenied, idmerrors.ReasonSignUpDisabled},
		{"no default role", &setting.UserSetting{AllowRegistration: boolPtr(true)}, idmerrors.ErrCodeAccessDenied, idmerrors.ReasonSignUpDisabled},
		{"registration unset and no default role", &setting.UserSetting{}, idmerrors.ErrCodeAccessDenied, idmerrors.ReasonSignUpDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.setting)
			f.createRoles(t, "subscriber")
			f.store.Reset()

			_, err := f.svc.SignUp(ctx, NewUser("alice", UserSpec{}), "secret")
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, idmerrors.GetCode(err))
			assert.Equal(t, tt.wantReason, idmerrors.GetReason(err))
			assert.Empty(t, f.store.Ops("create"))
		})
	}

	t.Run("missing default role is told apart by its cause", func(t *testing.T) {
		f := newFixture(t, &setting.UserSetting{AllowRegistration: boolPtr(true)})
		_, err := f.svc.SignUp(ctx, NewUser("alice", UserSpec{}), "secret")
		assert.Equal(t, idmerrors.CauseNoDefaultRole, idmerrors.GetDetails(err)["cause"])

		f = newFixture(t, &setting.UserSetting{AllowRegistration: boolPtr(false), DefaultRole: "subscriber"})
		_, err = f.svc.SignUp(ctx, NewUser("alice", UserSpec{}), "secret")
		assert.Nil(t, idmerrors.GetDetails(err)["cause"])
	})
}

func TestSignUp_UnsetRegistrationFlagAllowsSignUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &setting.UserSetting{DefaultRole: "subscriber"})
	f.createRoles(t, "subscriber")

	user, err := f.svc.SignUp(ctx, NewUser("alice", UserSpec{}), "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Metadata.Name)
	assert.Equal(t, []string{"subscriber"}, f.boundRoles(t, "alice"))
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &setting.UserSetting{AllowRegistration: boolPtr(true), DefaultRole: "subscriber"})
	f.createRoles(t, "subscriber")

	user, err := f.svc.SignUp(ctx, NewUser("alice", UserSpec{Email: "alice@example.com"}), "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Metadata.Name)
	assert.Contains(t, user.Metadata.Annotations, AnnotationRequestToUpdate)

	stored, err := f.svc.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", stored.Spec.Password)
	require.NotNil(t, stored.Spec.RegisteredAt)

	ok, err := f.svc.ConfirmPassword(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.True(t, ok)

	binding := f.binding(t, role.BindingName("alice", "subscriber"))
	require.NotNil(t, binding)
	assert.Equal(t, "subscriber", binding.RoleRef.Name)
	assert.Equal(t, []role.Subject{role.UserSubject("alice")}, binding.Subjects)
	assert.Equal(t, 1, f.settings.calls)
}

func TestCreateUser_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createRoles(t, "A")

	tests := []struct {
		name      string
		user      *User
		roles     []string
		wantField string
	}{
		{"nil user", nil, []string{"A"}, "user"},
		{"nil roles", NewUser("alice", UserSpec{}), nil, "roles"},
		{"blank name", NewUser("", UserSpec{}), []string{"A"}, "metadata.name"},
		{"long name", NewUser(strings.Repeat("a", 254), UserSpec{}), []string{"A"}, "metadata.name"},
		{"bad email", NewUser("alice", UserSpec{Email: "not-an-email"}), []string{"A"}, "spec.email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateUser(ctx, tt.user, tt.roles)
			require.Error(t, err)
			assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeInvalidInput))
			assert.Equal(t, tt.wantField, idmerrors.GetDetails(err)["field"])
		})
	}
	assert.Empty(t, f.store.Ops("create User"))
}

func TestCreateUser_UnknownRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createRoles(t, "A")
	f.store.Reset()

	_, err := f.svc.CreateUser(ctx, NewUser("alice", UserSpec{}), []string{"A", "role-x"})
	require.Error(t, err)
	assert.True(t, idmerrors.IsInvalidArgument(err))
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeRoleNotFound))
	assert.Equal(t, "role-x", idmerrors.GetDetails(err)["role"])

	assert.Empty(t, f.store.Ops("create"))
	_, err = f.svc.GetUser(ctx, "alice")
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeUserNotFound))
}

func TestCreateUser_DuplicateName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createRoles(t, "A")
	f.createUser(t, "alice", UserSpec{})
	f.store.Reset()

	_, err := f.svc.CreateUser(ctx, NewUser("alice", UserSpec{}), []string{"A"})
	require.Error(t, err)
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeDuplicateName))
	assert.Equal(t, idmerrors.ReasonDuplicateName, idmerrors.GetReason(err))
	assert.Equal(t, "alice", idmerrors.GetDetails(err)["name"])

	assert.Empty(t, f.store.Ops("create"))
	assert.Empty(t, f.store.Ops("update"))
	assert.Empty(t, f.store.Ops("delete"))
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createRoles(t, "A", "B")

	user, err := f.svc.CreateUser(ctx, NewUser("alice", UserSpec{Email: "alice@example.com"}), []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), user.Metadata.Version, "created then stamped")
	assert.False(t, user.Metadata.CreationTimestamp.IsZero())
	assert.ElementsMatch(t, []string{"A", "B"}, f.boundRoles(t, "alice"))

	// No roles is allowed
	_, err = f.svc.CreateUser(ctx, NewUser("bob", UserSpec{}), []string{})
	require.NoError(t, err)
	assert.Empty(t, f.boundRoles(t, "bob"))
}

func TestCreateUser_RetriesConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createRoles(t, "A", "B")
	f.store.userUpdateConflicts = 4

	user, err := f.svc.CreateUser(ctx, NewUser("alice", UserSpec{}), []string{"A", "B"})
	require.NoError(t, err)
	assert.Contains(t, user.Metadata.Annotations, AnnotationRequestToUpdate)
	assert.ElementsMatch(t, []string{"A", "B"}, f.boundRoles(t, "alice"))

	assert.Len(t, f.store.Ops("update User/alice"), 5)
	assert.Len(t, f.store.Ops("create RoleBinding"), 2, "later attempts find the bindings in place")
}

func TestCreateUser_RetriesExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createRoles(t, "A")
	f.store.userUpdateConflicts = 5

	_, err := f.svc.CreateUser(ctx, NewUser("alice", UserSpec{}), []string{"A"})
	require.Error(t, err)
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeConcurrentModification))
	assert.Len(t, f.store.Ops("update User/alice"), 5)

	// The user record is not rolled back
	_, err = f.svc.GetUser(ctx, "alice")
	assert.NoError(t, err)
}

func TestCreateUser_OtherFailuresAreNotRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createRoles(t, "A")
	f.store.createErrs["RoleBinding/alice-A-binding"] = errors.New("disk full")

	_, err := f.svc.CreateUser(ctx, NewUser("alice", UserSpec{}), []string{"A"})
	require.Error(t, err)
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeInternal))
	assert.Len(t, f.store.Ops("create RoleBinding/alice-A-binding"), 1)
}

func TestCreateUser_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createRoles(t, "reader", "writer")

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.CreateUser(ctx, NewUser(fmt.Sprintf("user-%d", i), UserSpec{}), []string{"reader", "writer"})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"reader", "writer"}, f.boundRoles(t, fmt.Sprintf("user-%d", i)))
	}
}

func TestEnsureGhostUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	ghost, created, err := f.svc.EnsureGhostUser(ctx)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, GhostUserName, ghost.Metadata.Name)

	_, created, err = f.svc.EnsureGhostUser(ctx)
	require.NoError(t, err)
	assert.False(t, created)

	user, err := f.svc.GetUserOrGhost(ctx, "deleted")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.Metadata.Version, "stored ghost is returned")
}
