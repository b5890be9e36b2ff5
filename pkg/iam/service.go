package iam

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	idmerrors "github.com/tendant/identity-core/pkg/errors"
	"github.com/tendant/identity-core/pkg/event"
	"github.com/tendant/identity-core/pkg/extension"
	"github.com/tendant/identity-core/pkg/password"
	"github.com/tendant/identity-core/pkg/role"
	"github.com/tendant/identity-core/pkg/setting"
)

// RoleLookup checks roles and finds the bindings of a subject
type RoleLookup interface {
	Exists(ctx context.Context, name string) (bool, error)
	ListRoleBindings(ctx context.Context, subject role.Subject) iter.Seq2[*role.RoleBinding, error]
}

// UserService manages users, their passwords and their role bindings on top
// of a store that only guarantees per-record optimistic concurrency
type UserService struct {
	client    extension.Client
	roles     RoleLookup
	settings  setting.Fetcher
	encoder   password.Encoder
	publisher event.Publisher
	clock     Clock
	retry     RetryPolicy
	logger    *slog.Logger
}

// Option configures a UserService
type Option func(*UserService)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *UserService) {
		s.logger = logger.With("component", "user-service")
	}
}

// WithClock sets the time source used for timestamps
func WithClock(clock Clock) Option {
	return func(s *UserService) {
		s.clock = clock
	}
}

// WithGrantRetryPolicy replaces the retry policy applied when CreateUser grants roles
func WithGrantRetryPolicy(policy RetryPolicy) Option {
	return func(s *UserService) {
		s.retry = policy
	}
}

// NewUserService creates a user service. A nil publisher discards events.
func NewUserService(
	client extension.Client,
	roles RoleLookup,
	settings setting.Fetcher,
	encoder password.Encoder,
	publisher event.Publisher,
	opts ...Option,
) *UserService {
	if publisher == nil {
		publisher = event.NoopPublisher{}
	}
	s := &UserService{
		client:    client,
		roles:     roles,
		settings:  settings,
		encoder:   encoder,
		publisher: publisher,
		clock:     SystemClock{},
		retry:     CreateUserGrantRetry,
		logger:    slog.Default().With("component", "user-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetUser retrieves a user by name or fails with USER_NOT_FOUND
func (s *UserService) GetUser(ctx context.Context, name string) (*User, error) {
	user := &User{}
	if err := s.client.Get(ctx, name, user); err != nil {
		if errors.Is(err, extension.ErrNotFound) {
			return nil, idmerrors.UserNotFound(name)
		}
		return nil, err
	}
	return user, nil
}

// GetUserOrGhost retrieves a user by name and falls back to the ghost user
// when it does not exist
func (s *UserService) GetUserOrGhost(ctx context.Context, name string) (*User, error) {
	user := &User{}
	found, err := s.client.Fetch(ctx, name, user)
	if err != nil {
		return nil, err
	}
	if found {
		return user, nil
	}

	ghost := &User{}
	found, err = s.client.Fetch(ctx, GhostUserName, ghost)
	if err != nil {
		return nil, err
	}
	if !found {
		s.logger.WarnContext(ctx, "Ghost user record is missing, using built-in ghost", "requested", name)
		return GhostUser(), nil
	}
	return ghost, nil
}

// EnsureGhostUser stores the ghost user unless it already exists and reports
// whether it was created
func (s *UserService) EnsureGhostUser(ctx context.Context) (*User, bool, error) {
	ghost := &User{}
	found, err := s.client.Fetch(ctx, GhostUserName, ghost)
	if err != nil {
		return nil, false, err
	}
	if found {
		return ghost, false, nil
	}
	ghost = GhostUser()
	ghost.Metadata.CreationTimestamp = s.clock.Now().UTC()
	if err := s.client.Create(ctx, ghost); err != nil {
		if idmerrors.IsCode(err, idmerrors.ErrCodeDuplicateName) {
			existing, err := s.GetUser(ctx, GhostUserName)
			return existing, false, err
		}
		return nil, false, err
	}
	s.logger.InfoContext(ctx, "Ghost user created")
	return ghost, true, nil
}

// ListByEmail lists users with exactly the given email, newest first and then
// by name. Every range over the sequence queries the store again.
func (s *UserService) ListByEmail(ctx context.Context, email string) iter.Seq2[*User, error] {
	return extension.ListAll[User](ctx, s.client, extension.ListOptions{
		FieldSelector: []extension.Requirement{extension.Equal(FieldEmail, email)},
		Sort: []extension.Order{
			extension.Desc(extension.FieldCreationTimestamp),
			extension.Asc(extension.FieldName),
		},
	})
}

// UpdatePassword stores newPassword verbatim, without hashing, unless it
// equals the stored value. The returned bool reports whether a write happened.
func (s *UserService) UpdatePassword(ctx context.Context, name, newPassword string) (*User, bool, error) {
	user, err := s.GetUser(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if user.Spec.Password == newPassword {
		s.logger.DebugContext(ctx, "Password unchanged, skipping update", "username", name)
		return user, false, nil
	}
	return s.writePassword(ctx, user, newPassword)
}

// UpdateWithRawPassword hashes rawPassword and stores it unless the stored
// hash already matches. A user without a password is always written.
func (s *UserService) UpdateWithRawPassword(ctx context.Context, name, rawPassword string) (*User, bool, error) {
	user, err := s.GetUser(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if user.HasPassword() && s.matches(ctx, user, rawPassword) {
		s.logger.DebugContext(ctx, "Password unchanged, skipping update", "username", name)
		return user, false, nil
	}
	hash, err := s.EncryptPassword(rawPassword)
	if err != nil {
		return nil, false, err
	}
	return s.writePassword(ctx, user, hash)
}

func (s *UserService) writePassword(ctx context.Context, user *User, value string) (*User, bool, error) {
	user.Spec.Password = value
	if err := s.client.Update(ctx, user); err != nil {
		return nil, false, err
	}
	s.logger.InfoContext(ctx, "Password changed", "username", user.Metadata.Name)
	s.publisher.Publish(ctx, event.PasswordChangedEvent{
		Username:   user.Metadata.Name,
		OccurredAt: s.clock.Now().UTC(),
	})
	return user, true, nil
}

// ConfirmPassword reports whether rawPassword is the user's password.
// A user without a password confirms anything; a blank input never
// confirms a set password.
func (s *UserService) ConfirmPassword(ctx context.Context, name, rawPassword string) (bool, error) {
	user, err := s.GetUser(ctx, name)
	if err != nil {
		return false, err
	}
	if !user.HasPassword() {
		return true, nil
	}
	if strings.TrimSpace(rawPassword) == "" {
		return false, nil
	}
	return s.matches(ctx, user, rawPassword), nil
}

// matches verifies rawPassword against the stored hash. A stored value the
// encoder cannot parse never matches.
func (s *UserService) matches(ctx context.Context, user *User, rawPassword string) bool {
	ok, err := s.encoder.Verify(rawPassword, user.Spec.Password)
	if err != nil {
		s.logger.WarnContext(ctx, "Stored password is not a recognized hash", "username", user.Metadata.Name, "error", err)
		return false
	}
	return ok
}

// EncryptPassword hashes a raw password
func (s *UserService) EncryptPassword(rawPassword string) (string, error) {
	hash, err := s.encoder.Hash(rawPassword)
	if errors.Is(err, password.ErrEmptyPassword) {
		return "", idmerrors.InvalidInput("password", "must not be empty")
	}
	if err != nil {
		return "", idmerrors.InternalWrap(err, "failed to hash password")
	}
	return hash, nil
}

// GrantRoles makes roles the complete set of roles bound to the user.
//
// Bindings for roles that are no longer wanted lose the user as a subject and
// are deleted once empty; updates are applied before deletions. Missing
// bindings are created concurrently. Finally the user is stamped with the
// reconciliation time. Conflicts surface as CONCURRENT_MODIFICATION and are
// not retried here.
func (s *UserService) GrantRoles(ctx context.Context, name string, roles []string) (*User, error) {
	user, err := s.GetUser(ctx, name)
	if err != nil {
		return nil, err
	}
	subject := role.UserSubject(name)

	desired := make(map[string]bool, len(roles))
	for _, r := range roles {
		desired[r] = true
	}

	satisfied := make(map[string]bool)
	var toUpdate, toDelete []*role.RoleBinding
	for binding, err := range s.roles.ListRoleBindings(ctx, subject) {
		if err != nil {
			return nil, err
		}
		if desired[binding.RoleRef.Name] {
			satisfied[binding.RoleRef.Name] = true
			continue
		}
		binding.RemoveSubject(subject)
		if len(binding.Subjects) == 0 {
			toDelete = append(toDelete, binding)
		} else {
			toUpdate = append(toUpdate, binding)
		}
	}

	for _, binding := range toUpdate {
		if err := s.client.Update(ctx, binding); err != nil {
			return nil, err
		}
	}
	for _, binding := range toDelete {
		if err := s.client.Delete(ctx, binding); err != nil {
			return nil, err
		}
	}

	var g errgroup.Group
	seen := make(map[string]bool)
	for _, roleName := range roles {
		if strings.TrimSpace(roleName) == "" || satisfied[roleName] || seen[roleName] {
			continue
		}
		seen[roleName] = true
		g.Go(func() error {
			return s.bind(ctx, subject, roleName)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if user.Metadata.Annotations == nil {
		user.Metadata.Annotations = make(map[string]string)
	}
	user.Metadata.Annotations[AnnotationRequestToUpdate] = s.clock.Now().UTC().Format(time.RFC3339Nano)
	if err := s.client.Update(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Roles granted", "username", name, "roles", roles,
		"revoked", len(toUpdate)+len(toDelete), "created", len(seen))
	return user, nil
}

// bind creates the user's binding for a role. When a binding of the same role
// survives under the name from an earlier shared grant, the subject is added
// back to it. A name taken by a binding of another role is skipped.
func (s *UserService) bind(ctx context.Context, subject role.Subject, roleName string) error {
	var err error
	for _, name := range role.BindingNames(subject.Name, roleName) {
		binding := role.NewRoleBinding(subject.Name, roleName)
		binding.Metadata.Name = name
		err = s.client.Create(ctx, binding)
		if !idmerrors.IsCode(err, idmerrors.ErrCodeDuplicateName) {
			return err
		}

		existing := &role.RoleBinding{}
		if err := s.client.Get(ctx, name, existing); err != nil {
			return err
		}
		if !existing.Grants(roleName) {
			s.logger.WarnContext(ctx, "Binding name is taken by another role",
				"binding", name, "role", roleName, "bound_role", existing.RoleRef.Name)
			continue
		}
		for _, sub := range existing.Subjects {
			if sub.Matches(subject) {
				return nil
			}
		}
		existing.Subjects = append(existing.Subjects, subject)
		return s.client.Update(ctx, existing)
	}
	return err
}

// SignUp registers a user with rawPassword and grants the configured default role
func (s *UserService) SignUp(ctx context.Context, user *User, rawPassword string) (*User, error) {
	if strings.TrimSpace(rawPassword) == "" {
		return nil, idmerrors.InvalidInput("password", "must not be blank")
	}
	if user == nil {
		return nil, idmerrors.InvalidInput("user", "must not be nil")
	}

	userSetting, err := s.settings.UserSetting(ctx)
	if err != nil {
		return nil, err
	}
	if userSetting == nil {
		return nil, idmerrors.InvalidInput("user setting", "user setting is not configured")
	}
	if !userSetting.RegistrationAllowed() {
		return nil, idmerrors.AccessDenied("registration is not allowed", idmerrors.ReasonSignUpDisabled)
	}
	if strings.TrimSpace(userSetting.DefaultRole) == "" {
		s.logger.WarnContext(ctx, "Registration is enabled but no default role is configured")
		return nil, idmerrors.AccessDenied("default role is not configured by admin", idmerrors.ReasonSignUpDisabled).
			WithDetail("cause", idmerrors.CauseNoDefaultRole)
	}

	hash, err := s.EncryptPassword(rawPassword)
	if err != nil {
		return nil, err
	}
	user.Spec.Password = hash
	return s.CreateUser(ctx, user, []string{userSetting.DefaultRole})
}

// CreateUser creates a user and grants it roles. Every role must exist. The
// grant is retried with backoff while it fails on a concurrent modification.
func (s *UserService) CreateUser(ctx context.Context, user *User, roles []string) (*User, error) {
	if user == nil {
		return nil, idmerrors.InvalidInput("user", "must not be nil")
	}
	if roles == nil {
		return nil, idmerrors.InvalidInput("roles", "must not be nil")
	}
	if err := validateUser(user); err != nil {
		return nil, err
	}
	name := user.Metadata.Name

	found, err := s.client.Fetch(ctx, name, &User{})
	if err != nil {
		return nil, err
	}
	if found {
		return nil, idmerrors.DuplicateName("user", name)
	}

	for _, roleName := range roles {
		exists, err := s.roles.Exists(ctx, roleName)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, idmerrors.RoleNotFound(roleName)
		}
	}

	now := s.clock.Now().UTC()
	if user.Metadata.CreationTimestamp.IsZero() {
		user.Metadata.CreationTimestamp = now
	}
	if user.Spec.RegisteredAt == nil {
		user.Spec.RegisteredAt = &now
	}
	if err := s.client.Create(ctx, user); err != nil {
		if idmerrors.IsCode(err, idmerrors.ErrCodeDuplicateName) {
			return nil, idmerrors.DuplicateName("user", name)
		}
		return nil, err
	}
	s.logger.InfoContext(ctx, "User created", "username", name)

	var granted *User
	err = s.retry.Do(ctx, s.logger, func() error {
		var err error
		granted, err = s.GrantRoles(ctx, name, roles)
		return err
	})
	if err != nil {
		return nil, err
	}
	return granted, nil
}
