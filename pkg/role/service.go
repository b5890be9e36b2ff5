package role

import (
	"context"
	"iter"
	"log/slog"

	idmerrors "github.com/tendant/identity-core/pkg/errors"
	"github.com/tendant/identity-core/pkg/extension"
)

// RoleService provides role lookup and role binding queries
type RoleService struct {
	client extension.Client
	logger *slog.Logger
}

// NewRoleService creates a role service on top of an extension client
func NewRoleService(client extension.Client) *RoleService {
	return &RoleService{
		client: client,
		logger: slog.Default().With("component", "role-service"),
	}
}

// Exists reports whether a role with the given name exists
func (s *RoleService) Exists(ctx context.Context, name string) (bool, error) {
	return s.client.Fetch(ctx, name, &Role{})
}

// GetRole retrieves a role by name
func (s *RoleService) GetRole(ctx context.Context, name string) (*Role, error) {
	role := &Role{}
	found, err := s.client.Fetch(ctx, name, role)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, idmerrors.RoleNotFound(name)
	}
	return role, nil
}

// FindRoles returns all roles ordered by name
func (s *RoleService) FindRoles(ctx context.Context) ([]*Role, error) {
	var roles []*Role
	for role, err := range extension.ListAll[Role](ctx, s.client, extension.ListOptions{
		Sort: []extension.Order{extension.Asc(extension.FieldName)},
	}) {
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// CreateRole adds a new role
func (s *RoleService) CreateRole(ctx context.Context, name string, spec RoleSpec) (*Role, error) {
	if name == "" {
		return nil, idmerrors.InvalidInput("role name", "must not be empty")
	}
	role := &Role{Metadata: extension.Metadata{Name: name}, Spec: spec}
	if err := s.client.Create(ctx, role); err != nil {
		return nil, err
	}
	s.logger.Info("Role created", "role", name)
	return role, nil
}

// EnsureRole creates the role unless it already exists and reports whether it was created
func (s *RoleService) EnsureRole(ctx context.Context, name string, spec RoleSpec) (*Role, bool, error) {
	existing := &Role{}
	found, err := s.client.Fetch(ctx, name, existing)
	if err != nil {
		return nil, false, err
	}
	if found {
		return existing, false, nil
	}
	role, err := s.CreateRole(ctx, name, spec)
	if idmerrors.IsCode(err, idmerrors.ErrCodeDuplicateName) {
		// Lost a creation race; the role exists either way
		if err := s.client.Get(ctx, name, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return role, true, nil
}

// ListRoleBindings lists the bindings whose subjects include subject
func (s *RoleService) ListRoleBindings(ctx context.Context, subject Subject) iter.Seq2[*RoleBinding, error] {
	return extension.ListAll[RoleBinding](ctx, s.client, extension.ListOptions{
		FieldSelector: []extension.Requirement{extension.Equal(FieldSubjects, subject.Key())},
		Sort:          []extension.Order{extension.Asc(extension.FieldName)},
	})
}

// GetRoleUsers returns the names of users bound to a role
func (s *RoleService) GetRoleUsers(ctx context.Context, roleName string) ([]string, error) {
	var users []string
	for binding, err := range extension.ListAll[RoleBinding](ctx, s.client, extension.ListOptions{
		FieldSelector: []extension.Requirement{extension.Equal(FieldRoleRefName, roleName)},
		Sort:          []extension.Order{extension.Asc(extension.FieldName)},
	}) {
		if err != nil {
			return nil, err
		}
		for _, subject := range binding.Subjects {
			if subject.Kind == SubjectKindUser {
				users = append(users, subject.Name)
			}
		}
	}
	return users, nil
}
