package role

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"

	"github.com/tendant/identity-core/pkg/extension"
)

const (
	KindRole        = "Role"
	KindRoleBinding = "RoleBinding"

	// GroupRBAC is the API group of roles and role bindings
	GroupRBAC = "rbac.authorization.iam"

	// SubjectKindUser and GroupUser identify user subjects
	SubjectKindUser = "User"
	GroupUser       = "iam"

	// Indexed field paths of a RoleBinding
	FieldSubjects    = "subjects"
	FieldRoleRefName = "roleRef.name"
)

// Role is an externally owned role definition. The identity core only checks
// that a role exists, never what it grants.
type Role struct {
	Metadata extension.Metadata `json:"metadata"`
	Spec     RoleSpec           `json:"spec"`
}

// RoleSpec describes a role
type RoleSpec struct {
	DisplayName string       `json:"displayName,omitempty"`
	Rules       []PolicyRule `json:"rules,omitempty"`
}

// PolicyRule lists the verbs a role allows on resources
type PolicyRule struct {
	APIGroups []string `json:"apiGroups,omitempty"`
	Resources []string `json:"resources,omitempty"`
	Verbs     []string `json:"verbs,omitempty"`
}

func (r *Role) Kind() string                       { return KindRole }
func (r *Role) GetMetadata() *extension.Metadata   { return &r.Metadata }
func (r *Role) IndexedFields() map[string][]string { return nil }

// Subject references an identity a role can be bound to
type Subject struct {
	Kind     string `json:"kind"`
	APIGroup string `json:"apiGroup,omitempty"`
	Name     string `json:"name"`
}

// UserSubject returns the subject referencing the named user
func UserSubject(username string) Subject {
	return Subject{Kind: SubjectKindUser, APIGroup: GroupUser, Name: username}
}

// Key is the indexed form of a subject
func (s Subject) Key() string {
	return s.Kind + "/" + s.Name
}

// Matches reports whether two subjects reference the same identity
func (s Subject) Matches(other Subject) bool {
	return s.Kind == other.Kind && s.Name == other.Name
}

// RoleRef points a binding at a role
type RoleRef struct {
	Kind     string `json:"kind"`
	APIGroup string `json:"apiGroup,omitempty"`
	Name     string `json:"name"`
}

// RoleBinding grants one role to a set of subjects. A binding may be shared by
// several subjects; a binding left without subjects must be deleted.
type RoleBinding struct {
	Metadata extension.Metadata `json:"metadata"`
	RoleRef  RoleRef            `json:"roleRef"`
	Subjects []Subject          `json:"subjects"`
}

func (b *RoleBinding) Kind() string                     { return KindRoleBinding }
func (b *RoleBinding) GetMetadata() *extension.Metadata { return &b.Metadata }

func (b *RoleBinding) IndexedFields() map[string][]string {
	subjects := make([]string, 0, len(b.Subjects))
	for _, s := range b.Subjects {
		subjects = append(subjects, s.Key())
	}
	return map[string][]string{
		FieldSubjects:    subjects,
		FieldRoleRefName: {b.RoleRef.Name},
	}
}

// RemoveSubject drops every occurrence of subject and reports whether any was removed
func (b *RoleBinding) RemoveSubject(subject Subject) bool {
	before := len(b.Subjects)
	b.Subjects = slices.DeleteFunc(b.Subjects, subject.Matches)
	return len(b.Subjects) != before
}

// BindingName derives the deterministic binding name for a user and role
func BindingName(username, roleName string) string {
	return username + "-" + roleName + "-binding"
}

// BindingNames lists the names a binding of roleName to username may be stored
// under, in the order they are tried. The plain name is ambiguous when either
// part contains a dash ("a-b"+"c" and "a"+"b-c"), so a hashed name follows it.
func BindingNames(username, roleName string) []string {
	sum := sha256.Sum256([]byte(username + "\x00" + roleName))
	plain := BindingName(username, roleName)
	return []string{plain, plain + "-" + hex.EncodeToString(sum[:4])}
}

// Grants reports whether the binding refers to the named role
func (b *RoleBinding) Grants(roleName string) bool {
	return b.RoleRef.Kind == KindRole && b.RoleRef.Name == roleName
}

// NewRoleBinding creates the binding granting roleName to a single user
func NewRoleBinding(username, roleName string) *RoleBinding {
	return &RoleBinding{
		Metadata: extension.Metadata{Name: BindingName(username, roleName)},
		RoleRef: RoleRef{
			Kind:     KindRole,
			APIGroup: GroupRBAC,
			Name:     roleName,
		},
		Subjects: []Subject{UserSubject(username)},
	}
}
