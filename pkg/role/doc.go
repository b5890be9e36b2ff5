// Package role provides roles, role bindings and the queries the identity
// core needs over them.
//
// Roles are owned elsewhere; this package only checks that a role exists.
// A RoleBinding grants one role to one or more subjects and is named
// deterministically from the user and role it was created for:
//
//	binding := role.NewRoleBinding("alice", "editor") // "alice-editor-binding"
//
// Bindings for a user are found through the indexed subject field rather than
// through any list stored on the user:
//
//	for binding, err := range roleService.ListRoleBindings(ctx, role.UserSubject("alice")) {
//		...
//	}
package role
