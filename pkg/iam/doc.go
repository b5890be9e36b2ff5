// Package iam provides the identity service: user lookup, the password
// lifecycle, role binding reconciliation, registration and user creation.
//
// # Overview
//
// UserService works on top of an extension.Client that only guarantees
// optimistic concurrency per record. Users and role bindings are separate
// records; the roles of a user are found by listing the bindings whose
// subjects include that user.
//
// # Basic Usage
//
//	client := extension.NewClient(extension.NewInMemoryStore())
//	roles := role.NewRoleService(client)
//	encoder, _ := password.NewEncoder(password.AlgorithmBcrypt, 0)
//	settings := setting.NewStoreFetcher(client, nil)
//
//	svc := iam.NewUserService(client, roles, settings, encoder, event.NewLogPublisher(nil),
//		iam.WithLogger(logger),
//	)
//
//	user, err := svc.SignUp(ctx, iam.NewUser("alice", iam.UserSpec{Email: "alice@example.com"}), "secret")
//
// # Passwords
//
// UpdateWithRawPassword hashes its input and skips the write when the stored
// hash already verifies it. UpdatePassword stores its input verbatim and is
// meant for values the caller has already processed. ConfirmPassword treats a
// user without a password as confirming any input.
//
// # Role Bindings
//
// GrantRoles replaces the complete set of roles bound to a user. Bindings that
// still serve a wanted role are left untouched, shared bindings only lose the
// user as a subject, and bindings left without subjects are deleted. Missing
// bindings are created concurrently. A conflicting write fails with
// CONCURRENT_MODIFICATION; only CreateUser retries it, following
// CreateUserGrantRetry.
package iam
