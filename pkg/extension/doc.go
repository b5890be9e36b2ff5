// Package extension provides the versioned record store the identity core is built on.
//
// Records are addressed by (kind, name) and carry a monotonically increasing version.
// A write that supplies a stale version is rejected with ErrConflict, which is the only
// concurrency guarantee the store gives: there are no multi-record transactions.
//
// # Backends
//
//   - InMemoryStore: maps guarded by an RWMutex, for tests and single-process use
//   - FileStore: a JSON file rewritten atomically on every write
//   - PostgresStore: a single "extensions" table, see migrations/idm_extension.sql
//
// # Client
//
// Client encodes typed objects into records and back:
//
//	client := extension.NewClient(extension.NewInMemoryStore())
//
//	user := &iam.User{}
//	if err := client.Get(ctx, "alice", user); err != nil {
//		// errors.Is(err, extension.ErrNotFound)
//	}
//
//	for u, err := range extension.ListAll[iam.User](ctx, client, extension.ListOptions{
//		FieldSelector: []extension.Requirement{extension.Equal("spec.email", email)},
//		Sort:          []extension.Order{extension.Desc(extension.FieldCreationTimestamp)},
//	}) {
//		...
//	}
package extension
