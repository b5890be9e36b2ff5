package extension

import "context"

// Store is the raw persistence contract implemented by each backend.
//
// Create fails with ErrAlreadyExists, Get with ErrNotFound. Update and Delete
// fail with ErrNotFound when the record is gone and with ErrConflict when the
// supplied version differs from the stored one.
type Store interface {
	Get(ctx context.Context, kind, name string) (Record, error)
	Create(ctx context.Context, rec Record) (Record, error)
	Update(ctx context.Context, rec Record) (Record, error)
	Delete(ctx context.Context, kind, name string, version int64) error
	List(ctx context.Context, kind string) ([]Record, error)
}
