package extension

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"github.com/google/uuid"
	idmerrors "github.com/tendant/identity-core/pkg/errors"
)

// Client reads and writes typed objects with per-object optimistic concurrency.
//
// Errors carry idmerrors codes and still match the store sentinels:
// ErrNotFound → NOT_FOUND, ErrAlreadyExists → DUPLICATE_NAME,
// ErrConflict → CONCURRENT_MODIFICATION.
type Client interface {
	// Get loads the named object into obj or fails with ErrNotFound
	Get(ctx context.Context, name string, obj Object) error
	// Fetch loads the named object into obj and reports whether it exists
	Fetch(ctx context.Context, name string, obj Object) (bool, error)
	// Create persists a new object and refreshes its metadata
	Create(ctx context.Context, obj Object) error
	// Update persists obj if its version is current and refreshes its metadata
	Update(ctx context.Context, obj Object) error
	// Delete removes obj if its version is current
	Delete(ctx context.Context, obj Object) error
	// List returns the raw records of a kind selected and ordered by opts
	List(ctx context.Context, kind string, opts ListOptions) ([]Record, error)
}

// StoreClient implements Client on top of a Store
type StoreClient struct {
	store  Store
	logger *slog.Logger
}

// NewClient creates a client backed by the given store
func NewClient(store Store) *StoreClient {
	return &StoreClient{
		store:  store,
		logger: slog.Default().With("component", "extension-client"),
	}
}

func (c *StoreClient) Get(ctx context.Context, name string, obj Object) error {
	rec, err := c.store.Get(ctx, obj.Kind(), name)
	if err != nil {
		return translate(err, obj.Kind(), name)
	}
	return Decode(rec, obj)
}

func (c *StoreClient) Fetch(ctx context.Context, name string, obj Object) (bool, error) {
	err := c.Get(ctx, name, obj)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *StoreClient) Create(ctx context.Context, obj Object) error {
	meta := obj.GetMetadata()
	if meta.Name == "" {
		return idmerrors.InvalidInput("metadata.name", "name must not be blank")
	}
	if meta.UID == "" {
		meta.UID = uuid.NewString()
	}
	rec, err := Encode(obj)
	if err != nil {
		return idmerrors.InternalWrap(err, "failed to encode "+obj.Kind())
	}
	stored, err := c.store.Create(ctx, rec)
	if err != nil {
		return translate(err, obj.Kind(), meta.Name)
	}
	c.logger.Debug("Created record", "kind", obj.Kind(), "name", meta.Name, "version", stored.Version)
	refresh(stored, obj)
	return nil
}

func (c *StoreClient) Update(ctx context.Context, obj Object) error {
	meta := obj.GetMetadata()
	rec, err := Encode(obj)
	if err != nil {
		return idmerrors.InternalWrap(err, "failed to encode "+obj.Kind())
	}
	stored, err := c.store.Update(ctx, rec)
	if err != nil {
		return translate(err, obj.Kind(), meta.Name)
	}
	c.logger.Debug("Updated record", "kind", obj.Kind(), "name", meta.Name, "version", stored.Version)
	refresh(stored, obj)
	return nil
}

func (c *StoreClient) Delete(ctx context.Context, obj Object) error {
	meta := obj.GetMetadata()
	if err := c.store.Delete(ctx, obj.Kind(), meta.Name, meta.Version); err != nil {
		return translate(err, obj.Kind(), meta.Name)
	}
	c.logger.Debug("Deleted record", "kind", obj.Kind(), "name", meta.Name)
	return nil
}

func (c *StoreClient) List(ctx context.Context, kind string, opts ListOptions) ([]Record, error) {
	records, err := c.store.List(ctx, kind)
	if err != nil {
		return nil, idmerrors.InternalWrap(err, "failed to list "+kind)
	}
	return opts.Apply(records), nil
}

// refresh copies the store-assigned version and creation time back onto obj
func refresh(stored Record, obj Object) {
	meta := obj.GetMetadata()
	meta.Version = stored.Version
	meta.CreationTimestamp = stored.CreatedAt
}

func translate(err error, kind, name string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return idmerrors.Wrapf(err, idmerrors.ErrCodeNotFound, "%s %s not found", kind, name).
			WithDetail("name", name)
	case errors.Is(err, ErrAlreadyExists):
		return idmerrors.Wrapf(err, idmerrors.ErrCodeDuplicateName, "%s %s already exists", kind, name).
			WithReason(idmerrors.ReasonDuplicateName).
			WithDetail("name", name)
	case errors.Is(err, ErrConflict):
		return idmerrors.Wrapf(err, idmerrors.ErrCodeConcurrentModification,
			"%s %s was modified concurrently", kind, name).
			WithReason(idmerrors.ReasonConflict).
			WithDetail("name", name)
	}
	return idmerrors.InternalWrap(err, "store operation failed")
}

// ListAll lazily lists every object of E's kind matching opts. Each range over
// the returned sequence queries the store again, so it can be restarted.
func ListAll[E any, T interface {
	*E
	Object
}](ctx context.Context, c Client, opts ListOptions) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		kind := T(new(E)).Kind()
		records, err := c.List(ctx, kind, opts)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, rec := range records {
			obj := T(new(E))
			if err := Decode(rec, obj); err != nil {
				if !yield(nil, idmerrors.InternalWrap(err, "failed to decode "+kind)) {
					return
				}
				continue
			}
			if !yield(obj, nil) {
				return
			}
		}
	}
}
