package extension

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// InMemoryStore implements Store using in-memory storage
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]Record // kind -> name -> record
}

// NewInMemoryStore creates a new in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]map[string]Record),
	}
}

// Get retrieves a record by kind and name
func (s *InMemoryStore) Get(ctx context.Context, kind, name string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[kind][name]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Create stores a new record at version 1
func (s *InMemoryStore) Create(ctx context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byName, ok := s.records[rec.Kind]
	if !ok {
		byName = make(map[string]Record)
		s.records[rec.Kind] = byName
	}
	if _, exists := byName[rec.Name]; exists {
		return Record{}, ErrAlreadyExists
	}

	rec = cloneRecord(rec)
	rec.Version = 1
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	byName[rec.Name] = rec
	return cloneRecord(rec), nil
}

// Update replaces a record if the supplied version is current
func (s *InMemoryStore) Update(ctx context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[rec.Kind][rec.Name]
	if !ok {
		return Record{}, ErrNotFound
	}
	if current.Version != rec.Version {
		return Record{}, ErrConflict
	}

	rec = cloneRecord(rec)
	rec.Version = current.Version + 1
	rec.CreatedAt = current.CreatedAt
	s.records[rec.Kind][rec.Name] = rec
	return cloneRecord(rec), nil
}

// Delete removes a record if the supplied version is current
func (s *InMemoryStore) Delete(ctx context.Context, kind, name string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[kind][name]
	if !ok {
		return ErrNotFound
	}
	if current.Version != version {
		return ErrConflict
	}
	delete(s.records[kind], name)
	return nil
}

// List returns all records of a kind ordered by name
func (s *InMemoryStore) List(ctx context.Context, kind string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byName := s.records[kind]
	result := make([]Record, 0, len(byName))
	for _, name := range slices.Sorted(maps.Keys(byName)) {
		result = append(result, cloneRecord(byName[name]))
	}
	return result, nil
}

func cloneRecord(rec Record) Record {
	rec.Data = slices.Clone(rec.Data)
	if rec.Fields != nil {
		fields := make(map[string][]string, len(rec.Fields))
		for k, v := range rec.Fields {
			fields[k] = slices.Clone(v)
		}
		rec.Fields = fields
	}
	return rec
}
