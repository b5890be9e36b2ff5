package extension

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

const fileStoreName = "extensions.json"

// fileStoreData represents all records stored in the file
type fileStoreData struct {
	Records map[string]Record `json:"records"` // keyed by kind/name
}

// FileStore implements Store using file-based storage
type FileStore struct {
	dataDir string
	data    *fileStoreData
	mutex   sync.RWMutex
}

// NewFileStore creates a new file-based store
func NewFileStore(dataDir string) (*FileStore, error) {
	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store := &FileStore{
		dataDir: dataDir,
		data: &fileStoreData{
			Records: make(map[string]Record),
		},
	}

	if err := store.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	return store, nil
}

// Get retrieves a record by kind and name
func (s *FileStore) Get(ctx context.Context, kind, name string) (Record, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rec, ok := s.data.Records[Record{Kind: kind, Name: name}.key()]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Create stores a new record at version 1
func (s *FileStore) Create(ctx context.Context, rec Record) (Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := rec.key()
	if _, exists := s.data.Records[key]; exists {
		return Record{}, ErrAlreadyExists
	}

	rec = cloneRecord(rec)
	rec.Version = 1
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.data.Records[key] = rec

	if err := s.save(); err != nil {
		// Rollback
		delete(s.data.Records, key)
		return Record{}, fmt.Errorf("failed to save: %w", err)
	}
	return cloneRecord(rec), nil
}

// Update replaces a record if the supplied version is current
func (s *FileStore) Update(ctx context.Context, rec Record) (Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := rec.key()
	current, ok := s.data.Records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	if current.Version != rec.Version {
		return Record{}, ErrConflict
	}

	rec = cloneRecord(rec)
	rec.Version = current.Version + 1
	rec.CreatedAt = current.CreatedAt
	s.data.Records[key] = rec

	if err := s.save(); err != nil {
		s.data.Records[key] = current
		return Record{}, fmt.Errorf("failed to save: %w", err)
	}
	return cloneRecord(rec), nil
}

// Delete removes a record if the supplied version is current
func (s *FileStore) Delete(ctx context.Context, kind, name string, version int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := Record{Kind: kind, Name: name}.key()
	current, ok := s.data.Records[key]
	if !ok {
		return ErrNotFound
	}
	if current.Version != version {
		return ErrConflict
	}
	delete(s.data.Records, key)

	if err := s.save(); err != nil {
		s.data.Records[key] = current
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

// List returns all records of a kind ordered by name
func (s *FileStore) List(ctx context.Context, kind string) ([]Record, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var result []Record
	for _, key := range slices.Sorted(maps.Keys(s.data.Records)) {
		if rec := s.data.Records[key]; rec.Kind == kind {
			result = append(result, cloneRecord(rec))
		}
	}
	return result, nil
}

// load reads records from file
func (s *FileStore) load() error {
	filePath := filepath.Join(s.dataDir, fileStoreName)

	// If file doesn't exist, start with empty data
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	// If file is empty, start with empty data
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, s.data); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	if s.data.Records == nil {
		s.data.Records = make(map[string]Record)
	}

	return nil
}

// save writes records to file atomically
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	tempFile := filepath.Join(s.dataDir, fileStoreName+".tmp")
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	finalFile := filepath.Join(s.dataDir, fileStoreName)
	if err := os.Rename(tempFile, finalFile); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
