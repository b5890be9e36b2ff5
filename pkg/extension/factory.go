package extension

import "fmt"

// StoreConfig contains configuration for creating stores
type StoreConfig struct {
	// DB is required for PostgreSQL stores
	DB DBTX
	// DataDir is required for file-based stores
	DataDir string
}

// NewStore creates a new store based on the persistence type
func NewStore(persistenceType string, config StoreConfig) (Store, error) {
	switch persistenceType {
	case "memory", "inmem", "":
		return NewInMemoryStore(), nil
	case "postgres", "postgresql":
		if config.DB == nil {
			return nil, fmt.Errorf("db required for postgres store")
		}
		return NewPostgresStore(config.DB), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file store")
		}
		return NewFileStore(config.DataDir)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: memory, postgres, file)", persistenceType)
	}
}
