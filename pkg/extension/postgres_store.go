package extension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresStore implements Store on the extensions table
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `kind, name, version, created_at, fields, data`

// Get retrieves a record by kind and name
func (s *PostgresStore) Get(ctx context.Context, kind, name string) (Record, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM extensions WHERE kind = $1 AND name = $2`,
		kind, name)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get %s %s: %w", kind, name, err)
	}
	return rec, nil
}

// Create stores a new record at version 1
func (s *PostgresStore) Create(ctx context.Context, rec Record) (Record, error) {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal fields: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO extensions (kind, name, version, created_at, fields, data)
		VALUES ($1, $2, 1, $3, $4, $5)
		ON CONFLICT (kind, name) DO NOTHING
		RETURNING `+selectColumns,
		rec.Kind, rec.Name, createdAt, string(fields), string(rec.Data))
	stored, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrAlreadyExists
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to create %s %s: %w", rec.Kind, rec.Name, err)
	}
	return stored, nil
}

// Update replaces a record if the supplied version is current
func (s *PostgresStore) Update(ctx context.Context, rec Record) (Record, error) {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal fields: %w", err)
	}

	row := s.db.QueryRow(ctx, `
		UPDATE extensions
		SET version = version + 1, fields = $4, data = $5
		WHERE kind = $1 AND name = $2 AND version = $3
		RETURNING `+selectColumns,
		rec.Kind, rec.Name, rec.Version, string(fields), string(rec.Data))
	stored, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, s.missOrConflict(ctx, rec.Kind, rec.Name)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to update %s %s: %w", rec.Kind, rec.Name, err)
	}
	return stored, nil
}

// Delete removes a record if the supplied version is current
func (s *PostgresStore) Delete(ctx context.Context, kind, name string, version int64) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM extensions WHERE kind = $1 AND name = $2 AND version = $3`,
		kind, name, version)
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", kind, name, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, kind, name)
	}
	return nil
}

// List returns all records of a kind ordered by name
func (s *PostgresStore) List(ctx context.Context, kind string) ([]Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+selectColumns+` FROM extensions WHERE kind = $1 ORDER BY name`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", kind, err)
	}
	return result, nil
}

// missOrConflict tells a vanished record apart from a stale version
func (s *PostgresStore) missOrConflict(ctx context.Context, kind, name string) error {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM extensions WHERE kind = $1 AND name = $2)`,
		kind, name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check %s %s: %w", kind, name, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var fields, data []byte
	if err := row.Scan(&rec.Kind, &rec.Name, &rec.Version, &rec.CreatedAt, &fields, &data); err != nil {
		return Record{}, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &rec.Fields); err != nil {
			return Record{}, fmt.Errorf("failed to unmarshal fields: %w", err)
		}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.Data = data
	return rec, nil
}
