package extension

import (
	"encoding/json"
	"errors"
	"time"
)

// Store-level sentinel errors. Callers should match them with errors.Is.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrConflict      = errors.New("record version conflict")
)

// Well-known fields every record can be sorted or selected by.
const (
	FieldName              = "metadata.name"
	FieldCreationTimestamp = "metadata.creationTimestamp"
)

// Metadata is the common header of every stored object
type Metadata struct {
	Name              string            `json:"name"`
	UID               string            `json:"uid,omitempty"`
	Version           int64             `json:"version,omitempty"`
	CreationTimestamp time.Time         `json:"creationTimestamp,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
}

// Object is a typed record the Client can persist
type Object interface {
	// Kind names the record type, e.g. "User" or "RoleBinding"
	Kind() string
	// GetMetadata returns a pointer to the object's metadata
	GetMetadata() *Metadata
	// IndexedFields returns the values the object can be selected by, keyed by field path
	IndexedFields() map[string][]string
}

// Record is the raw, encoded form of an object held by a Store
type Record struct {
	Kind      string              `json:"kind"`
	Name      string              `json:"name"`
	Version   int64               `json:"version"`
	CreatedAt time.Time           `json:"created_at"`
	Fields    map[string][]string `json:"fields,omitempty"`
	Data      json.RawMessage     `json:"data"`
}

func (r Record) key() string {
	return r.Kind + "/" + r.Name
}

// Encode converts an object into a record ready to be written
func Encode(obj Object) (Record, error) {
	meta := obj.GetMetadata()
	data, err := json.Marshal(obj)
	if err != nil {
		return Record{}, err
	}
	fields := obj.IndexedFields()
	if fields == nil {
		fields = make(map[string][]string)
	}
	fields[FieldName] = []string{meta.Name}
	return Record{
		Kind:      obj.Kind(),
		Name:      meta.Name,
		Version:   meta.Version,
		CreatedAt: meta.CreationTimestamp,
		Fields:    fields,
		Data:      data,
	}, nil
}

// Decode fills obj from a stored record. The record's version and creation
// time are authoritative over whatever was encoded in the data.
func Decode(rec Record, obj Object) error {
	if err := json.Unmarshal(rec.Data, obj); err != nil {
		return err
	}
	meta := obj.GetMetadata()
	meta.Name = rec.Name
	meta.Version = rec.Version
	meta.CreationTimestamp = rec.CreatedAt
	return nil
}
