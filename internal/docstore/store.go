// File: internal/docstore/store.go
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("docstore: document not found")

// Reserved document fields understood by every backend.
const (
	FieldStatus    = "status"
	FieldCreatedAt = "createdAt"
)

// Document is a schemaless record.
type Document map[string]interface{}

// String returns the string value of key, or "" when absent or not a string.
func (d Document) String(key string) string {
	v, _ := d[key].(string)
	return v
}

// Snapshot is a document together with its id.
type Snapshot struct {
	ID   string   `json:"id"`
	Data Document `json:"data"`
}

// Query narrows List and Count. Zero values mean no filter and no limit.
type Query struct {
	Status string
	Limit  int
	Offset int
}

// Store is a collection/document database.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Snapshot, error)
	// Set creates or fully replaces the document.
	Set(ctx context.Context, collection, id string, data Document) error
	// Add creates a document under a generated id.
	Add(ctx context.Context, collection string, data Document) (string, error)
	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields Document) error
	Delete(ctx context.Context, collection, id string) error
	// List returns documents newest first.
	List(ctx context.Context, collection string, q Query) ([]Snapshot, error)
	Count(ctx context.Context, collection string, q Query) (int64, error)
}
