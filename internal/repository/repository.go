// Package repository defines the generic document-store contract used by the
// credential and identity layers. Implementations live in sub-packages
// (sqlite, bolt); callers only see DocumentStore.
package repository

import (
	"context"
	"fmt"
	"time"
)

// Collection names one logical collection inside a database.
type Collection struct {
	Database string
	ID       string
}

func (c Collection) String() string {
	return c.Database + "/" + c.ID
}

// Document is a schemaless record. Fields holds JSON-compatible values.
type Document struct {
	ID        string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// String returns the named field as a string, or "" if it is missing.
// Non-string scalars are formatted with fmt.
func (d Document) String(key string) string {
	v, ok := d.Fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Filter is an equality condition on a top-level field.
type Filter struct {
	Field string
	Value string
}

// Equal builds a Filter.
func Equal(field, value string) Filter {
	return Filter{Field: field, Value: value}
}

// DocumentStore is the CRUD surface the application needs from storage.
//
//   - ListWhere returns documents matching all filters, oldest first.
//   - Insert assigns an id when doc.ID is empty and returns the stored document.
//   - Patch merges fields into an existing document and returns the result.
//   - EnsureUnique declares that the combination of fields is unique within
//     the collection. Inserts or patches violating it fail with an error
//     matching apperror.ErrConflict.
//
// Patch returns an error matching apperror.ErrNotFound for an unknown id.
type DocumentStore interface {
	ListWhere(ctx context.Context, c Collection, filters ...Filter) ([]Document, error)
	Insert(ctx context.Context, c Collection, doc Document) (Document, error)
	Patch(ctx context.Context, c Collection, id string, fields map[string]any) (Document, error)
	EnsureUnique(ctx context.Context, c Collection, fields ...string) error
	Close() error
}
