// Package docstore is the document database boundary used by the job store
// and the analysis cache.
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get and Update for a missing document.
var ErrNotFound = errors.New("document not found")

// Filter is a single field comparison. Op is one of ==, <, <=, >, >=.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Update sets Path to Value. Path may be dotted for nested fields.
type Update struct {
	Path  string
	Value any
}

// Increment is an Update value that atomically adds to a numeric field.
type Increment int64

// Ref names one document.
type Ref struct {
	Collection string
	Key        string
}

// Doc is one query result.
type Doc struct {
	ID     string
	decode func(any) error
}

// NewDoc builds a Doc backed by decode.
func NewDoc(id string, decode func(any) error) Doc {
	return Doc{ID: id, decode: decode}
}

// DataTo decodes the document into v.
func (d Doc) DataTo(v any) error {
	return d.decode(v)
}

// Store is a keyed document collection API.
type Store interface {
	Get(ctx context.Context, collection, key string, into any) error
	Set(ctx context.Context, collection, key string, doc any) error
	Update(ctx context.Context, collection, key string, updates []Update) error
	BatchDelete(ctx context.Context, refs []Ref) error
	Query(ctx context.Context, collection string, filters ...Filter) ([]Doc, error)
}
