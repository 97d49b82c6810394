// Package store defines the generic document-store contract the pipeline
// runs against, with an in-memory implementation for tests and local runs.
// The production implementation is the Postgres adapter.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by Get when no document exists under the key.
var ErrNotFound = errors.New("document not found")

// Document pairs a key with its raw JSON body, as returned by List.
type Document struct {
	Key   string
	Value json.RawMessage
}

// Store is a minimal key-value document store. Collections are flat
// namespaces; documents are JSON values. AppendToArray must be atomic with
// respect to concurrent appends to the same document.
type Store interface {
	// Get returns the document under collection/key, or ErrNotFound.
	Get(ctx context.Context, collection, key string) (json.RawMessage, error)

	// Set creates or replaces the document under collection/key.
	Set(ctx context.Context, collection, key string, value any) error

	// DeleteAll removes every document in the collection, in batches of
	// batchSize, so large collections don't need one giant operation.
	DeleteAll(ctx context.Context, collection string, batchSize int) error

	// AppendToArray appends value to the named array field of an existing
	// document without rewriting the rest of the document.
	AppendToArray(ctx context.Context, collection, key, field string, value any) error

	// List returns all documents in the collection ordered by key.
	List(ctx context.Context, collection string) ([]Document, error)
}
