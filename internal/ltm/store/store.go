// Package store defines the vector store adapter used by the long-term
// memory core: CRUD and nearest-neighbor primitives over (id, text, vector,
// metadata) records, polymorphic over the concrete ANN backend.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: record not found")

// Record is one stored fact: its vector plus a flat string-keyed metadata
// map. Metadata semantics belong to the caller; the store treats it as
// opaque.
type Record struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata map[string]string
}

// Match is a query result: a record with its distance to the query vector.
// Distance is 1 - cosine similarity (or the backend's native equivalent);
// smaller means more similar.
type Match struct {
	Record
	Distance float32
}

// VectorStore is the adapter contract every backend implements.
//
// Query returns up to topK matches ordered by ascending distance. Get with a
// nil id list scans the collection (limit <= 0 means no limit). Update is a
// batched overwrite of existing records, all-or-nothing per call.
type VectorStore interface {
	Add(ctx context.Context, rec Record) error
	Get(ctx context.Context, ids []string, limit, offset int) ([]Record, error)
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	Update(ctx context.Context, recs []Record) error
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int64, error)
}
