// Package storage defines the backend contract shared by every place an
// LSH index can live: settings, opaque document payloads keyed by a 64-bit
// id, and buckets mapping a (band id, band hash) pair to a set of ids.
//
// Lookups that miss are not errors: they report absence through a boolean
// or an empty slice. Errors are reserved for I/O failures and corrupt input.
package storage

import (
	"context"
	"errors"
)

// Sentinel errors shared by all backends.
var (
	// ErrMalformedSnapshot is returned when snapshot bytes are corrupt or truncated.
	ErrMalformedSnapshot = errors.New("storage: malformed snapshot")

	// ErrIO wraps file and connection failures.
	ErrIO = errors.New("storage: i/o failure")

	// ErrNotFound is returned by callers that explicitly require a document to exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrClosed is returned when a closed backend is used.
	ErrClosed = errors.New("storage: backend closed")
)

// Backend stores settings, documents, and LSH buckets.
//
// InsertDocument assigns the first unused id above the last assigned one,
// never 0, and advances that cursor. PutDocument stores under a caller-chosen
// id, 0 included, overwriting silently and leaving the cursor alone.
// RemoveDocument never touches buckets. Bucket membership has set semantics.
type Backend interface {
	InsertSetting(ctx context.Context, key, value string) error
	QuerySetting(ctx context.Context, key string) (string, bool, error)

	InsertDocument(ctx context.Context, document []byte) (uint64, error)
	PutDocument(ctx context.Context, documentID uint64, document []byte) error
	QueryDocument(ctx context.Context, documentID uint64) ([]byte, bool, error)
	RemoveDocument(ctx context.Context, documentID uint64) error

	AddDocumentToBucket(ctx context.Context, bandID, bandHash uint32, documentID uint64) error
	QueryIDsFromBucket(ctx context.Context, bandID, bandHash uint32) ([]uint64, error)
	RemoveIDFromBucket(ctx context.Context, bandID, bandHash uint32, documentID uint64) error

	Close() error
}
