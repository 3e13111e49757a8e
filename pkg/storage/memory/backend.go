package memory

import (
	"context"
	"sync"

	"github.com/Sumatoshi-tech/narrowdown/pkg/storage"
)

// Backend exposes a Store as a storage.Backend. A single RWMutex serializes
// writers, so a Backend is safe for concurrent use.
type Backend struct {
	mu     sync.RWMutex
	store  *Store
	closed bool
}

var _ storage.Backend = (*Backend)(nil)

// NewBackend wraps store. A nil store starts empty.
func NewBackend(store *Store) *Backend {
	if store == nil {
		store = New()
	}

	return &Backend{store: store}
}

// View runs fn with shared access to the underlying store.
func (b *Backend) View(fn func(*Store)) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	fn(b.store)
}

// Snapshot serializes the underlying store.
func (b *Backend) Snapshot() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.store.Serialize()
}

// ToFile writes the underlying store to path.
func (b *Backend) ToFile(path string, opts ...FileOption) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.store.ToFile(path, opts...)
}

// InsertSetting implements storage.Backend.
func (b *Backend) InsertSetting(ctx context.Context, key, value string) error {
	return b.write(ctx, func(s *Store) { s.InsertSetting(key, value) })
}

// QuerySetting implements storage.Backend.
func (b *Backend) QuerySetting(ctx context.Context, key string) (value string, ok bool, err error) {
	err = b.read(ctx, func(s *Store) { value, ok = s.QuerySetting(key) })

	return value, ok, err
}

// InsertDocument implements storage.Backend.
func (b *Backend) InsertDocument(ctx context.Context, document []byte) (id uint64, err error) {
	err = b.write(ctx, func(s *Store) { id = s.InsertDocument(document) })

	return id, err
}

// PutDocument implements storage.Backend.
func (b *Backend) PutDocument(ctx context.Context, documentID uint64, document []byte) error {
	return b.write(ctx, func(s *Store) { s.PutDocument(documentID, document) })
}

// QueryDocument implements storage.Backend.
func (b *Backend) QueryDocument(ctx context.Context, documentID uint64) (doc []byte, ok bool, err error) {
	err = b.read(ctx, func(s *Store) { doc, ok = s.QueryDocument(documentID) })

	return doc, ok, err
}

// RemoveDocument implements storage.Backend.
func (b *Backend) RemoveDocument(ctx context.Context, documentID uint64) error {
	return b.write(ctx, func(s *Store) { s.RemoveDocument(documentID) })
}

// AddDocumentToBucket implements storage.Backend.
func (b *Backend) AddDocumentToBucket(ctx context.Context, bandID, bandHash uint32, documentID uint64) error {
	return b.write(ctx, func(s *Store) { s.AddDocumentToBucket(bandID, bandHash, documentID) })
}

// QueryIDsFromBucket implements storage.Backend.
func (b *Backend) QueryIDsFromBucket(ctx context.Context, bandID, bandHash uint32) (ids []uint64, err error) {
	err = b.read(ctx, func(s *Store) { ids = s.QueryIDsFromBucket(bandID, bandHash) })

	return ids, err
}

// RemoveIDFromBucket implements storage.Backend.
func (b *Backend) RemoveIDFromBucket(ctx context.Context, bandID, bandHash uint32, documentID uint64) error {
	return b.write(ctx, func(s *Store) { s.RemoveIDFromBucket(bandID, bandHash, documentID) })
}

// Close marks the backend closed. The underlying store is left intact.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true

	return nil
}

func (b *Backend) read(ctx context.Context, fn func(*Store)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return storage.ErrClosed
	}

	fn(b.store)

	return nil
}

func (b *Backend) write(ctx context.Context, fn func(*Store)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return storage.ErrClosed
	}

	fn(b.store)

	return nil
}
