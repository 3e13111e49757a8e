package lsh

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/narrowdown/pkg/alg/minhash"
	"github.com/Sumatoshi-tech/narrowdown/pkg/document"
	"github.com/Sumatoshi-tech/narrowdown/pkg/storage"
	"github.com/Sumatoshi-tech/narrowdown/pkg/storage/memory"
)

// testConfig is the layout FindOptimalConfig picks for threshold 0.75.
var testConfig = Config{NumHashes: 64, NumBands: 7, RowsPerBand: 9}

type fixture struct {
	backend *memory.Backend
	index   *Index
	hasher  *minhash.Hasher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backend := memory.NewBackend(nil)

	idx, err := NewIndex(backend, testConfig)
	require.NoError(t, err)

	hasher, err := minhash.NewHasher(testConfig.NumHashes, minhash.DefaultSeed)
	require.NoError(t, err)

	return &fixture{backend: backend, index: idx, hasher: hasher}
}

func (f *fixture) doc(text string) document.StoredDocument {
	return document.StoredDocument{
		Document:    document.Ptr(text),
		Fingerprint: f.hasher.Fingerprint(strings.Fields(text)),
	}
}

func (f *fixture) insert(t *testing.T, doc document.StoredDocument, level document.StorageLevel) uint64 {
	t.Helper()

	id, err := f.index.Insert(context.Background(), doc, level)
	require.NoError(t, err)

	return id
}

func ids(docs []document.StoredDocument) []uint64 {
	out := make([]uint64, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}

	return out
}

const (
	textA = "the quick brown fox jumps over the lazy dog near the river bank today"
	textB = "completely unrelated words about distributed storage engines and consensus"
)

// --- Constructor Tests ---.

func TestNewIndex_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewIndex(memory.NewBackend(nil), Config{NumHashes: 4, NumBands: 3, RowsPerBand: 2})

	require.ErrorIs(t, err, ErrInvalidArgument)
}

// --- Insert / Query Tests ---.

func TestIndex_InsertAndQueryIdentical(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	doc := f.doc(textA)
	doc.Data = document.Ptr("payload")

	id := f.insert(t, doc, document.Full)
	assert.Equal(t, uint64(1), id)

	found, err := f.index.Query(context.Background(), doc.Fingerprint, "")
	require.NoError(t, err)
	require.Len(t, found, 1)

	assert.Equal(t, id, found[0].ID)
	assert.Equal(t, textA, found[0].Text())
	assert.Equal(t, "payload", found[0].Payload())
	assert.Equal(t, doc.Fingerprint, found[0].Fingerprint)
}

func TestIndex_QueryDissimilar(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.insert(t, f.doc(textA), document.Full)

	found, err := f.index.Query(context.Background(), f.doc(textB).Fingerprint, "")

	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestIndex_StorageLevelStripsFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	doc := f.doc(textA)
	doc.ExactPart = document.Ptr("key")
	doc.Data = document.Ptr("data")

	f.insert(t, doc, document.Minimal)

	found, err := f.index.Query(context.Background(), doc.Fingerprint, "key")
	require.NoError(t, err)
	require.Len(t, found, 1)

	assert.Nil(t, found[0].Document)
	assert.Nil(t, found[0].Fingerprint)
	assert.Equal(t, "key", found[0].Exact())
	assert.Equal(t, "data", found[0].Payload())
}

func TestIndex_ExactPartIsolates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	doc := f.doc(textA)
	doc.ExactPart = document.Ptr("tenant-1")
	f.insert(t, doc, document.Full)

	ctx := context.Background()

	other, err := f.index.Query(ctx, doc.Fingerprint, "tenant-2")
	require.NoError(t, err)
	assert.Empty(t, other)

	none, err := f.index.Query(ctx, doc.Fingerprint, "")
	require.NoError(t, err)
	assert.Empty(t, none)

	same, err := f.index.Query(ctx, doc.Fingerprint, "tenant-1")
	require.NoError(t, err)
	assert.Len(t, same, 1)
}

func TestIndex_ExplicitID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	doc := f.doc(textA)
	doc.ID = 77

	assert.Equal(t, uint64(77), f.insert(t, doc, document.Full))
	assert.Equal(t, uint64(1), f.insert(t, f.doc(textB), document.Full))

	found, err := f.index.Query(context.Background(), doc.Fingerprint, "")
	require.NoError(t, err)
	assert.Equal(t, []uint64{77}, ids(found))
}

func TestIndex_QueryOrdersByID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	doc := f.doc(textA)

	for range 5 {
		f.insert(t, doc, document.Fingerprint)
	}

	found, err := f.index.Query(context.Background(), doc.Fingerprint, "")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, ids(found))
}

func TestIndex_QuerySkipsDanglingIDs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	doc := f.doc(textA)
	id := f.insert(t, doc, document.Full)

	require.NoError(t, f.backend.RemoveDocument(ctx, id))

	found, err := f.index.Query(ctx, doc.Fingerprint, "")
	require.NoError(t, err)
	assert.Empty(t, found)

	candidates, err := f.index.Candidates(ctx, doc.Fingerprint, "")
	require.NoError(t, err)
	assert.Equal(t, []uint64{id}, candidates)
}

func TestIndex_InsertErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.index.Insert(ctx, document.StoredDocument{Document: document.Ptr("x")}, document.Full)
	require.ErrorIs(t, err, ErrMissingFingerprint)

	short := document.StoredDocument{Fingerprint: make(minhash.Fingerprint, 10)}
	_, err = f.index.Insert(ctx, short, document.Full)
	require.ErrorIs(t, err, ErrSizeMismatch)

	_, err = f.index.Query(ctx, short.Fingerprint, "")
	require.ErrorIs(t, err, ErrSizeMismatch)

	f.backend.View(func(s *memory.Store) {
		assert.Equal(t, 0, s.Len())
	})
}

func TestIndex_BackendErrorsPropagate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	doc := f.doc(textA)
	require.NoError(t, f.backend.Close())

	_, err := f.index.Insert(context.Background(), doc, document.Full)
	require.ErrorIs(t, err, storage.ErrClosed)

	_, err = f.index.Query(context.Background(), doc.Fingerprint, "")
	require.ErrorIs(t, err, storage.ErrClosed)
}

// --- Remove Tests ---.

func TestIndex_RemoveByID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	doc := f.doc(textA)
	doc.ExactPart = document.Ptr("k")

	id := f.insert(t, doc, document.Fingerprint)
	keep := f.insert(t, doc, document.Fingerprint)

	require.NoError(t, f.index.RemoveByID(ctx, id, true))

	found, err := f.index.Query(ctx, doc.Fingerprint, "k")
	require.NoError(t, err)
	assert.Equal(t, []uint64{keep}, ids(found))

	hashes, err := BandHashes(testConfig, doc.Fingerprint, "k")
	require.NoError(t, err)

	f.backend.View(func(s *memory.Store) {
		for band, h := range hashes {
			assert.Equal(t, []uint64{keep}, s.QueryIDsFromBucket(uint32(band), h))
		}

		_, ok := s.QueryDocument(id)
		assert.False(t, ok)
	})
}

func TestIndex_RemoveByID_Missing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.index.RemoveByID(ctx, 42, false))
	require.ErrorIs(t, f.index.RemoveByID(ctx, 42, true), storage.ErrNotFound)
}

func TestIndex_RemoveByID_NoFingerprint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.insert(t, f.doc(textA), document.Document)

	err := f.index.RemoveByID(context.Background(), id, true)

	require.ErrorIs(t, err, ErrTooLowStorageLevel)
}

// --- Concurrency Tests ---.

func TestIndex_ConcurrentInsertQuery(t *testing.T) {
	t.Parallel()

	const workers = 8

	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup

	for w := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			doc := f.doc(fmt.Sprintf("%s worker-%d", textA, w))

			_, err := f.index.Insert(ctx, doc, document.Full)
			assert.NoError(t, err)

			found, err := f.index.Query(ctx, doc.Fingerprint, "")
			assert.NoError(t, err)
			assert.NotEmpty(t, found)
		}()
	}

	wg.Wait()

	f.backend.View(func(s *memory.Store) {
		assert.Equal(t, workers, s.Len())
	})
}

func TestIndex_PutOverwritesExplicitID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	doc := f.doc("the quick brown fox jumps over the lazy dog")
	doc.ID = 0
	doc.Data = document.Ptr("v1")
	require.NoError(t, f.index.Put(ctx, doc, document.Minimal))

	doc.Data = document.Ptr("v2")
	require.NoError(t, f.index.Put(ctx, doc, document.Minimal))

	found, err := f.index.Query(ctx, doc.Fingerprint, "")
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, ids(found))
	assert.Equal(t, "v2", *found[0].Data)

	assert.Equal(t, uint64(1), f.insert(t, f.doc("another text entirely"), document.Minimal))
}
