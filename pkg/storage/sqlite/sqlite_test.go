package sqlite

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/narrowdown/pkg/storage"
)

func openStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestStore_Settings(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()

	_, ok, err := s.QuerySetting(ctx, "rows")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.InsertSetting(ctx, "rows", "5"))
	require.NoError(t, s.InsertSetting(ctx, "rows", "9"))

	v, ok, err := s.QuerySetting(ctx, "rows")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "9", v)
}

func TestStore_ExplicitThenAutoID(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutDocument(ctx, 5, []byte("five")))

	id, err := s.InsertDocument(ctx, []byte("auto"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	doc, ok, err := s.QueryDocument(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("five"), doc)
}

func TestStore_PutDocumentIDZero(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutDocument(ctx, 0, []byte("old")))
	require.NoError(t, s.PutDocument(ctx, 0, []byte("new")))

	doc, ok, err := s.QueryDocument(ctx, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("new"), doc)

	id, err := s.InsertDocument(ctx, []byte("auto"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
}

func TestStore_AutoIDSkipsTaken(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()

	for _, id := range []uint64{1, 2, 4} {
		require.NoError(t, s.PutDocument(ctx, id, []byte("x")))
	}

	got := make([]uint64, 0, 2)

	for range 2 {
		id, err := s.InsertDocument(ctx, []byte("auto"))
		require.NoError(t, err)

		got = append(got, id)
	}

	assert.Equal(t, []uint64{3, 5}, got)
}

func TestStore_RemovalDoesNotRewindCursor(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()

	first, err := s.InsertDocument(ctx, []byte("a"))
	require.NoError(t, err)
	require.NoError(t, s.RemoveDocument(ctx, first))

	_, ok, err := s.QueryDocument(ctx, first)
	require.NoError(t, err)
	assert.False(t, ok)

	second, err := s.InsertDocument(ctx, []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, first+1, second)
}

func TestStore_FullRangeIDs(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()

	ids := []uint64{math.MaxUint64, 1 << 63, math.MaxInt64, 3}

	for _, id := range ids {
		require.NoError(t, s.PutDocument(ctx, id, []byte("x")))
		require.NoError(t, s.AddDocumentToBucket(ctx, 1, 2, id))
	}

	got, err := s.QueryIDsFromBucket(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, math.MaxInt64, 1 << 63, math.MaxUint64}, got)

	_, ok, err := s.QueryDocument(ctx, math.MaxUint64)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_Buckets(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddDocumentToBucket(ctx, 3, 42, 7))
	require.NoError(t, s.AddDocumentToBucket(ctx, 3, 42, 7))
	require.NoError(t, s.AddDocumentToBucket(ctx, 3, 42, 8))
	require.NoError(t, s.AddDocumentToBucket(ctx, 4, 42, 9))

	ids, err := s.QueryIDsFromBucket(ctx, 3, 42)
	require.NoError(t, err)
	assert.Equal(t, []uint64{7, 8}, ids)

	require.NoError(t, s.RemoveIDFromBucket(ctx, 3, 42, 7))
	require.NoError(t, s.RemoveIDFromBucket(ctx, 3, 99, 7))

	ids, err = s.QueryIDsFromBucket(ctx, 3, 42)
	require.NoError(t, err)
	assert.Equal(t, []uint64{8}, ids)

	empty, err := s.QueryIDsFromBucket(ctx, 5, 5)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestStore_RemoveDocumentKeepsBuckets(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()

	id, err := s.InsertDocument(ctx, []byte("doc"))
	require.NoError(t, err)
	require.NoError(t, s.AddDocumentToBucket(ctx, 0, 1, id))
	require.NoError(t, s.RemoveDocument(ctx, id))

	ids, err := s.QueryIDsFromBucket(ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{id}, ids)
}

func TestStore_Reopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)

	require.NoError(t, s.InsertSetting(ctx, "k", "v"))

	id, err := s.InsertDocument(ctx, []byte("doc"))
	require.NoError(t, err)
	require.NoError(t, s.AddDocumentToBucket(ctx, 1, 1, id))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	v, ok, err := s.QuerySetting(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	ids, err := s.QueryIDsFromBucket(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{id}, ids)

	next, err := s.InsertDocument(ctx, []byte("next"))
	require.NoError(t, err)
	assert.Equal(t, id+1, next)
}

func TestStore_Closed(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.InsertSetting(ctx, "k", "v"), storage.ErrClosed)

	_, _, err := s.QueryDocument(ctx, 1)
	require.ErrorIs(t, err, storage.ErrClosed)

	_, err = s.InsertDocument(ctx, []byte("x"))
	require.ErrorIs(t, err, storage.ErrClosed)
}

func TestOpen_BadPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing", "index.db"))

	require.ErrorIs(t, err, storage.ErrIO)
}

func TestStore_ConcurrentAutoIDs(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()

	const workers, perWorker = 4, 10

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = make(map[uint64]bool)
	)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range perWorker {
				id, err := s.InsertDocument(ctx, []byte("x"))
				if !assert.NoError(t, err) {
					return
				}

				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}
