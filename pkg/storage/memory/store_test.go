package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Settings Tests ---.

func TestSettings_InsertQueryOverwrite(t *testing.T) {
	t.Parallel()

	s := New()

	_, ok := s.QuerySetting("bands")
	assert.False(t, ok)

	s.InsertSetting("bands", "20")
	s.InsertSetting("bands", "22")

	v, ok := s.QuerySetting("bands")
	require.True(t, ok)
	assert.Equal(t, "22", v)
}

func TestSettings_CopyIsDetached(t *testing.T) {
	t.Parallel()

	s := New()
	s.InsertSetting("k", "v")

	copied := s.Settings()
	copied["k"] = "changed"

	v, _ := s.QuerySetting("k")
	assert.Equal(t, "v", v)
}

// --- Document Tests ---.

func TestInsertDocument_ExplicitThenAuto(t *testing.T) {
	t.Parallel()

	s := New()

	s.PutDocument(5, []byte("hello"))
	assert.Equal(t, uint64(0), s.LastAssignedID())

	auto := s.InsertDocument([]byte("world"))
	assert.Equal(t, uint64(1), auto)
	assert.Equal(t, uint64(1), s.LastAssignedID())

	doc, ok := s.QueryDocument(5)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), doc)

	s.RemoveDocument(5)

	_, ok = s.QueryDocument(5)
	assert.False(t, ok)
}

func TestInsertDocument_AutoSkipsTakenIDs(t *testing.T) {
	t.Parallel()

	s := New()
	s.PutDocument(1, []byte("a"))
	s.PutDocument(2, []byte("b"))
	s.PutDocument(4, []byte("d"))

	assert.Equal(t, uint64(3), s.InsertDocument([]byte("c")))
	assert.Equal(t, uint64(5), s.InsertDocument([]byte("e")))
	assert.Equal(t, uint64(5), s.LastAssignedID())
}

func TestInsertDocument_AutoMonotonic(t *testing.T) {
	t.Parallel()

	const n = 100

	s := New()
	seen := make(map[uint64]bool, n)
	prev := s.LastAssignedID()

	for range n {
		id := s.InsertDocument([]byte("doc"))

		assert.Greater(t, id, prev)
		assert.False(t, seen[id])

		seen[id] = true
		prev = id
	}

	assert.Len(t, seen, n)
	assert.Equal(t, n, s.Len())
}

func TestInsertDocument_RemovalDoesNotRewindCursor(t *testing.T) {
	t.Parallel()

	s := New()
	first := s.InsertDocument([]byte("a"))
	s.RemoveDocument(first)

	second := s.InsertDocument([]byte("b"))

	assert.Equal(t, first+1, second)
}

func TestInsertDocument_ExplicitHighIDDoesNotMoveCursor(t *testing.T) {
	t.Parallel()

	s := New()
	s.PutDocument(1000, []byte("reserved"))

	for want := uint64(1); want <= 3; want++ {
		assert.Equal(t, want, s.InsertDocument([]byte("x")))
	}

	assert.Equal(t, uint64(3), s.LastAssignedID())
}

func TestInsertDocument_ExplicitOverwrites(t *testing.T) {
	t.Parallel()

	s := New()
	id := s.InsertDocument([]byte("v1"))
	s.PutDocument(id, []byte("v2"))

	doc, ok := s.QueryDocument(id)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), doc)
	assert.Equal(t, 1, s.Len())
}

func TestPutDocument_IDZero(t *testing.T) {
	t.Parallel()

	s := New()
	s.PutDocument(0, []byte("zero"))
	s.PutDocument(0, []byte("zero again"))

	doc, ok := s.QueryDocument(0)
	require.True(t, ok)
	assert.Equal(t, []byte("zero again"), doc)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, uint64(0), s.LastAssignedID())

	assert.Equal(t, uint64(1), s.InsertDocument([]byte("auto")))
}

func TestPutDocument_OverwritesIDZeroFromSnapshot(t *testing.T) {
	t.Parallel()

	s := New()
	s.PutDocument(0, []byte("old"))

	restored, err := Deserialize(s.Serialize())
	require.NoError(t, err)

	restored.PutDocument(0, []byte("new"))

	doc, ok := restored.QueryDocument(0)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), doc)
	assert.Equal(t, 1, restored.Len())
}

func TestInsertDocument_PayloadIsCopied(t *testing.T) {
	t.Parallel()

	s := New()
	payload := []byte("abc")
	id := s.InsertDocument(payload)
	payload[0] = 'X'

	doc, _ := s.QueryDocument(id)
	assert.Equal(t, []byte("abc"), doc)
}

func TestRemoveDocument_AbsentIsNoop(t *testing.T) {
	t.Parallel()

	s := New()
	s.RemoveDocument(42)

	assert.Equal(t, 0, s.Len())
}

// --- Bucket Tests ---.

func TestBucket_AddQueryRemove(t *testing.T) {
	t.Parallel()

	s := New()
	s.AddDocumentToBucket(3, 42, 7)

	assert.Equal(t, []uint64{7}, s.QueryIDsFromBucket(3, 42))

	s.RemoveIDFromBucket(3, 42, 7)

	assert.Empty(t, s.QueryIDsFromBucket(3, 42))
	assert.Equal(t, 1, s.BucketCount())
}

func TestBucket_AddIsIdempotent(t *testing.T) {
	t.Parallel()

	s := New()
	s.AddDocumentToBucket(1, 2, 9)
	s.AddDocumentToBucket(1, 2, 9)

	assert.Equal(t, []uint64{9}, s.QueryIDsFromBucket(1, 2))
}

func TestBucket_MissingIsEmptyNotNil(t *testing.T) {
	t.Parallel()

	ids := New().QueryIDsFromBucket(0, 0)

	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestBucket_RemoveMissingIsNoop(t *testing.T) {
	t.Parallel()

	s := New()
	s.RemoveIDFromBucket(1, 1, 1)
	s.AddDocumentToBucket(1, 1, 2)
	s.RemoveIDFromBucket(1, 1, 3)

	assert.Equal(t, []uint64{2}, s.QueryIDsFromBucket(1, 1))
}

func TestBucket_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	s := New()
	s.AddDocumentToBucket(1, 100, 1)
	s.AddDocumentToBucket(2, 100, 2)
	s.AddDocumentToBucket(1, 101, 3)

	assert.Equal(t, []uint64{1}, s.QueryIDsFromBucket(1, 100))
	assert.Equal(t, []uint64{2}, s.QueryIDsFromBucket(2, 100))
	assert.Equal(t, []uint64{3}, s.QueryIDsFromBucket(1, 101))
}

func TestRemoveDocument_DoesNotCascadeToBuckets(t *testing.T) {
	t.Parallel()

	s := New()
	id := s.InsertDocument([]byte("doc"))
	s.AddDocumentToBucket(0, 11, id)

	s.RemoveDocument(id)

	assert.Equal(t, []uint64{id}, s.QueryIDsFromBucket(0, 11))
}

func TestString_Summary(t *testing.T) {
	t.Parallel()

	s := New()
	s.InsertSetting("rows", "5")
	s.InsertDocument([]byte("x"))

	assert.Equal(t, `memory.Store(size=1, buckets=0, settings={"rows":"5"})`, s.String())
}
