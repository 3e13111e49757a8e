package memory

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/narrowdown/pkg/storage"
)

func TestToFile_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []FileOption
	}{
		{name: "plain"},
		{name: "lz4", opts: []FileOption{WithCompression()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "store.snap")
			original := populatedStore()

			require.NoError(t, original.ToFile(path, tt.opts...))

			restored, err := FromFile(path)
			require.NoError(t, err)
			assertStoresEqual(t, original, restored)
		})
	}
}

func TestToFile_CompressedHasFrameMagic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.snap.lz4")
	require.NoError(t, populatedStore().ToFile(path, WithCompression()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, lz4FrameMagic))
}

func TestToFile_OverwritesAndLeavesNoTemp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "store.snap")

	require.NoError(t, New().ToFile(path))
	require.NoError(t, populatedStore().ToFile(path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	restored, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Len())
}

func TestToFile_MissingDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "absent", "store.snap")

	err := New().ToFile(path)

	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrIO)
	assert.Contains(t, err.Error(), path)
}

func TestFromFile_Missing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nope.snap")

	s, err := FromFile(path)

	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrIO)
	assert.Nil(t, s)
}

func TestFromFile_Garbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "garbage.snap")
	require.NoError(t, os.WriteFile(path, []byte("definitely not msgpack"), 0o600))

	_, err := FromFile(path)

	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrMalformedSnapshot)
}

func TestReadSnapshot_CorruptFrame(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, populatedStore().WriteSnapshot(&buf, WithCompression()))

	corrupt := buf.Bytes()[:buf.Len()/2]

	_, err := ReadSnapshot(bytes.NewReader(corrupt))

	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrMalformedSnapshot)
}
