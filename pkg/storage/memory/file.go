package memory

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/narrowdown/pkg/storage"
)

// lz4FrameMagic is the little-endian LZ4 frame magic number 0x184D2204.
var lz4FrameMagic = []byte{0x04, 0x22, 0x4d, 0x18}

type fileOptions struct {
	compress bool
}

// FileOption configures ToFile.
type FileOption func(*fileOptions)

// WithCompression wraps the snapshot in an LZ4 frame.
func WithCompression() FileOption {
	return func(o *fileOptions) {
		o.compress = true
	}
}

// WriteSnapshot writes the snapshot of s to w.
func (s *Store) WriteSnapshot(w io.Writer, opts ...FileOption) error {
	var o fileOptions
	for _, opt := range opts {
		opt(&o)
	}

	data := s.Serialize()

	if !o.compress {
		_, err := w.Write(data)

		return err
	}

	zw := lz4.NewWriter(w)

	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("lz4 write: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("lz4 close: %w", err)
	}

	return nil
}

// ReadSnapshot restores a store from r, accepting plain and LZ4-framed
// snapshots.
func ReadSnapshot(r io.Reader) (*Store, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read snapshot: %w", storage.ErrIO, err)
	}

	if bytes.HasPrefix(data, lz4FrameMagic) {
		data, err = io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("%w: lz4 frame: %w", storage.ErrMalformedSnapshot, err)
		}
	}

	return Deserialize(data)
}

// ToFile writes the snapshot to path. The file is written to a temporary
// sibling and renamed into place, so readers never see a partial snapshot.
func (s *Store) ToFile(path string, opts ...FileOption) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create snapshot %s: %w", storage.ErrIO, path, err)
	}

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = s.WriteSnapshot(tmp, opts...); err != nil {
		return fmt.Errorf("%w: write snapshot %s: %w", storage.ErrIO, path, err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: close snapshot %s: %w", storage.ErrIO, path, err)
	}

	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: rename snapshot %s: %w", storage.ErrIO, path, err)
	}

	return nil
}

// FromFile restores a store from a snapshot file written by ToFile.
func FromFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open snapshot %s: %w", storage.ErrIO, path, err)
	}
	defer f.Close()

	s, err := ReadSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}

	return s, nil
}
