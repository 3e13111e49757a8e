// Package lsh provides the MinHash Locality-Sensitive Hashing layer: the
// banding probability model, the search for an optimal band layout, and an
// Index that files documents into buckets of a storage backend.
//
// A fingerprint of NumBands*RowsPerBand hashes is cut into NumBands bands
// of RowsPerBand consecutive values. Each band is hashed into a bucket key;
// two documents become candidates when any band lands in the same bucket.
// Higher NumBands lowers the similarity at which that becomes likely.
package lsh

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/narrowdown/pkg/alg/minhash"
	"github.com/Sumatoshi-tech/narrowdown/pkg/document"
	"github.com/Sumatoshi-tech/narrowdown/pkg/safeconv"
	"github.com/Sumatoshi-tech/narrowdown/pkg/storage"
)

// defaultFetchLimit bounds concurrent backend lookups per query.
const defaultFetchLimit = 16

var (
	// ErrSizeMismatch is returned when a fingerprint is shorter than the band layout.
	ErrSizeMismatch = errors.New("lsh: fingerprint too short for band layout")

	// ErrMissingFingerprint is returned when indexing a document without a fingerprint.
	ErrMissingFingerprint = errors.New("lsh: document has no fingerprint")

	// ErrTooLowStorageLevel is returned when a stored document lacks the
	// fingerprint needed to locate its buckets.
	ErrTooLowStorageLevel = errors.New("lsh: storage level too low")
)

func sizeMismatch(got, need int) error {
	return fmt.Errorf("%w: got %d hashes, need %d", ErrSizeMismatch, got, need)
}

// Index files documents into LSH buckets of a storage backend.
//
// Index holds no state besides its configuration; concurrent use is as safe
// as the backend it wraps.
type Index struct {
	backend    storage.Backend
	cfg        Config
	fetchLimit int
}

// Option configures an Index.
type Option func(*Index)

// WithFetchLimit bounds the number of concurrent backend lookups per query.
func WithFetchLimit(n int) Option {
	return func(idx *Index) {
		if n > 0 {
			idx.fetchLimit = n
		}
	}
}

// NewIndex creates an index over backend with the band layout cfg.
func NewIndex(backend storage.Backend, cfg Config, opts ...Option) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	idx := &Index{backend: backend, cfg: cfg, fetchLimit: defaultFetchLimit}
	for _, opt := range opts {
		opt(idx)
	}

	return idx, nil
}

// Config returns the band layout.
func (idx *Index) Config() Config {
	return idx.cfg
}

// Insert stores doc under a fresh id, keeping the fields level selects,
// and adds it to one bucket per band. doc.ID is ignored. The returned id is
// the one the document was stored under.
func (idx *Index) Insert(ctx context.Context, doc document.StoredDocument, level document.StorageLevel) (uint64, error) {
	hashes, err := idx.bandHashes(doc)
	if err != nil {
		return 0, err
	}

	id, err := idx.backend.InsertDocument(ctx, document.Encode(doc.Without(level)))
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}

	return id, idx.addToBuckets(ctx, id, hashes)
}

// Put stores doc under doc.ID, which may be any value including 0, and adds
// it to one bucket per band. A document already stored under that id is
// overwritten; its old bucket memberships stay until RemoveByID.
func (idx *Index) Put(ctx context.Context, doc document.StoredDocument, level document.StorageLevel) error {
	hashes, err := idx.bandHashes(doc)
	if err != nil {
		return err
	}

	if err = idx.backend.PutDocument(ctx, doc.ID, document.Encode(doc.Without(level))); err != nil {
		return fmt.Errorf("put document %d: %w", doc.ID, err)
	}

	return idx.addToBuckets(ctx, doc.ID, hashes)
}

func (idx *Index) bandHashes(doc document.StoredDocument) ([]uint32, error) {
	if doc.Fingerprint == nil {
		return nil, ErrMissingFingerprint
	}

	return BandHashes(idx.cfg, doc.Fingerprint, doc.Exact())
}

func (idx *Index) addToBuckets(ctx context.Context, id uint64, hashes []uint32) error {
	for band, h := range hashes {
		err := idx.backend.AddDocumentToBucket(ctx, safeconv.MustIntToUint32(band), h, id)
		if err != nil {
			return fmt.Errorf("add document %d to band %d: %w", id, band, err)
		}
	}

	return nil
}

// Query returns the stored documents sharing at least one bucket with fp,
// ordered by id. Only documents with the same exact part can match.
// Bucket members whose document is gone are skipped.
func (idx *Index) Query(ctx context.Context, fp minhash.Fingerprint, exactPart string) ([]document.StoredDocument, error) {
	ids, err := idx.Candidates(ctx, fp, exactPart)
	if err != nil {
		return nil, err
	}

	docs := make([]document.StoredDocument, len(ids))
	found := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.fetchLimit)

	for i, id := range ids {
		g.Go(func() error {
			raw, ok, qerr := idx.backend.QueryDocument(gctx, id)
			if qerr != nil {
				return fmt.Errorf("query document %d: %w", id, qerr)
			}

			if !ok {
				return nil
			}

			doc, derr := document.Decode(raw)
			if derr != nil {
				return fmt.Errorf("document %d: %w", id, derr)
			}

			doc.ID = id
			docs[i] = doc
			found[i] = true

			return nil
		})
	}

	if err = g.Wait(); err != nil {
		return nil, err
	}

	out := docs[:0]

	for i, doc := range docs {
		if found[i] {
			out = append(out, doc)
		}
	}

	return out, nil
}

// Candidates returns the sorted ids sharing at least one bucket with fp.
func (idx *Index) Candidates(ctx context.Context, fp minhash.Fingerprint, exactPart string) ([]uint64, error) {
	hashes, err := BandHashes(idx.cfg, fp, exactPart)
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		seen = make(map[uint64]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.fetchLimit)

	for band, h := range hashes {
		g.Go(func() error {
			ids, qerr := idx.backend.QueryIDsFromBucket(gctx, safeconv.MustIntToUint32(band), h)
			if qerr != nil {
				return fmt.Errorf("query band %d: %w", band, qerr)
			}

			mu.Lock()
			for _, id := range ids {
				seen[id] = struct{}{}
			}
			mu.Unlock()

			return nil
		})
	}

	if err = g.Wait(); err != nil {
		return nil, err
	}

	return slices.Sorted(maps.Keys(seen)), nil
}

// RemoveByID removes a document and its bucket memberships.
//
// A missing document is ignored unless checkIfExists is set, in which case
// storage.ErrNotFound is returned. A stored document without a fingerprint
// cannot be located in its buckets and fails with ErrTooLowStorageLevel.
func (idx *Index) RemoveByID(ctx context.Context, id uint64, checkIfExists bool) error {
	raw, ok, err := idx.backend.QueryDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("query document %d: %w", id, err)
	}

	if !ok {
		if checkIfExists {
			return fmt.Errorf("document %d: %w", id, storage.ErrNotFound)
		}

		return nil
	}

	doc, err := document.Decode(raw)
	if err != nil {
		return fmt.Errorf("document %d: %w", id, err)
	}

	if doc.Fingerprint == nil {
		return fmt.Errorf("%w: document %d was stored without fingerprint", ErrTooLowStorageLevel, id)
	}

	hashes, err := BandHashes(idx.cfg, doc.Fingerprint, doc.Exact())
	if err != nil {
		return err
	}

	for band, h := range hashes {
		err = idx.backend.RemoveIDFromBucket(ctx, safeconv.MustIntToUint32(band), h, id)
		if err != nil {
			return fmt.Errorf("remove document %d from band %d: %w", id, band, err)
		}
	}

	if err = idx.backend.RemoveDocument(ctx, id); err != nil {
		return fmt.Errorf("remove document %d: %w", id, err)
	}

	return nil
}
