// Package memory implements the in-memory bucket/document store: settings,
// document payloads keyed by a 64-bit id, and LSH buckets keyed by
// (band id, band hash), with lossless binary snapshots.
//
// A Store has a single logical owner and no internal locking. Wrap it in a
// Backend for use from several goroutines.
package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// BandKey identifies one LSH bucket.
type BandKey struct {
	BandID   uint32
	BandHash uint32
}

// Store is the in-memory bucket/document store.
//
// Removing a document does not remove its id from buckets; callers that
// want cascading cleanup remove bucket memberships explicitly. Explicit
// document ids never move the auto-assignment cursor.
type Store struct {
	settings       map[string]string
	documents      map[uint64][]byte
	buckets        map[BandKey]*roaring64.Bitmap
	lastAssignedID uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		settings:  make(map[string]string),
		documents: make(map[uint64][]byte),
		buckets:   make(map[BandKey]*roaring64.Bitmap),
	}
}

// InsertSetting stores value under key, overwriting any previous value.
func (s *Store) InsertSetting(key, value string) {
	s.settings[key] = value
}

// QuerySetting returns the value stored under key.
func (s *Store) QuerySetting(key string) (string, bool) {
	v, ok := s.settings[key]

	return v, ok
}

// InsertDocument stores document under a fresh id and returns it.
//
// The store probes upward from LastAssignedID()+1 for the first unused id,
// skipping 0, stores the document there, and advances the cursor to that id.
func (s *Store) InsertDocument(document []byte) uint64 {
	id := s.nextFreeID()
	s.lastAssignedID = id
	s.documents[id] = bytes.Clone(document)

	return id
}

// PutDocument stores document under documentID, overwriting whatever is
// stored there. Any id is accepted, including 0. The cursor is untouched.
func (s *Store) PutDocument(documentID uint64, document []byte) {
	s.documents[documentID] = bytes.Clone(document)
}

func (s *Store) nextFreeID() uint64 {
	id := s.lastAssignedID + 1

	for {
		if id != 0 {
			if _, taken := s.documents[id]; !taken {
				return id
			}
		}

		id++
	}
}

// QueryDocument returns a copy of the document stored under documentID.
func (s *Store) QueryDocument(documentID uint64) ([]byte, bool) {
	doc, ok := s.documents[documentID]
	if !ok {
		return nil, false
	}

	return bytes.Clone(doc), true
}

// RemoveDocument deletes a document. Removing an absent id is a no-op.
func (s *Store) RemoveDocument(documentID uint64) {
	delete(s.documents, documentID)
}

// AddDocumentToBucket adds documentID to the bucket, creating it if needed.
// Adding an id that is already a member is a no-op.
func (s *Store) AddDocumentToBucket(bandID, bandHash uint32, documentID uint64) {
	key := BandKey{BandID: bandID, BandHash: bandHash}

	bucket, ok := s.buckets[key]
	if !ok {
		bucket = roaring64.New()
		s.buckets[key] = bucket
	}

	bucket.Add(documentID)
}

// QueryIDsFromBucket returns the members of a bucket, or an empty slice if
// the bucket does not exist. Callers must not rely on the order.
func (s *Store) QueryIDsFromBucket(bandID, bandHash uint32) []uint64 {
	bucket, ok := s.buckets[BandKey{BandID: bandID, BandHash: bandHash}]
	if !ok {
		return []uint64{}
	}

	return bucket.ToArray()
}

// RemoveIDFromBucket removes documentID from a bucket. The bucket itself
// stays, even when it becomes empty.
func (s *Store) RemoveIDFromBucket(bandID, bandHash uint32, documentID uint64) {
	if bucket, ok := s.buckets[BandKey{BandID: bandID, BandHash: bandHash}]; ok {
		bucket.Remove(documentID)
	}
}

// LastAssignedID returns the most recent automatically assigned id, or 0.
func (s *Store) LastAssignedID() uint64 {
	return s.lastAssignedID
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	return len(s.documents)
}

// BucketCount returns the number of buckets, including empty ones.
func (s *Store) BucketCount() int {
	return len(s.buckets)
}

// Settings returns a copy of all settings.
func (s *Store) Settings() map[string]string {
	return maps.Clone(s.settings)
}

// String summarizes the store for logs.
func (s *Store) String() string {
	settings, err := json.Marshal(s.settings)
	if err != nil {
		settings = []byte("{}")
	}

	return fmt.Sprintf("memory.Store(size=%d, buckets=%d, settings=%s)", len(s.documents), len(s.buckets), settings)
}
