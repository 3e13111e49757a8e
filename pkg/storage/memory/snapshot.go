package memory

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/tinylib/msgp/msgp"

	"github.com/Sumatoshi-tech/narrowdown/pkg/storage"
)

// SnapshotVersion is the snapshot layout written by Serialize.
const SnapshotVersion = 1

// Snapshot keys. A snapshot is a MessagePack map:
//
//	version     uint
//	settings    map[string]string
//	documents   map[uint64]bin
//	buckets     map[band id]map[band hash][]uint64
//	last_doc_id uint64
const (
	keyVersion   = "version"
	keySettings  = "settings"
	keyDocuments = "documents"
	keyBuckets   = "buckets"
	keyLastDocID = "last_doc_id"

	snapshotKeys = 5
)

// Serialize encodes the whole store. Map entries are written in key order,
// so equal stores serialize to equal bytes. Empty buckets are kept.
func (s *Store) Serialize() []byte {
	b := make([]byte, 0, s.sizeHint())
	b = msgp.AppendMapHeader(b, snapshotKeys)

	b = msgp.AppendString(b, keyVersion)
	b = msgp.AppendUint(b, SnapshotVersion)

	b = msgp.AppendString(b, keySettings)
	b = msgp.AppendMapHeader(b, uint32(len(s.settings)))

	for _, k := range slices.Sorted(maps.Keys(s.settings)) {
		b = msgp.AppendString(b, k)
		b = msgp.AppendString(b, s.settings[k])
	}

	b = msgp.AppendString(b, keyDocuments)
	b = msgp.AppendMapHeader(b, uint32(len(s.documents)))

	for _, id := range slices.Sorted(maps.Keys(s.documents)) {
		b = msgp.AppendUint64(b, id)
		b = msgp.AppendBytes(b, s.documents[id])
	}

	b = msgp.AppendString(b, keyBuckets)
	b = s.appendBuckets(b)

	b = msgp.AppendString(b, keyLastDocID)
	b = msgp.AppendUint64(b, s.lastAssignedID)

	return b
}

func (s *Store) appendBuckets(b []byte) []byte {
	byBand := make(map[uint32][]BandKey)
	for key := range s.buckets {
		byBand[key.BandID] = append(byBand[key.BandID], key)
	}

	b = msgp.AppendMapHeader(b, uint32(len(byBand)))

	for _, band := range slices.Sorted(maps.Keys(byBand)) {
		keys := byBand[band]
		slices.SortFunc(keys, func(x, y BandKey) int { return cmp.Compare(x.BandHash, y.BandHash) })

		b = msgp.AppendUint32(b, band)
		b = msgp.AppendMapHeader(b, uint32(len(keys)))

		for _, key := range keys {
			ids := s.buckets[key].ToArray()

			b = msgp.AppendUint32(b, key.BandHash)
			b = msgp.AppendArrayHeader(b, uint32(len(ids)))

			for _, id := range ids {
				b = msgp.AppendUint64(b, id)
			}
		}
	}

	return b
}

func (s *Store) sizeHint() int {
	const overhead = 64

	n := overhead
	for k, v := range s.settings {
		n += len(k) + len(v) + msgp.StringPrefixSize*2
	}

	for _, doc := range s.documents {
		n += len(doc) + msgp.Uint64Size + msgp.BytesPrefixSize
	}

	return n + len(s.buckets)*2*msgp.Uint32Size
}

// Deserialize restores a store from bytes produced by Serialize.
// Unknown top-level keys are skipped. Truncated, mistyped, or trailing
// input fails with storage.ErrMalformedSnapshot.
func Deserialize(data []byte) (*Store, error) {
	s := New()

	n, rest, err := msgp.ReadMapHeaderBytes(data)
	if err != nil {
		return nil, malformed("header", err)
	}

	hasVersion := false

	for range n {
		var key string

		key, rest, err = msgp.ReadStringBytes(rest)
		if err != nil {
			return nil, malformed("key", err)
		}

		switch key {
		case keyVersion:
			var v uint

			v, rest, err = msgp.ReadUintBytes(rest)
			if err == nil && v != SnapshotVersion {
				err = fmt.Errorf("unsupported snapshot version %d", v)
			}

			hasVersion = true
		case keySettings:
			rest, err = s.readSettings(rest)
		case keyDocuments:
			rest, err = s.readDocuments(rest)
		case keyBuckets:
			rest, err = s.readBuckets(rest)
		case keyLastDocID:
			s.lastAssignedID, rest, err = msgp.ReadUint64Bytes(rest)
		default:
			rest, err = msgp.Skip(rest)
		}

		if err != nil {
			return nil, malformed(key, err)
		}
	}

	if !hasVersion {
		return nil, malformed(keyVersion, errors.New("missing"))
	}

	if len(rest) > 0 {
		return nil, malformed("trailer", fmt.Errorf("%d unexpected trailing bytes", len(rest)))
	}

	return s, nil
}

func (s *Store) readSettings(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, err
	}

	for range n {
		var k, v string

		k, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return nil, err
		}

		v, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return nil, err
		}

		s.settings[k] = v
	}

	return b, nil
}

func (s *Store) readDocuments(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, err
	}

	for range n {
		var (
			id  uint64
			doc []byte
		)

		id, b, err = msgp.ReadUint64Bytes(b)
		if err != nil {
			return nil, err
		}

		doc, b, err = msgp.ReadBytesBytes(b, nil)
		if err != nil {
			return nil, err
		}

		if doc == nil {
			doc = []byte{}
		}

		s.documents[id] = doc
	}

	return b, nil
}

func (s *Store) readBuckets(b []byte) ([]byte, error) {
	bands, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, err
	}

	for range bands {
		var (
			bandID uint32
			hashes uint32
		)

		bandID, b, err = msgp.ReadUint32Bytes(b)
		if err != nil {
			return nil, err
		}

		hashes, b, err = msgp.ReadMapHeaderBytes(b)
		if err != nil {
			return nil, err
		}

		for range hashes {
			var (
				bandHash uint32
				count    uint32
			)

			bandHash, b, err = msgp.ReadUint32Bytes(b)
			if err != nil {
				return nil, err
			}

			count, b, err = msgp.ReadArrayHeaderBytes(b)
			if err != nil {
				return nil, err
			}

			bucket := roaring64.New()

			for range count {
				var id uint64

				id, b, err = msgp.ReadUint64Bytes(b)
				if err != nil {
					return nil, err
				}

				bucket.Add(id)
			}

			s.buckets[BandKey{BandID: bandID, BandHash: bandHash}] = bucket
		}
	}

	return b, nil
}

func malformed(section string, err error) error {
	return fmt.Errorf("%w: %s: %w", storage.ErrMalformedSnapshot, section, err)
}
