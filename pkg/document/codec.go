package document

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/Sumatoshi-tech/narrowdown/pkg/alg/minhash"
)

// FormatVersion is the envelope format written by Encode. Decode rejects
// any other version.
const FormatVersion = 1

// Envelope field numbers. They follow the protobuf message
//
//	message StoredDocument {
//	  optional uint64 id = 1;
//	  optional string document = 2;
//	  optional string exact_part = 3;
//	  repeated uint32 fingerprint = 4 [packed = true];
//	  optional string data = 5;
//	  uint32 format_version = 15;
//	}
const (
	fieldID          protowire.Number = 1
	fieldDocument    protowire.Number = 2
	fieldExactPart   protowire.Number = 3
	fieldFingerprint protowire.Number = 4
	fieldData        protowire.Number = 5
	fieldVersion     protowire.Number = 15
)

// ErrMalformedInput is returned when bytes are not a well-formed envelope.
var ErrMalformedInput = errors.New("document: malformed envelope")

// Encode serializes d. The ID is never written. An empty fingerprint is
// written the same way as an absent one. The output is never empty: the
// format version is always present.
func Encode(d StoredDocument) []byte {
	size := 2
	for _, s := range []*string{d.Document, d.ExactPart, d.Data} {
		if s != nil {
			size += 1 + protowire.SizeBytes(len(*s))
		}
	}

	packed := 0
	for _, v := range d.Fingerprint {
		packed += protowire.SizeVarint(uint64(v))
	}

	if packed > 0 {
		size += 1 + protowire.SizeBytes(packed)
	}

	b := make([]byte, 0, size)
	b = appendOptionalString(b, fieldDocument, d.Document)
	b = appendOptionalString(b, fieldExactPart, d.ExactPart)

	if len(d.Fingerprint) > 0 {
		b = protowire.AppendTag(b, fieldFingerprint, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(packed))

		for _, v := range d.Fingerprint {
			b = protowire.AppendVarint(b, uint64(v))
		}
	}

	b = appendOptionalString(b, fieldData, d.Data)
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, FormatVersion)

	return b
}

// Decode parses an envelope produced by Encode. Unknown fields are skipped.
// A fingerprint field without values decodes as absent (nil).
func Decode(data []byte) (StoredDocument, error) {
	var (
		d          StoredDocument
		hasVersion bool
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return StoredDocument{}, malformed("tag", protowire.ParseError(n))
		}

		data = data[n:]

		var err error

		switch num {
		case fieldID:
			d.ID, n, err = consumeVarint(typ, data)
		case fieldDocument:
			d.Document, n, err = consumeString(typ, data)
		case fieldExactPart:
			d.ExactPart, n, err = consumeString(typ, data)
		case fieldData:
			d.Data, n, err = consumeString(typ, data)
		case fieldFingerprint:
			d.Fingerprint, n, err = consumeFingerprint(typ, data, d.Fingerprint)
		case fieldVersion:
			var v uint64

			v, n, err = consumeVarint(typ, data)
			if err == nil && v != FormatVersion {
				err = fmt.Errorf("unsupported format version %d", v)
			}

			hasVersion = true
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				err = protowire.ParseError(n)
			}
		}

		if err != nil {
			return StoredDocument{}, malformed(fmt.Sprintf("field %d", num), err)
		}

		data = data[n:]
	}

	if !hasVersion {
		return StoredDocument{}, malformed("envelope", errors.New("missing format version"))
	}

	if len(d.Fingerprint) == 0 {
		d.Fingerprint = nil
	}

	return d, nil
}

func malformed(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrMalformedInput, what, err)
}

func appendOptionalString(b []byte, num protowire.Number, s *string) []byte {
	if s == nil {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendString(b, *s)
}

func consumeVarint(typ protowire.Type, data []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("wire type %d, want varint", typ)
	}

	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}

	return v, n, nil
}

func consumeString(typ protowire.Type, data []byte) (*string, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("wire type %d, want bytes", typ)
	}

	raw, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}

	if !utf8.Valid(raw) {
		return nil, 0, errors.New("invalid UTF-8 in string field")
	}

	s := string(raw)

	return &s, n, nil
}

// consumeFingerprint accepts both packed and unpacked encodings, appending
// to acc so repeated occurrences concatenate.
func consumeFingerprint(typ protowire.Type, data []byte, acc minhash.Fingerprint) (minhash.Fingerprint, int, error) {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return nil, 0, protowire.ParseError(n)
		}

		if v > math.MaxUint32 {
			return nil, 0, fmt.Errorf("fingerprint value %d overflows uint32", v)
		}

		return append(acc, uint32(v)), n, nil
	case protowire.BytesType:
		raw, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, 0, protowire.ParseError(n)
		}

		for len(raw) > 0 {
			v, m := protowire.ConsumeVarint(raw)
			if m < 0 {
				return nil, 0, protowire.ParseError(m)
			}

			if v > math.MaxUint32 {
				return nil, 0, fmt.Errorf("fingerprint value %d overflows uint32", v)
			}

			acc = append(acc, uint32(v))
			raw = raw[m:]
		}

		return acc, n, nil
	default:
		return nil, 0, fmt.Errorf("wire type %d, want varint or bytes", typ)
	}
}
