// Package document defines the stored document record and its binary
// envelope: the compact wire form in which a document's text, exact-match
// key, fingerprint, and payload are persisted inside a storage backend.
package document

import (
	"github.com/Sumatoshi-tech/narrowdown/pkg/alg/minhash"
)

// StorageLevel selects which fields of a document are persisted. Levels are
// bit flags; Full keeps everything.
type StorageLevel uint8

// Storage levels. The exact-match key and the payload are kept at every
// level; fingerprints and document text are opt-in.
const (
	Minimal     StorageLevel = 0
	Fingerprint StorageLevel = 1
	Document    StorageLevel = 2
	Full        StorageLevel = 7
)

// Has reports whether every flag in other is set in l.
func (l StorageLevel) Has(other StorageLevel) bool {
	return l&other == other
}

// String returns the level name for the canonical levels.
func (l StorageLevel) String() string {
	switch l {
	case Minimal:
		return "minimal"
	case Fingerprint:
		return "fingerprint"
	case Document:
		return "document"
	case Full:
		return "full"
	}

	names := ""
	for _, flag := range []StorageLevel{Fingerprint, Document} {
		if l.Has(flag) {
			if names != "" {
				names += "|"
			}

			names += flag.String()
		}
	}

	return names
}

// ParseStorageLevel resolves a level name produced by String.
func ParseStorageLevel(name string) (StorageLevel, bool) {
	for _, l := range []StorageLevel{Minimal, Fingerprint, Document, Full, Fingerprint | Document} {
		if l.String() == name {
			return l, true
		}
	}

	return 0, false
}

// StoredDocument combines every field a document may carry. Nil pointers
// and a nil fingerprint mean "absent".
type StoredDocument struct {
	// ID is the storage identifier; it is assigned by the backend and is
	// not part of the envelope.
	ID uint64

	// Document is the content used for fuzzy matching.
	Document *string

	// ExactPart must match exactly for two documents to be candidates.
	ExactPart *string

	// Fingerprint is the MinHash signature of Document.
	Fingerprint minhash.Fingerprint

	// Data is an opaque payload persisted with the document.
	Data *string
}

// Without returns a copy holding only the fields the storage level keeps.
func (d StoredDocument) Without(level StorageLevel) StoredDocument {
	out := StoredDocument{
		ID:        d.ID,
		ExactPart: d.ExactPart,
		Data:      d.Data,
	}

	if level.Has(Fingerprint) {
		out.Fingerprint = d.Fingerprint
	}

	if level.Has(Document) {
		out.Document = d.Document
	}

	return out
}

// Text returns the document text or "" when absent.
func (d StoredDocument) Text() string {
	return deref(d.Document)
}

// Exact returns the exact-match key or "" when absent.
func (d StoredDocument) Exact() string {
	return deref(d.ExactPart)
}

// Payload returns the payload or "" when absent.
func (d StoredDocument) Payload() string {
	return deref(d.Data)
}

// Ptr returns a pointer to s, for filling optional fields.
func Ptr(s string) *string {
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
