package tokenize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Tokenizer kinds accepted by Parse.
const (
	KindWords = "words"
	KindChars = "chars"
)

// ErrInvalidDescriptor is returned for tokenizer descriptors Parse does not understand.
var ErrInvalidDescriptor = errors.New("tokenize: invalid descriptor")

// Parse builds a tokenizer from a textual descriptor, so the choice can live in
// configuration and in index settings:
//
//	words:N        word n-grams
//	chars:N        character n-grams padded with DefaultPad
//	chars:N:PAD    character n-grams padded with PAD; an empty PAD disables padding
func Parse(desc string) (Func, error) {
	kind, rest, _ := strings.Cut(desc, ":")
	nStr, pad, hasPad := strings.Cut(rest, ":")

	n, err := strconv.Atoi(nStr)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("%w: %q needs a positive n-gram length", ErrInvalidDescriptor, desc)
	}

	switch kind {
	case KindWords:
		if hasPad {
			return nil, fmt.Errorf("%w: %q: word n-grams take no padding", ErrInvalidDescriptor, desc)
		}

		return Words(n), nil
	case KindChars:
		if !hasPad {
			pad = DefaultPad
		}

		return Chars(n, pad), nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidDescriptor, kind)
	}
}
