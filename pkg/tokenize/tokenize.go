// Package tokenize splits text into the shingles that MinHash fingerprints
// are computed from. Every function returns a deduplicated set in order of
// first appearance.
package tokenize

import (
	"strings"
)

// DefaultWordN is the word n-gram length of the default tokenizer.
const DefaultWordN = 3

// DefaultPad is the padding CharNgrams callers conventionally use.
const DefaultPad = "$"

// Func turns a document into its shingles.
type Func func(string) []string

// Words returns a tokenizer producing word n-grams of length n.
func Words(n int) Func {
	return func(s string) []string {
		return WordNgrams(s, n)
	}
}

// Chars returns a tokenizer producing padded character n-grams of length n.
func Chars(n int, pad string) Func {
	return func(s string) []string {
		return CharNgrams(s, n, pad)
	}
}

// Default is word 3-grams.
func Default() Func {
	return Words(DefaultWordN)
}

// WordNgrams splits s on whitespace and joins every run of n consecutive
// words with a single space. A text shorter than n words yields one n-gram
// holding all of its words.
func WordNgrams(s string, n int) []string {
	words := strings.Fields(s)
	if len(words) == 0 || n <= 0 {
		return []string{}
	}

	if len(words) <= n {
		return []string{strings.Join(words, " ")}
	}

	set := newOrderedSet(len(words) - n + 1)
	for i := 0; i+n <= len(words); i++ {
		set.add(strings.Join(words[i:i+n], " "))
	}

	return set.items
}

// CharNgrams returns every run of n characters in s after padding both ends
// with n-1 copies of pad. An empty pad disables padding. Characters are
// Unicode code points.
func CharNgrams(s string, n int, pad string) []string {
	if s == "" || n <= 0 {
		return []string{}
	}

	padding := strings.Repeat(pad, n-1)
	runes := []rune(padding + s + padding)

	if len(runes) < n {
		return []string{}
	}

	set := newOrderedSet(len(runes) - n + 1)
	for i := 0; i+n <= len(runes); i++ {
		set.add(string(runes[i : i+n]))
	}

	return set.items
}

// CountCharNgrams is CharNgrams with multiplicities.
func CountCharNgrams(s string, n int, pad string) map[string]int {
	counts := make(map[string]int)
	if s == "" || n <= 0 {
		return counts
	}

	padding := strings.Repeat(pad, n-1)
	runes := []rune(padding + s + padding)

	for i := 0; i+n <= len(runes); i++ {
		counts[string(runes[i:i+n])]++
	}

	return counts
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet(capacity int) *orderedSet {
	return &orderedSet{
		seen:  make(map[string]struct{}, capacity),
		items: make([]string, 0, capacity),
	}
}

func (o *orderedSet) add(s string) {
	if _, ok := o.seen[s]; ok {
		return
	}

	o.seen[s] = struct{}{}
	o.items = append(o.items, s)
}
