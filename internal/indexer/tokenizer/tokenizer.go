// Package tokenizer turns text into normalized search terms. The indexer and
// the query engine must tokenize with identically configured Tokenizers, so
// the locale list is recorded in every serialized index.
//
// Text is split on Unicode word boundaries (UAX #29) and combining marks are
// kept with the character they follow. Segments without a letter, number or
// symbol are dropped, and every remaining segment is NFKC normalized, trimmed
// and lower-cased using the first configured locale.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/segment"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Tokenizer is immutable and safe for concurrent use.
type Tokenizer struct {
	locales []string
	tag     language.Tag
}

// New builds a Tokenizer for an explicit locale list. Every entry must be a
// valid BCP 47 tag; case folding follows the first one.
func New(locales []string) (*Tokenizer, error) {
	if len(locales) == 0 {
		return nil, fmt.Errorf("tokenizer needs at least one locale")
	}
	tags := make([]language.Tag, 0, len(locales))
	for _, locale := range locales {
		tag, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("parsing locale %q: %w", locale, err)
		}
		tags = append(tags, tag)
	}
	return &Tokenizer{
		locales: append([]string(nil), locales...),
		tag:     tags[0],
	}, nil
}

// Locales returns a copy of the configured locale list.
func (t *Tokenizer) Locales() []string {
	return append([]string(nil), t.locales...)
}

// Tokenize returns the normalized terms of text in order of appearance. It
// never fails: invalid UTF-8 is replaced before segmentation.
func (t *Tokenizer) Tokenize(text string) []string {
	terms := make([]string, 0, len(text)/6)
	if text == "" {
		return terms
	}
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	// Casers carry state between calls and cannot be shared across goroutines.
	caser := cases.Lower(t.tag)
	var word []byte
	emit := func() {
		if hasSearchableRune(word) {
			if term := normalize(caser, string(word)); term != "" {
				terms = append(terms, term)
			}
		}
		word = word[:0]
	}
	segmenter := segment.NewWordSegmenterDirect([]byte(text))
	for segmenter.Segment() {
		next := segmenter.Bytes()
		// The segmenter splits Thai and Lao vowel and tone marks from their
		// base letter.
		if len(word) > 0 && onlyMarks(next) {
			word = append(word, next...)
			continue
		}
		emit()
		word = append(word, next...)
	}
	emit()
	return terms
}

// Normalize applies the per-term normalization without segmenting. Applying
// it to its own output is a no-op.
func (t *Tokenizer) Normalize(term string) string {
	return normalize(cases.Lower(t.tag), term)
}

func normalize(caser cases.Caser, term string) string {
	term = strings.TrimSpace(norm.NFKC.String(term))
	// Lower-casing can emit sequences NFKC would recompose.
	return norm.NFKC.String(caser.String(term))
}

func hasSearchableRune(word []byte) bool {
	for len(word) > 0 {
		r, size := utf8.DecodeRune(word)
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSymbol(r) {
			return true
		}
		word = word[size:]
	}
	return false
}

func onlyMarks(word []byte) bool {
	if len(word) == 0 {
		return false
	}
	for len(word) > 0 {
		r, size := utf8.DecodeRune(word)
		if !unicode.IsMark(r) {
			return false
		}
		word = word[size:]
	}
	return true
}
