// Package loader turns a serialized index blob into a Snapshot, the
// read-only structure the query engine searches. A Snapshot is never
// modified after Load returns and may be shared by any number of goroutines.
package loader

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/article-search/pkg/errors"
)

type Snapshot struct {
	idx       *index.InvertedIndex
	terms     []string
	termRunes []int
	fieldPos  map[string]int
	avgLength []float64
	// docFreq[t*len(fields)+f] is the number of documents whose field f
	// contains term t.
	docFreq   []int32
	tokenizer *tokenizer.Tokenizer
	checksum  uint32
	blobSize  int
	loadedAt  time.Time
}

// Stats summarises a loaded snapshot for the stats endpoint and logs.
type Stats struct {
	Checksum  string    `json:"checksum"`
	Version   uint32    `json:"version"`
	Documents int       `json:"documents"`
	Terms     int       `json:"terms"`
	Fields    []string  `json:"fields"`
	Locales   []string  `json:"locales"`
	BlobBytes int       `json:"blob_bytes"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// Load decodes blob and prepares lookup structures. Errors are
// *errors.DeserializeError; on error nothing usable is returned.
func Load(blob []byte) (*Snapshot, error) {
	idx, err := segment.Decode(blob)
	if err != nil {
		return nil, err
	}
	header, err := segment.ReadHeader(blob)
	if err != nil {
		return nil, err
	}
	tok, err := tokenizer.New(idx.Locales)
	if err != nil {
		return nil, apperrors.Malformed("recorded tokenizer locales are unusable", err)
	}

	numFields := len(idx.Fields)
	snap := &Snapshot{
		idx:       idx,
		terms:     make([]string, len(idx.Terms)),
		termRunes: make([]int, len(idx.Terms)),
		fieldPos:  make(map[string]int, numFields),
		avgLength: make([]float64, numFields),
		docFreq:   make([]int32, len(idx.Terms)*numFields),
		tokenizer: tok,
		checksum:  header.Checksum,
		blobSize:  len(blob),
		loadedAt:  time.Now().UTC(),
	}
	for f, field := range idx.Fields {
		snap.fieldPos[field.Name] = f
		snap.avgLength[f] = field.AvgLength
	}
	for t, entry := range idx.Terms {
		snap.terms[t] = entry.Term
		snap.termRunes[t] = utf8.RuneCountInString(entry.Term)
		for _, posting := range entry.Postings {
			snap.docFreq[t*numFields+posting.Field]++
		}
	}
	return snap, nil
}

func (s *Snapshot) Checksum() uint32 { return s.checksum }

func (s *Snapshot) ChecksumHex() string { return fmt.Sprintf("%08x", s.checksum) }

func (s *Snapshot) Tokenizer() *tokenizer.Tokenizer { return s.tokenizer }

func (s *Snapshot) DocCount() int { return len(s.idx.Docs) }

func (s *Snapshot) TermCount() int { return len(s.terms) }

func (s *Snapshot) FieldCount() int { return len(s.idx.Fields) }

func (s *Snapshot) Fields() []string { return s.idx.FieldNames() }

// FieldIndex maps a field name to its position in postings.
func (s *Snapshot) FieldIndex(name string) (int, bool) {
	f, ok := s.fieldPos[name]
	return f, ok
}

func (s *Snapshot) AvgFieldLength(field int) float64 { return s.avgLength[field] }

// Doc returns the stored entry for document ordinal doc.
func (s *Snapshot) Doc(doc int) index.DocEntry { return s.idx.Docs[doc] }

// Terms returns the sorted term list. Callers must not modify it.
func (s *Snapshot) Terms() []string { return s.terms }

func (s *Snapshot) Term(t int) string { return s.terms[t] }

// TermRuneLen is the length of term t in code points.
func (s *Snapshot) TermRuneLen(t int) int { return s.termRunes[t] }

func (s *Snapshot) Postings(t int) index.PostingList { return s.idx.Terms[t].Postings }

// DocFrequency is the number of documents whose field contains term t.
func (s *Snapshot) DocFrequency(t, field int) int {
	return int(s.docFreq[t*len(s.idx.Fields)+field])
}

// Lookup finds the ordinal of an exact term by binary search.
func (s *Snapshot) Lookup(term string) (int, bool) {
	t := sort.SearchStrings(s.terms, term)
	if t < len(s.terms) && s.terms[t] == term {
		return t, true
	}
	return -1, false
}

// PrefixRange returns the half-open ordinal range of terms starting with
// prefix. Sorted order keeps them contiguous.
func (s *Snapshot) PrefixRange(prefix string) (lo, hi int) {
	lo = sort.SearchStrings(s.terms, prefix)
	hi = lo + sort.Search(len(s.terms)-lo, func(i int) bool {
		return !strings.HasPrefix(s.terms[lo+i], prefix)
	})
	return lo, hi
}

func (s *Snapshot) Stats() Stats {
	return Stats{
		Checksum:  s.ChecksumHex(),
		Version:   segment.FormatVersion,
		Documents: s.DocCount(),
		Terms:     s.TermCount(),
		Fields:    s.Fields(),
		Locales:   s.tokenizer.Locales(),
		BlobBytes: s.blobSize,
		LoadedAt:  s.loadedAt,
	}
}
