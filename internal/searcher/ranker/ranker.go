// Package ranker scores documents with BM25+ and orders the results.
//
// For a term t in field f of document d:
//
//	idf   = ln(1 + (N - df + 0.5) / (df + 0.5))
//	score = idf * (D + tf*(K1+1) / (tf + K1*(1 - B + B*len/avgLen)))
//
// where df counts documents containing t in f. The caller multiplies each
// contribution by the field boost and the match weight, and contributions are
// summed per document.
package ranker

import (
	"math"
	"sort"
)

type Params struct {
	K1 float64
	B  float64
	D  float64
}

func DefaultParams() Params {
	return Params{K1: 1.2, B: 0.7, D: 0.5}
}

func IDF(totalDocs, docFreq int) float64 {
	n := float64(totalDocs)
	df := float64(docFreq)
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// FieldScore is the BM25+ contribution of one term occurrence count in one
// field, before boosts.
func (p Params) FieldScore(idf float64, termFreq, fieldLength int, avgFieldLength float64) float64 {
	lengthRatio := 1.0
	if avgFieldLength > 0 {
		lengthRatio = float64(fieldLength) / avgFieldLength
	}
	tf := float64(termFreq)
	return idf * (p.D + tf*(p.K1+1)/(tf+p.K1*(1-p.B+p.B*lengthRatio)))
}

type Order int

const (
	Descending Order = iota
	Ascending
)

func (o Order) String() string {
	if o == Ascending {
		return "asc"
	}
	return "desc"
}

// ParseOrder accepts "desc" and "asc"; the empty string means Descending.
func ParseOrder(s string) (Order, bool) {
	switch s {
	case "", "desc":
		return Descending, true
	case "asc":
		return Ascending, true
	default:
		return Descending, false
	}
}

// ScoredDoc refers to a document by its ordinal in the loaded index.
type ScoredDoc struct {
	Doc   int
	Score float64
	// Match maps each matched indexed term to the fields it matched in.
	Match map[string][]int
}

// Accumulator sums contributions per document. It is used by one search and
// is not safe for concurrent use.
type Accumulator struct {
	scores  map[int]*ScoredDoc
	touched []int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{scores: make(map[int]*ScoredDoc)}
}

func (a *Accumulator) Add(doc int, term string, field int, score float64) {
	entry, ok := a.scores[doc]
	if !ok {
		entry = &ScoredDoc{Doc: doc, Match: make(map[string][]int)}
		a.scores[doc] = entry
		a.touched = append(a.touched, doc)
	}
	entry.Score += score
	fields := entry.Match[term]
	for _, f := range fields {
		if f == field {
			return
		}
	}
	entry.Match[term] = append(fields, field)
}

func (a *Accumulator) Len() int {
	return len(a.touched)
}

// Ranked returns every scored document ordered by score in the requested
// direction. Equal scores keep document insertion order in both directions.
func (a *Accumulator) Ranked(order Order) []ScoredDoc {
	result := make([]ScoredDoc, 0, len(a.touched))
	docs := append([]int(nil), a.touched...)
	sort.Ints(docs)
	for _, doc := range docs {
		result = append(result, *a.scores[doc])
	}
	Sort(result, order)
	return result
}

// Sort orders docs by score, stable with respect to the current order.
func Sort(docs []ScoredDoc, order Order) {
	sort.SliceStable(docs, func(i, j int) bool {
		if order == Ascending {
			return docs[i].Score < docs[j].Score
		}
		return docs[i].Score > docs[j].Score
	})
}
