package index

import "encoding/json"

// Document is one article handed to the Builder. Fields holds the raw text of
// every indexed field; Payload is opaque display data returned with results.
type Document struct {
	ID      string
	Fields  map[string]string
	Payload json.RawMessage
}

// Posting records that a term occurs Frequency times in field Field of the
// document at position Doc of InvertedIndex.Docs.
type Posting struct {
	Doc       int `json:"d"`
	Field     int `json:"f"`
	Frequency int `json:"n"`
}

// PostingList is ordered by Doc, then Field.
type PostingList []Posting

type TermEntry struct {
	Term     string      `json:"t"`
	Postings PostingList `json:"p"`
}

// DocEntry is the per-document part of the index. FieldLengths is parallel to
// InvertedIndex.Fields and counts tokens, not bytes. Payload holds the exact
// bytes the document arrived with and is serialized as base64.
type DocEntry struct {
	ID           string `json:"id"`
	FieldLengths []int  `json:"l"`
	Payload      []byte `json:"p,omitempty"`
}

type FieldStats struct {
	Name        string  `json:"name"`
	TotalTokens int64   `json:"tokens"`
	AvgLength   float64 `json:"avg"`
}

// InvertedIndex is the complete, immutable product of a build. Terms are
// sorted and unique; Docs keep input order, which is the tie-break order for
// ranking.
type InvertedIndex struct {
	Locales []string     `json:"locales"`
	Fields  []FieldStats `json:"fields"`
	Docs    []DocEntry   `json:"docs"`
	Terms   []TermEntry  `json:"terms"`
}

func (idx *InvertedIndex) FieldNames() []string {
	names := make([]string, len(idx.Fields))
	for i, field := range idx.Fields {
		names[i] = field.Name
	}
	return names
}

func (idx *InvertedIndex) DocCount() int {
	return len(idx.Docs)
}

func (idx *InvertedIndex) TermCount() int {
	return len(idx.Terms)
}
