package index

import (
	"sort"
)

// fieldAnalysis is the tokenized form of one field of one document.
type fieldAnalysis struct {
	length      int
	frequencies map[string]int
}

// MemoryIndex accumulates postings for a single build. Documents must be added
// in ascending ordinal order so every posting list stays sorted without a
// final per-term sort.
type MemoryIndex struct {
	index map[string]PostingList
	size  int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]PostingList),
	}
}

func (m *MemoryIndex) addDocument(doc int, fields []fieldAnalysis) {
	for field, analysis := range fields {
		for term, freq := range analysis.frequencies {
			if _, exists := m.index[term]; !exists {
				m.size += int64(len(term))
			}
			m.index[term] = append(m.index[term], Posting{
				Doc:       doc,
				Field:     field,
				Frequency: freq,
			})
			m.size += 24
		}
	}
}

// Snapshot returns the accumulated terms sorted lexicographically. Posting
// lists are ordered by document then field; entries from the same document
// arrive in map order and are put in field order here.
func (m *MemoryIndex) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(m.index))
	for term, postings := range m.index {
		sorted := make(PostingList, len(postings))
		copy(sorted, postings)
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].Doc != sorted[j].Doc {
				return sorted[i].Doc < sorted[j].Doc
			}
			return sorted[i].Field < sorted[j].Field
		})
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: sorted,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Size is a rough estimate of the accumulated postings in bytes.
func (m *MemoryIndex) Size() int64 {
	return m.size
}
