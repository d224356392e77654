// Package parser turns raw query text into a QueryPlan. Queries have no
// operators: every term is optional and documents matching more terms simply
// score higher.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/tokenizer"
)

type QueryPlan struct {
	// Terms are the distinct normalized query terms in order of first
	// appearance.
	Terms    []string
	RawQuery string
}

// Parse tokenizes query with tok, which must be the tokenizer the index was
// built with.
func Parse(query string, tok *tokenizer.Tokenizer) *QueryPlan {
	plan := &QueryPlan{
		Terms:    make([]string, 0),
		RawQuery: query,
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	seen := make(map[string]struct{})
	for _, term := range tok.Tokenize(query) {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		plan.Terms = append(plan.Terms, term)
	}
	return plan
}

// IsEmpty reports whether the raw query was exactly "". Whitespace or
// punctuation-only queries are not empty; they just match nothing.
func (p *QueryPlan) IsEmpty() bool {
	return p.RawQuery == ""
}

// Normalized is a canonical form of the query used in cache keys.
func (p *QueryPlan) Normalized() string {
	return strings.Join(p.Terms, " ")
}
