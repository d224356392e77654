package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/tokenizer"
)

func TestParse(t *testing.T) {
	tok, err := tokenizer.New([]string{"en-SG", "en-US"})
	require.NoError(t, err)

	testCases := []struct {
		name  string
		query string
		terms []string
		empty bool
	}{
		{"empty", "", []string{}, true},
		{"whitespace", "   ", []string{}, false},
		{"punctuation", "?!.,", []string{}, false},
		{"single", "Quantum", []string{"quantum"}, false},
		{"deduplicated", "search Search SEARCH engine", []string{"search", "engine"}, false},
		{"operators are terms", "cats AND dogs", []string{"cats", "and", "dogs"}, false},
		{"unicode", "Café 東京", []string{"café", "東", "京"}, false},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			plan := Parse(testCase.query, tok)
			require.Equal(t, testCase.terms, plan.Terms)
			require.Equal(t, testCase.empty, plan.IsEmpty())
			require.Equal(t, testCase.query, plan.RawQuery)
		})
	}
}

func TestNormalized(t *testing.T) {
	tok, err := tokenizer.New([]string{"en-US"})
	require.NoError(t, err)
	require.Equal(t, Parse("Fuzzy  fuzzy, Search!", tok).Normalized(), Parse("fuzzy search", tok).Normalized())
}

func BenchmarkParse(b *testing.B) {
	tok, err := tokenizer.New([]string{"en-SG", "en-US"})
	if err != nil {
		b.Fatal(err)
	}
	queries := []struct {
		name  string
		query string
	}{
		{"simple", "distributed systems"},
		{"long", "distributed search analytics platform indexing query processing ranking caching sharding"},
		{"repeated", "search search search search search"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = Parse(q.query, tok)
			}
		})
	}
}
