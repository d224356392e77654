// Package benchmark measures the search service end to end: a generated
// corpus is indexed, loaded, and queried through the HTTP handler.
package benchmark

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/config"
)

var vocabulary = strings.Fields(`distributed search engines process queries across
	inverted index term frequency document length normalization ranking caching
	tokenization unicode segmentation prefix fuzzy levenshtein boost payload
	snapshot reload checksum corpus article abstract author title café 東京`)

func corpus(n int) []index.Document {
	docs := make([]index.Document, n)
	for i := range docs {
		words := make([]string, 0, 60)
		for j := 0; j < 60; j++ {
			words = append(words, vocabulary[(i*7+j*13)%len(vocabulary)])
		}
		docs[i] = index.Document{
			ID: fmt.Sprintf("article-%05d", i),
			Fields: map[string]string{
				"title":    strings.Join(words[:4], " "),
				"abstract": strings.Join(words[4:16], " "),
				"authors":  fmt.Sprintf("Author %d", i%50),
				"text":     strings.Join(words, " "),
			},
			Payload: []byte(fmt.Sprintf(`{"url":"/articles/%d"}`, i)),
		}
	}
	return docs
}

func loadedHandler(b *testing.B, docs int) http.Handler {
	b.Helper()
	cfg := config.Default()
	tok, err := tokenizer.New(cfg.Indexer.Locales)
	if err != nil {
		b.Fatal(err)
	}
	builder, err := index.NewBuilder(tok, cfg.Indexer.Fields, 0)
	if err != nil {
		b.Fatal(err)
	}
	idx, err := builder.Build(context.Background(), corpus(docs))
	if err != nil {
		b.Fatal(err)
	}
	blob, err := segment.Encode(idx)
	if err != nil {
		b.Fatal(err)
	}
	engine := executor.New(executor.ConfigFromSearch(cfg.Search))
	if _, err := engine.Load(blob); err != nil {
		b.Fatal(err)
	}
	mux := http.NewServeMux()
	handler.New(engine, nil, nil, cfg.Search, nil).Register(mux)
	return mux
}

func BenchmarkSearchHTTP(b *testing.B) {
	h := loadedHandler(b, 2000)
	queries := []string{"search", "invrted indx", "tok", "café 東京", ""}
	for _, query := range queries {
		target := "/api/v1/search?limit=20&q=" + url.QueryEscape(query)
		b.Run(fmt.Sprintf("q=%q", query), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
				if rec.Code != http.StatusOK {
					b.Fatalf("status %d: %s", rec.Code, rec.Body.String())
				}
			}
		})
	}
}

func BenchmarkBuildEncodeLoad(b *testing.B) {
	cfg := config.Default()
	tok, err := tokenizer.New(cfg.Indexer.Locales)
	if err != nil {
		b.Fatal(err)
	}
	builder, err := index.NewBuilder(tok, cfg.Indexer.Fields, 0)
	if err != nil {
		b.Fatal(err)
	}
	docs := corpus(1000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx, err := builder.Build(context.Background(), docs)
		if err != nil {
			b.Fatal(err)
		}
		blob, err := segment.Encode(idx)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := executor.New(executor.DefaultConfig()).Load(blob); err != nil {
			b.Fatal(err)
		}
	}
}
