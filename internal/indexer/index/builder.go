package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/article-search/pkg/errors"
)

// Builder turns a complete document batch into an InvertedIndex. A Builder can
// be reused; every call to Build starts from an empty index.
type Builder struct {
	tokenizer *tokenizer.Tokenizer
	fields    []string
	workers   int
	logger    *slog.Logger
}

// NewBuilder validates the field list. workers <= 0 means one worker per CPU.
func NewBuilder(tok *tokenizer.Tokenizer, fields []string, workers int) (*Builder, error) {
	if tok == nil {
		return nil, fmt.Errorf("builder needs a tokenizer")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("builder needs at least one field")
	}
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if field == "" {
			return nil, fmt.Errorf("field names must not be empty")
		}
		if _, dup := seen[field]; dup {
			return nil, fmt.Errorf("field %q configured twice", field)
		}
		seen[field] = struct{}{}
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Builder{
		tokenizer: tok,
		fields:    append([]string(nil), fields...),
		workers:   workers,
		logger:    slog.Default().With("component", "index-builder"),
	}, nil
}

func (b *Builder) Fields() []string {
	return append([]string(nil), b.fields...)
}

// Build validates every document, tokenizes the configured fields on a
// bounded worker pool and merges the results in input order, so the output
// does not depend on the worker count. Any invalid document aborts the build
// with a *errors.BuildError and no index.
func (b *Builder) Build(ctx context.Context, docs []Document) (*InvertedIndex, error) {
	payloads, err := b.validate(docs)
	if err != nil {
		return nil, err
	}

	analyzed := make([][]fieldAnalysis, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := range docs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			analyzed[i] = b.analyze(docs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("tokenizing documents: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("tokenizing documents: %w", err)
	}

	mem := NewMemoryIndex()
	fieldTokens := make([]int64, len(b.fields))
	entries := make([]DocEntry, len(docs))
	for i, fields := range analyzed {
		lengths := make([]int, len(b.fields))
		for f, analysis := range fields {
			lengths[f] = analysis.length
			fieldTokens[f] += int64(analysis.length)
		}
		mem.addDocument(i, fields)
		entries[i] = DocEntry{
			ID:           docs[i].ID,
			FieldLengths: lengths,
			Payload:      payloads[i],
		}
	}

	stats := make([]FieldStats, len(b.fields))
	for f, name := range b.fields {
		stats[f] = FieldStats{Name: name, TotalTokens: fieldTokens[f]}
		if len(docs) > 0 {
			stats[f].AvgLength = float64(fieldTokens[f]) / float64(len(docs))
		}
	}

	idx := &InvertedIndex{
		Locales: b.tokenizer.Locales(),
		Fields:  stats,
		Docs:    entries,
		Terms:   mem.Snapshot(),
	}
	b.logger.Info("index built",
		"docs", idx.DocCount(),
		"terms", idx.TermCount(),
		"fields", len(b.fields),
		"workers", b.workers,
		"approx_bytes", mem.Size(),
	)
	return idx, nil
}

// validate checks ids, field presence and payloads before any work is done
// and returns a private copy of every payload.
func (b *Builder) validate(docs []Document) ([]json.RawMessage, error) {
	ids := make(map[string]int, len(docs))
	payloads := make([]json.RawMessage, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return nil, &apperrors.BuildError{Doc: i, Reason: "empty document id"}
		}
		if first, dup := ids[doc.ID]; dup {
			return nil, &apperrors.BuildError{
				Doc:    i,
				DocID:  doc.ID,
				Reason: fmt.Sprintf("duplicate document id, first seen at %d", first),
			}
		}
		ids[doc.ID] = i
		for _, field := range b.fields {
			if _, ok := doc.Fields[field]; !ok {
				return nil, &apperrors.BuildError{Doc: i, DocID: doc.ID, Field: field, Reason: "missing field"}
			}
		}
		if len(doc.Payload) > 0 && !json.Valid(doc.Payload) {
			return nil, &apperrors.BuildError{Doc: i, DocID: doc.ID, Reason: "payload is not valid JSON"}
		}
		if len(doc.Payload) > 0 {
			payloads[i] = append(json.RawMessage(nil), doc.Payload...)
		}
	}
	return payloads, nil
}

func (b *Builder) analyze(doc Document) []fieldAnalysis {
	fields := make([]fieldAnalysis, len(b.fields))
	for f, name := range b.fields {
		terms := b.tokenizer.Tokenize(doc.Fields[name])
		frequencies := make(map[string]int, len(terms))
		for _, term := range terms {
			frequencies[term]++
		}
		fields[f] = fieldAnalysis{length: len(terms), frequencies: frequencies}
	}
	return fields
}
