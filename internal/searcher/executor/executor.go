// Package executor answers search queries against the currently loaded index
// snapshot. The snapshot is held behind an atomic pointer: loading a new
// index never blocks searches, and every search sees exactly one snapshot.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/loader"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/matcher"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/article-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/tracing"
)

// Options control one search. A nil FieldBoost weights every field 1; fields
// missing from a non-nil map are weighted 1 as well. A zero boost removes the
// field from matching.
type Options struct {
	Fuzzy      bool
	Prefix     bool
	FieldBoost map[string]float64
	Wildcard   bool
	Order      ranker.Order
}

type Result struct {
	ID      string          `json:"id"`
	Score   float64         `json:"score"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// Terms are the indexed terms that matched, sorted.
	Terms []string `json:"terms,omitempty"`
	// Match lists, per matched term, the fields it was found in.
	Match map[string][]string `json:"match,omitempty"`
	// Tiers records how each matched term was reached: exact, prefix or
	// fuzzy. A term reached several ways reports the strongest.
	Tiers map[string]string `json:"tiers,omitempty"`
}

// Config pins the ranking constants. They change scores, never the index.
type Config struct {
	FuzzyRatio   float64
	MaxFuzzy     int
	PrefixWeight float64
	FuzzyWeight  float64
	Ranking      ranker.Params
}

func ConfigFromSearch(cfg config.SearchConfig) Config {
	return Config{
		FuzzyRatio:   cfg.FuzzyRatio,
		MaxFuzzy:     cfg.MaxFuzzy,
		PrefixWeight: cfg.PrefixWeight,
		FuzzyWeight:  cfg.FuzzyWeight,
		Ranking:      ranker.Params{K1: cfg.K1, B: cfg.B, D: cfg.D},
	}
}

func DefaultConfig() Config {
	return ConfigFromSearch(config.Default().Search)
}

type Engine struct {
	current atomic.Pointer[loader.Snapshot]
	cfg     Config
	logger  *slog.Logger
}

func New(cfg Config) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Load decodes blob and installs it. On error the previous snapshot, if any,
// stays in place.
func (e *Engine) Load(blob []byte) (*loader.Snapshot, error) {
	snap, err := loader.Load(blob)
	if err != nil {
		return nil, err
	}
	e.Swap(snap)
	return snap, nil
}

// Swap installs snap and returns the snapshot it replaced (nil on first
// load). Searches already running finish on the old snapshot. A nil snap is
// ignored.
func (e *Engine) Swap(snap *loader.Snapshot) *loader.Snapshot {
	if snap == nil {
		return e.current.Load()
	}
	old := e.current.Swap(snap)
	e.logger.Info("index snapshot installed",
		"checksum", snap.ChecksumHex(),
		"docs", snap.DocCount(),
		"terms", snap.TermCount(),
	)
	return old
}

// Snapshot returns the installed snapshot or nil.
func (e *Engine) Snapshot() *loader.Snapshot {
	return e.current.Load()
}

func (e *Engine) Ready() bool {
	return e.current.Load() != nil
}

// Search runs query against the current snapshot.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	snap := e.current.Load()
	if snap == nil {
		return nil, &apperrors.NotReadyError{}
	}
	return e.SearchSnapshot(ctx, snap, query, opts)
}

// SearchSnapshot runs query against a specific snapshot. Callers that derive
// cache keys from a snapshot use this so key and results agree.
func (e *Engine) SearchSnapshot(ctx context.Context, snap *loader.Snapshot, query string, opts Options) ([]Result, error) {
	if snap == nil {
		return nil, &apperrors.NotReadyError{}
	}
	boosts, err := resolveBoosts(snap, opts.FieldBoost)
	if err != nil {
		return nil, err
	}
	if opts.Order != ranker.Descending && opts.Order != ranker.Ascending {
		return nil, &apperrors.QueryConfigError{Option: "order", Reason: fmt.Sprintf("unknown order %d", opts.Order)}
	}

	if query == "" {
		if !opts.Wildcard {
			return []Result{}, nil
		}
		return wildcard(snap), nil
	}

	_, parseSpan := tracing.StartChildSpan(ctx, "parse")
	plan := parser.Parse(query, snap.Tokenizer())
	parseSpan.SetAttr("terms", len(plan.Terms))
	parseSpan.End()

	_, scoreSpan := tracing.StartChildSpan(ctx, "score")
	acc, tiers, maxDistance := e.score(snap, plan, opts, boosts)
	scoreSpan.SetAttr("matched_docs", acc.Len())
	scoreSpan.SetAttr("max_edit_distance", maxDistance)
	scoreSpan.End()

	ranked := acc.Ranked(opts.Order)
	fields := snap.Fields()
	results := make([]Result, len(ranked))
	for i, scored := range ranked {
		doc := snap.Doc(scored.Doc)
		results[i] = Result{
			ID:      doc.ID,
			Score:   scored.Score,
			Payload: doc.Payload,
			Terms:   make([]string, 0, len(scored.Match)),
			Match:   make(map[string][]string, len(scored.Match)),
			Tiers:   make(map[string]string, len(scored.Match)),
		}
		for term, fieldIdx := range scored.Match {
			results[i].Terms = append(results[i].Terms, term)
			results[i].Tiers[term] = tiers[term].String()
			sorted := append([]int(nil), fieldIdx...)
			sort.Ints(sorted)
			names := make([]string, len(sorted))
			for j, f := range sorted {
				names[j] = fields[f]
			}
			results[i].Match[term] = names
		}
		sort.Strings(results[i].Terms)
	}
	e.logger.Debug("search executed",
		"query", query,
		"terms", plan.Terms,
		"results", len(results),
		"checksum", snap.ChecksumHex(),
	)
	return results, nil
}

// score accumulates every matching posting. It also returns the strongest tier
// each indexed term was reached by and the largest fuzzy edit distance used.
func (e *Engine) score(snap *loader.Snapshot, plan *parser.QueryPlan, opts Options, boosts []float64) (*ranker.Accumulator, map[string]matcher.Tier, int) {
	matchOpts := matcher.Options{
		Prefix:       opts.Prefix,
		Fuzzy:        opts.Fuzzy,
		FuzzyRatio:   e.cfg.FuzzyRatio,
		MaxFuzzy:     e.cfg.MaxFuzzy,
		PrefixWeight: e.cfg.PrefixWeight,
		FuzzyWeight:  e.cfg.FuzzyWeight,
	}
	totalDocs := snap.DocCount()
	acc := ranker.NewAccumulator()
	tiers := make(map[string]matcher.Tier)
	maxDistance := 0
	for _, queryTerm := range plan.Terms {
		for _, match := range matcher.Expand(snap, queryTerm, matchOpts) {
			term := snap.Term(match.Term)
			if tier, seen := tiers[term]; !seen || match.Tier < tier {
				tiers[term] = match.Tier
			}
			if match.Tier == matcher.TierFuzzy && match.Distance > maxDistance {
				maxDistance = match.Distance
			}
			for _, posting := range snap.Postings(match.Term) {
				boost := boosts[posting.Field]
				if boost == 0 {
					continue
				}
				idf := ranker.IDF(totalDocs, snap.DocFrequency(match.Term, posting.Field))
				fieldScore := e.cfg.Ranking.FieldScore(
					idf,
					posting.Frequency,
					snap.Doc(posting.Doc).FieldLengths[posting.Field],
					snap.AvgFieldLength(posting.Field),
				)
				acc.Add(posting.Doc, term, posting.Field, fieldScore*boost*match.Weight)
			}
		}
	}
	return acc, tiers, maxDistance
}

// resolveBoosts turns a name-keyed boost map into a slice parallel to the
// snapshot's fields.
func resolveBoosts(snap *loader.Snapshot, fieldBoost map[string]float64) ([]float64, error) {
	boosts := make([]float64, snap.FieldCount())
	for i := range boosts {
		boosts[i] = 1
	}
	names := make([]string, 0, len(fieldBoost))
	for name := range fieldBoost {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		weight := fieldBoost[name]
		f, ok := snap.FieldIndex(name)
		if !ok {
			return nil, &apperrors.QueryConfigError{Option: "boost", Reason: fmt.Sprintf("unknown field %q", name)}
		}
		if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
			return nil, &apperrors.QueryConfigError{Option: "boost", Reason: fmt.Sprintf("field %q weight must be a finite non-negative number", name)}
		}
		boosts[f] = weight
	}
	return boosts, nil
}

// wildcard lists every document with score 1 in insertion order.
func wildcard(snap *loader.Snapshot) []Result {
	results := make([]Result, snap.DocCount())
	for i := range results {
		doc := snap.Doc(i)
		results[i] = Result{ID: doc.ID, Score: 1, Payload: doc.Payload}
	}
	return results
}
