// Package matcher expands one query term into the indexed terms it matches:
// the term itself, indexed terms it is a prefix of, and indexed terms within
// a bounded edit distance. Each indexed term is reported once, under the tier
// that gives it the highest weight.
package matcher

import (
	"math"
	"sort"
	"unicode/utf8"
)

type Tier int

const (
	TierExact Tier = iota
	TierPrefix
	TierFuzzy
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierPrefix:
		return "prefix"
	case TierFuzzy:
		return "fuzzy"
	default:
		return "unknown"
	}
}

// TermSet is the read side of a loaded index the matcher needs. Terms must be
// sorted.
type TermSet interface {
	Lookup(term string) (int, bool)
	PrefixRange(prefix string) (lo, hi int)
	Terms() []string
	TermRuneLen(t int) int
}

type Options struct {
	Prefix       bool
	Fuzzy        bool
	FuzzyRatio   float64
	MaxFuzzy     int
	PrefixWeight float64
	FuzzyWeight  float64
}

// Match is one indexed term reached from a query term. Distance is the length
// difference for prefix matches and the edit distance for fuzzy matches.
type Match struct {
	Term     int
	Tier     Tier
	Distance int
	Weight   float64
}

// MaxDistance is the fuzzy edit budget for a query term of runeLen code
// points: FuzzyRatio of its length, rounded, capped at MaxFuzzy.
func (o Options) MaxDistance(runeLen int) int {
	d := int(math.Round(o.FuzzyRatio * float64(runeLen)))
	if d > o.MaxFuzzy {
		d = o.MaxFuzzy
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Expand returns the matches for one query term ordered by term ordinal.
func Expand(terms TermSet, query string, opts Options) []Match {
	queryLen := utf8.RuneCountInString(query)
	best := make(map[int]Match)
	offer := func(m Match) {
		if current, ok := best[m.Term]; ok && current.Weight >= m.Weight {
			return
		}
		best[m.Term] = m
	}

	if t, ok := terms.Lookup(query); ok {
		offer(Match{Term: t, Tier: TierExact, Weight: 1})
	}

	if opts.Prefix && query != "" {
		lo, hi := terms.PrefixRange(query)
		for t := lo; t < hi; t++ {
			delta := terms.TermRuneLen(t) - queryLen
			if delta == 0 {
				continue
			}
			offer(Match{
				Term:     t,
				Tier:     TierPrefix,
				Distance: delta,
				Weight:   opts.PrefixWeight * float64(queryLen) / (float64(queryLen) + 0.3*float64(delta)),
			})
		}
	}

	if opts.Fuzzy {
		maxDist := opts.MaxDistance(queryLen)
		if maxDist > 0 {
			queryRunes := []rune(query)
			for t, term := range terms.Terms() {
				termLen := terms.TermRuneLen(t)
				if abs(termLen-queryLen) > maxDist {
					continue
				}
				dist, ok := boundedLevenshtein(queryRunes, term, maxDist)
				if !ok || dist == 0 {
					continue
				}
				offer(Match{
					Term:     t,
					Tier:     TierFuzzy,
					Distance: dist,
					Weight:   opts.FuzzyWeight * float64(queryLen) / float64(queryLen+dist),
				})
			}
		}
	}

	matches := make([]Match, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Term < matches[j].Term })
	return matches
}

// boundedLevenshtein computes the edit distance between a and b over code
// points, giving up as soon as every cell in a row exceeds limit.
func boundedLevenshtein(a []rune, bStr string, limit int) (int, bool) {
	b := []rune(bStr)
	if abs(len(a)-len(b)) > limit {
		return 0, false
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > limit {
			return 0, false
		}
		prev, curr = curr, prev
	}
	if prev[len(b)] > limit {
		return 0, false
	}
	return prev[len(b)], true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
