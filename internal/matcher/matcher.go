// Package matcher validates cleaned city names against the official
// municipality list.
//
// Strategies run in a fixed order and the first one that resolves wins:
// exact, prefix, substring, keyword, similarity, fallback. Ambiguous prefix
// and substring results are returned with a trailing "?" so a human can
// review them; the pipeline never fails on a city it cannot place.
package matcher

import (
	"strings"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
)

// Strategy names the step of the cascade that produced a result.
type Strategy string

const (
	StrategyEmpty              Strategy = "empty"
	StrategyExact              Strategy = "exact"
	StrategyPrefix             Strategy = "prefix"
	StrategyPrefixAmbiguous    Strategy = "prefix_ambiguous"
	StrategySubstring          Strategy = "substring"
	StrategySubstringAmbiguous Strategy = "substring_ambiguous"
	StrategyKeyword            Strategy = "keyword"
	StrategyKeywordEnds        Strategy = "keyword_ends"
	StrategySimilarity         Strategy = "similarity"
	StrategyFallback           Strategy = "fallback"
)

// AmbiguousMark is appended to names that matched too many entries.
const AmbiguousMark = "?"

// Config holds the empirically chosen cutoffs of the cascade.
type Config struct {
	// SimilarityThreshold is the minimum score accepted by the similarity
	// step. A score equal to the threshold is accepted.
	SimilarityThreshold float64
	// MaxPrefixWords limits the prefix step to short inputs.
	MaxPrefixWords int
	// PrefixAmbiguity is the largest prefix match count still resolved.
	PrefixAmbiguity int
	// SubstringAmbiguity and SubstringMaxLen flag short inputs contained in
	// too many entries.
	SubstringAmbiguity int
	SubstringMaxLen    int
	// KeywordMinLen is the shortest word used by the keyword step.
	KeywordMinLen int
	// PriorityCities break two-way prefix ties.
	PriorityCities []string
}

// DefaultConfig returns the cutoffs the published data was built with.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.9,
		MaxPrefixWords:      2,
		PrefixAmbiguity:     2,
		SubstringAmbiguity:  3,
		SubstringMaxLen:     5,
		KeywordMinLen:       3,
		PriorityCities: []string{
			"rio de janeiro",
			"sao paulo",
			"belo horizonte",
			"brasilia",
			"salvador",
			"fortaleza",
			"recife",
			"porto alegre",
			"curitiba",
			"manaus",
		},
	}
}

// Matcher resolves city names against a read-only index of folded names.
// It is safe for concurrent use.
type Matcher struct {
	index    []string
	cfg      Config
	priority map[string]bool
	score    func(a, b string) float64
}

// New returns a Matcher over index. The slice must not be modified afterwards.
func New(index []string, cfg Config) *Matcher {
	priority := make(map[string]bool, len(cfg.PriorityCities))
	for _, c := range cfg.PriorityCities {
		priority[domain.Fold(c)] = true
	}
	return &Matcher{
		index:    index,
		cfg:      cfg,
		priority: priority,
		score:    Similarity,
	}
}

// Len returns the number of index entries.
func (m *Matcher) Len() int {
	return len(m.index)
}

// Match implements domain.CityMatcher.
func (m *Matcher) Match(name string) string {
	out, _ := m.MatchWithStrategy(name)
	return out
}

// MatchWithStrategy returns the presentable city name and the strategy
// that produced it.
func (m *Matcher) MatchWithStrategy(name string) (string, Strategy) {
	if name == "" {
		return "", StrategyEmpty
	}
	n := domain.Fold(name)

	for _, c := range m.index {
		if c == n {
			return domain.Capitalize(name), StrategyExact
		}
	}

	if len(strings.Split(n, " ")) <= m.cfg.MaxPrefixWords {
		if out, s, ok := m.matchPrefix(name, n); ok {
			return out, s
		}
	}

	if out, s, ok := m.matchSubstring(name, n); ok {
		return out, s
	}

	if out, s, ok := m.matchKeywords(n); ok {
		return out, s
	}

	if best, score := m.bestScore(n); best != "" && m.accepts(score) {
		return domain.Capitalize(best), StrategySimilarity
	}

	return domain.Capitalize(name), StrategyFallback
}

func (m *Matcher) matchPrefix(name, n string) (string, Strategy, bool) {
	matches := m.filter(func(c string) bool { return strings.HasPrefix(c, n) })
	switch {
	case len(matches) == 0:
		return "", "", false
	case len(matches) == 1:
		return domain.Capitalize(matches[0]), StrategyPrefix, true
	case len(matches) > m.cfg.PrefixAmbiguity:
		return domain.Capitalize(name) + AmbiguousMark, StrategyPrefixAmbiguous, true
	}
	for _, c := range matches {
		if m.priority[c] {
			return domain.Capitalize(c), StrategyPrefix, true
		}
	}
	return domain.Capitalize(matches[0]), StrategyPrefix, true
}

func (m *Matcher) matchSubstring(name, n string) (string, Strategy, bool) {
	matches := m.filter(func(c string) bool {
		return strings.Contains(c, n) || strings.Contains(n, c)
	})
	if len(matches) == 1 {
		return domain.Capitalize(matches[0]), StrategySubstring, true
	}
	if len(matches) > m.cfg.SubstringAmbiguity && len([]rune(n)) <= m.cfg.SubstringMaxLen {
		return domain.Capitalize(name) + AmbiguousMark, StrategySubstringAmbiguous, true
	}
	return "", "", false
}

// matchKeywords only handles compound names: it needs at least two words
// of KeywordMinLen runes or more.
func (m *Matcher) matchKeywords(n string) (string, Strategy, bool) {
	var words []string
	for _, w := range strings.Fields(n) {
		if len([]rune(w)) >= m.cfg.KeywordMinLen {
			words = append(words, w)
		}
	}
	if len(words) < 2 {
		return "", "", false
	}

	all := m.filter(func(c string) bool {
		for _, w := range words {
			if !strings.Contains(c, w) {
				return false
			}
		}
		return true
	})
	if len(all) == 1 {
		return domain.Capitalize(all[0]), StrategyKeyword, true
	}

	first, last := words[0], words[len(words)-1]
	ends := m.filter(func(c string) bool {
		return strings.Contains(c, first) && strings.Contains(c, last)
	})
	if len(ends) == 1 {
		return domain.Capitalize(ends[0]), StrategyKeywordEnds, true
	}
	return "", "", false
}

// bestScore returns the first entry with the highest similarity to n.
func (m *Matcher) bestScore(n string) (string, float64) {
	best, bestScore := "", -1.0
	for _, c := range m.index {
		if s := m.score(n, c); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore
}

func (m *Matcher) accepts(score float64) bool {
	return score >= m.cfg.SimilarityThreshold
}

func (m *Matcher) filter(keep func(string) bool) []string {
	var out []string
	for _, c := range m.index {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}
