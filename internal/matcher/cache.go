package matcher

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// StrategyMatcher is implemented by *Matcher.
type StrategyMatcher interface {
	MatchWithStrategy(name string) (string, Strategy)
}

// ObserveFunc is told about every lookup: the strategy behind the answer and
// whether it came from the cache.
type ObserveFunc func(strategy Strategy, cached bool)

type cachedResult struct {
	name     string
	strategy Strategy
}

// Cached wraps a matcher with an in-memory LRU keyed by the cleaned name.
type Cached struct {
	inner   StrategyMatcher
	cache   *lru.Cache[string, cachedResult]
	observe ObserveFunc
}

// NewCached creates a cache decorator around a matcher. observe may be nil.
func NewCached(inner StrategyMatcher, maxEntries int, observe ObserveFunc) (*Cached, error) {
	cache, err := lru.New[string, cachedResult](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create match cache: %w", err)
	}
	if observe == nil {
		observe = func(Strategy, bool) {}
	}
	return &Cached{inner: inner, cache: cache, observe: observe}, nil
}

// Match implements domain.CityMatcher.
func (c *Cached) Match(name string) string {
	out, _ := c.MatchWithStrategy(name)
	return out
}

// MatchWithStrategy returns the cached answer for name or computes and
// stores it.
func (c *Cached) MatchWithStrategy(name string) (string, Strategy) {
	if r, ok := c.cache.Get(name); ok {
		c.observe(r.strategy, true)
		return r.name, r.strategy
	}
	out, strategy := c.inner.MatchWithStrategy(name)
	c.cache.Add(name, cachedResult{name: out, strategy: strategy})
	c.observe(strategy, false)
	return out, strategy
}

// Len returns the number of cached names.
func (c *Cached) Len() int {
	return c.cache.Len()
}
