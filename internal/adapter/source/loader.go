// Package source loads the raw repeater dataset from an ordered list of
// candidate locations, local paths or http(s) URLs.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/repeater-data-etl/internal/observability"
)

// ErrNoSource is returned when no candidate location yields valid JSON.
var ErrNoSource = errors.New("no source available")

// ErrInvalidJSON marks a location whose body did not parse.
var ErrInvalidJSON = errors.New("invalid json")

// Fetcher retrieves the raw body stored at location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, location string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, location string) ([]byte, error) {
	return f(ctx, location)
}

// IsRemote reports whether location is an http(s) URL.
func IsRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// FileFetcher reads local files. Relative paths that do not exist in the
// working directory are retried under Root.
type FileFetcher struct {
	Root string
}

func (f FileFetcher) Fetch(_ context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(location)
	if err == nil || filepath.IsAbs(location) || f.Root == "" || !errors.Is(err, os.ErrNotExist) {
		return data, err
	}
	return os.ReadFile(filepath.Join(f.Root, location))
}

// HTTPFetcher downloads a URL with a bounded timeout.
type HTTPFetcher struct {
	httpClient *http.Client
}

// NewHTTPFetcher creates a fetcher whose requests time out after timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{httpClient: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch %s: status %d: %s", location, resp.StatusCode, body)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	return body, nil
}

// sharedLoadTimeout bounds a load shared by concurrent callers. The load
// runs detached from any single caller's context, so one caller giving up
// does not fail the rest.
const sharedLoadTimeout = 2 * time.Minute

// Loader tries each source in order and memoizes the first valid body per
// cache key for the life of the process.
type Loader struct {
	local   Fetcher
	remote  Fetcher
	metrics *observability.Metrics
	logger  *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	memo  map[string][]byte
}

// NewLoader creates a loader that reads paths through local and URLs through remote.
func NewLoader(local, remote Fetcher, metrics *observability.Metrics, logger *slog.Logger) *Loader {
	return &Loader{
		local:   local,
		remote:  remote,
		metrics: metrics,
		logger:  logger,
		memo:    make(map[string][]byte),
	}
}

// Load returns the first body among sources that is valid JSON. An empty
// cacheKey disables memoization. Failed loads are not memoized. A caller
// whose ctx ends gets ctx.Err() without cancelling the shared load.
func (l *Loader) Load(ctx context.Context, sources []string, cacheKey string) ([]byte, error) {
	if cacheKey == "" {
		return l.load(ctx, sources)
	}
	if data, ok := l.cached(cacheKey); ok {
		l.logger.Debug("dataset served from memo", "cache_key", cacheKey)
		return data, nil
	}

	ch := l.group.DoChan(cacheKey, func() (any, error) {
		if data, ok := l.cached(cacheKey); ok {
			return data, nil
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()
		data, err := l.load(lctx, sources)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.memo[cacheKey] = data
		l.mu.Unlock()
		return data, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Forget drops the memoized body for cacheKey so the next Load refetches.
func (l *Loader) Forget(cacheKey string) {
	l.mu.Lock()
	delete(l.memo, cacheKey)
	l.mu.Unlock()
}

func (l *Loader) cached(cacheKey string) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, ok := l.memo[cacheKey]
	return data, ok
}

func (l *Loader) load(ctx context.Context, sources []string) ([]byte, error) {
	var errs []error
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kind, fetcher := "file", l.local
		if IsRemote(src) {
			kind, fetcher = "http", l.remote
		}
		if fetcher == nil {
			continue
		}

		data, err := fetcher.Fetch(ctx, src)
		if err == nil && !json.Valid(data) {
			err = fmt.Errorf("%s: %w", src, ErrInvalidJSON)
		}
		if err != nil {
			l.observe(kind, err)
			l.logger.Warn("dataset source unavailable", "source", src, "error", err)
			errs = append(errs, err)
			continue
		}

		l.observe(kind, nil)
		l.logger.Info("dataset loaded", "source", src, "bytes", len(data))
		return data, nil
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no usable candidates", ErrNoSource)
	}
	return nil, fmt.Errorf("%w: tried %d: %w", ErrNoSource, len(errs), errors.Join(errs...))
}

func (l *Loader) observe(kind string, err error) {
	if l.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case errors.Is(err, ErrInvalidJSON):
		outcome = "invalid"
	case err != nil:
		outcome = "error"
	}
	l.metrics.SourceFetches.WithLabelValues(kind, outcome).Inc()
}
