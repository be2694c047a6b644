package cities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
	"github.com/couchcryptid/repeater-data-etl/internal/observability"
)

// Source is the remote side of the index: names and their revision date.
type Source interface {
	FetchNames(ctx context.Context) ([]string, error)
	LatestRevision(ctx context.Context) (time.Time, error)
}

// Provider loads the index at most once per process. Concurrent callers
// share a single in-flight load; a failed load is retried on the next call.
type Provider struct {
	source  Source
	store   Store
	metrics *observability.Metrics
	logger  *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	names []string
}

// NewProvider wires a remote source to a local store. store may be nil.
func NewProvider(source Source, store Store, metrics *observability.Metrics, logger *slog.Logger) *Provider {
	return &Provider{source: source, store: store, metrics: metrics, logger: logger}
}

// sharedLoadTimeout bounds a load shared by concurrent callers. The load
// runs detached from any single caller's context.
const sharedLoadTimeout = 2 * time.Minute

// Names returns the folded city index.
func (p *Provider) Names(ctx context.Context) ([]string, error) {
	if names := p.loaded(); names != nil {
		return names, nil
	}
	return p.shared(ctx, func(ctx context.Context) ([]string, error) {
		if names := p.loaded(); names != nil {
			return names, nil
		}
		return p.load(ctx)
	})
}

// Refresh downloads the dataset regardless of the cached copy and replaces
// the in-memory index.
func (p *Provider) Refresh(ctx context.Context) ([]string, error) {
	return p.shared(ctx, p.download)
}

// shared runs fn once for all concurrent callers and stores its result.
// A caller whose ctx ends stops waiting with ctx.Err(); the load keeps
// going for the others.
func (p *Provider) shared(ctx context.Context, fn func(context.Context) ([]string, error)) ([]string, error) {
	ch := p.group.DoChan("index", func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()
		names, err := fn(lctx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.names = names
		p.mu.Unlock()
		return names, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

// CheckReadiness reports whether the index has been loaded.
func (p *Provider) CheckReadiness(_ context.Context) error {
	if p.loaded() == nil {
		return errors.New("city index not loaded")
	}
	return nil
}

func (p *Provider) loaded() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.names
}

func (p *Provider) load(ctx context.Context) ([]string, error) {
	if p.store == nil {
		return p.download(ctx)
	}

	cached, savedAt, err := p.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNotCached):
		return p.download(ctx)
	case err != nil:
		p.logger.Warn("city cache unreadable, downloading", "error", err)
		return p.download(ctx)
	}

	revision, err := p.source.LatestRevision(ctx)
	if err != nil {
		p.logger.Warn("city revision check failed, using cache", "error", err)
		return p.fromStore(cached), nil
	}
	if revision.After(savedAt) {
		p.logger.Info("newer city dataset available", "revision", revision, "cached_at", savedAt)
		names, err := p.download(ctx)
		if err != nil {
			p.logger.Warn("city download failed, using stale cache", "error", err)
			return p.fromStore(cached), nil
		}
		return names, nil
	}
	return p.fromStore(cached), nil
}

func (p *Provider) fromStore(names []string) []string {
	p.observe("store", nil, len(names))
	p.logger.Info("city index loaded from cache", "entries", len(names))
	return names
}

func (p *Provider) download(ctx context.Context) ([]string, error) {
	names, err := p.source.FetchNames(ctx)
	if err != nil {
		p.observe("remote", err, 0)
		return nil, fmt.Errorf("load city index: %w", err)
	}
	p.observe("remote", nil, len(names))
	p.logger.Info("city index downloaded", "entries", len(names), "at", domain.Now())

	if p.store != nil {
		if err := p.store.Save(ctx, names); err != nil {
			p.logger.Warn("city cache not saved", "error", err)
		}
	}
	return names, nil
}

func (p *Provider) observe(source string, err error, size int) {
	if p.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	p.metrics.CityIndexLoad.WithLabelValues(source, outcome).Inc()
	if err == nil {
		p.metrics.CityIndexSize.Set(float64(size))
	}
}
