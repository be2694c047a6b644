package pipeline

import (
	"context"
	"time"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
)

const (
	initialBackoff = 5 * time.Second
	maxBackoff     = 5 * time.Minute
)

// forgetter is implemented by loaders that memoize by cache key.
type forgetter interface {
	Forget(cacheKey string)
}

// Serve runs immediately and then every interval until ctx is cancelled.
// Failed runs are retried with exponential backoff instead of waiting a
// full interval.
func (p *Processor) Serve(ctx context.Context, interval time.Duration) error {
	p.logger.Info("scheduler started", "interval", interval)
	backoff := initialBackoff

	for {
		if _, err := p.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("run failed", "error", err, "retry_in", backoff)
			if !sleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}

		backoff = initialBackoff
		if !sleepWithContext(ctx, interval) {
			p.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		}
		if f, ok := p.loader.(forgetter); ok && p.opts.CacheKey != "" {
			f.Forget(p.opts.CacheKey)
		}
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := domain.Clock().NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
