package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
)

// resolved is the location outcome for the raw record at the same position.
type resolved struct {
	state string
	city  string
	err   error
}

// resolveAll runs state and city resolution for every record. With more
// than one worker the records are spread over a bounded errgroup; results
// are stored by input position so callers see input order either way.
func resolveAll(ctx context.Context, recs []domain.RawRepeaterRecord, m domain.CityMatcher, workers int) ([]resolved, error) {
	out := make([]resolved, len(recs))
	resolve := func(i int) {
		state, city, err := domain.ResolveLocation(recs[i], m)
		out[i] = resolved{state: state, city: city, err: err}
	}

	if workers <= 1 {
		for i := range recs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			resolve(i)
		}
		return out, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range recs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			resolve(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
