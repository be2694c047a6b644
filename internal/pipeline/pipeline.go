package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
	"github.com/couchcryptid/repeater-data-etl/internal/observability"
)

// Loader fetches the raw dataset from the first usable source.
type Loader interface {
	Load(ctx context.Context, sources []string, cacheKey string) ([]byte, error)
}

// IndexProvider returns the folded city name index.
type IndexProvider interface {
	Names(ctx context.Context) ([]string, error)
}

// Saver persists one sorted state group and reports where it went.
type Saver interface {
	Save(ctx context.Context, state string, records []domain.NormalizedRecord) ([]string, error)
}

// AllSaver is implemented by savers that also export every record at once,
// after all state groups are saved.
type AllSaver interface {
	SaveAll(ctx context.Context, records []domain.NormalizedRecord) ([]string, error)
}

// MatcherFactory builds a city matcher over a loaded index.
type MatcherFactory func(index []string) (domain.CityMatcher, error)

// Options configures a Processor.
type Options struct {
	Sources    []string
	CacheKey   string
	Workers    int
	NewMatcher MatcherFactory
}

// Summary describes one completed run.
type Summary struct {
	RunID       string                               `json:"run_id"`
	GeneratedAt time.Time                            `json:"generated_at"`
	States      []string                             `json:"states"`
	RecordsIn   int                                  `json:"records_in"`
	RecordsOut  int                                  `json:"records_out"`
	Dropped     map[string]int                       `json:"dropped"`
	Contents    map[string][]domain.NormalizedRecord `json:"-"`
	Files       []string                             `json:"files"`
}

// TotalStates is the number of non-empty state groups.
func (s *Summary) TotalStates() int {
	return len(s.States)
}

// Processor runs the load, normalize, group, sort and save cycle.
type Processor struct {
	loader  Loader
	index   IndexProvider
	saver   Saver
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	matcher domain.CityMatcher

	ready atomic.Bool
	last  atomic.Pointer[Summary]
}

// New creates a Processor. index may be nil, in which case cities are only
// cleaned and capitalized.
func New(loader Loader, index IndexProvider, saver Saver, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Processor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Processor{
		loader:  loader,
		index:   index,
		saver:   saver,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once a run has completed.
func (p *Processor) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no run has completed yet")
	}
	return nil
}

// Last returns the most recent successful summary, or nil.
func (p *Processor) Last() *Summary {
	return p.last.Load()
}

// Run loads the dataset from the configured sources and processes it.
func (p *Processor) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	summary, err := p.run(ctx)
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.RunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	p.metrics.RunsTotal.WithLabelValues("success").Inc()
	p.logger.Info("run complete",
		"run_id", summary.RunID,
		"states", summary.TotalStates(),
		"records_in", summary.RecordsIn,
		"records_out", summary.RecordsOut,
		"duration", time.Since(start),
	)
	return summary, nil
}

func (p *Processor) run(ctx context.Context) (*Summary, error) {
	data, err := p.loader.Load(ctx, p.opts.Sources, p.opts.CacheKey)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	return p.Process(ctx, data)
}

// Process normalizes an already loaded dataset. A malformed dataset fails
// before anything is saved.
func (p *Processor) Process(ctx context.Context, data []byte) (*Summary, error) {
	ds, err := domain.ParseDataset(data)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:       uuid.NewString(),
		GeneratedAt: domain.Now(),
		RecordsIn:   ds.Total(),
		Dropped:     make(map[string]int),
		Contents:    make(map[string][]domain.NormalizedRecord),
	}
	ctx = domain.WithRunID(ctx, summary.RunID)
	p.metrics.RecordsIn.Add(float64(summary.RecordsIn))
	for _, err := range ds.Malformed {
		p.reject(summary, "", err)
	}

	locations, err := resolveAll(ctx, ds.Rptrs, p.cityMatcher(ctx), p.opts.Workers)
	if err != nil {
		return nil, err
	}

	// Duplicate indices follow input order, so this pass stays sequential.
	counter := domain.NewDuplicateCounter()
	for i, raw := range ds.Rptrs {
		loc := locations[i]
		if loc.err != nil {
			p.reject(summary, raw.ID.String(), loc.err)
			continue
		}
		rec := domain.BuildRecord(raw, loc.state, loc.city, counter)
		if _, seen := summary.Contents[loc.state]; !seen {
			summary.States = append(summary.States, loc.state)
		}
		summary.Contents[loc.state] = append(summary.Contents[loc.state], rec)
	}

	col := collate.New(language.BrazilianPortuguese)
	all := make([]domain.NormalizedRecord, 0, len(ds.Rptrs))
	for _, state := range summary.States {
		group := summary.Contents[state]
		slices.SortStableFunc(group, func(a, b domain.NormalizedRecord) int {
			return col.CompareString(a.City(), b.City())
		})

		files, err := p.saver.Save(ctx, state, group)
		if err != nil {
			return nil, fmt.Errorf("save state %s: %w", state, err)
		}
		summary.Files = append(summary.Files, files...)
		summary.RecordsOut += len(group)
		all = append(all, group...)
	}
	if s, ok := p.saver.(AllSaver); ok {
		files, err := s.SaveAll(ctx, all)
		if err != nil {
			return nil, fmt.Errorf("save all records: %w", err)
		}
		summary.Files = append(summary.Files, files...)
	}

	p.metrics.RecordsOut.Add(float64(summary.RecordsOut))
	p.metrics.States.Set(float64(summary.TotalStates()))
	p.last.Store(summary)
	p.ready.Store(true)
	return summary, nil
}

func (p *Processor) reject(summary *Summary, id string, err error) {
	reason := domain.RejectReason(err)
	summary.Dropped[reason]++
	p.metrics.RecordsRejected.WithLabelValues(reason).Inc()
	p.logger.Debug("record dropped", "id", id, "reason", reason, "error", err)
}

// cityMatcher builds the matcher once the index is available. Until then
// each run proceeds without one.
func (p *Processor) cityMatcher(ctx context.Context) domain.CityMatcher {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.matcher != nil || p.index == nil || p.opts.NewMatcher == nil {
		return p.matcher
	}

	names, err := p.index.Names(ctx)
	if err != nil {
		p.logger.Warn("city index unavailable, cities will only be cleaned", "error", err)
		return nil
	}
	m, err := p.opts.NewMatcher(names)
	if err != nil {
		p.logger.Warn("city matcher not built", "error", err)
		return nil
	}
	p.matcher = m
	return m
}

// MultiSaver fans a state group out to every saver in order.
type MultiSaver []Saver

func (m MultiSaver) Save(ctx context.Context, state string, records []domain.NormalizedRecord) ([]string, error) {
	var written []string
	for _, s := range m {
		files, err := s.Save(ctx, state, records)
		written = append(written, files...)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (m MultiSaver) SaveAll(ctx context.Context, records []domain.NormalizedRecord) ([]string, error) {
	var written []string
	for _, s := range m {
		all, ok := s.(AllSaver)
		if !ok {
			continue
		}
		files, err := all.SaveAll(ctx, records)
		written = append(written, files...)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
