package main

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/repeater-data-etl/internal/adapter/cities"
	kafkaadapter "github.com/couchcryptid/repeater-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/repeater-data-etl/internal/adapter/output"
	"github.com/couchcryptid/repeater-data-etl/internal/adapter/source"
	"github.com/couchcryptid/repeater-data-etl/internal/config"
	"github.com/couchcryptid/repeater-data-etl/internal/domain"
	"github.com/couchcryptid/repeater-data-etl/internal/matcher"
	"github.com/couchcryptid/repeater-data-etl/internal/model"
	"github.com/couchcryptid/repeater-data-etl/internal/observability"
	"github.com/couchcryptid/repeater-data-etl/internal/pipeline"
)

// app holds the components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	models    []model.Model
	cities    *cities.Provider
	processor *pipeline.Processor

	closers []func() error
}

func newApp(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics}

	models, err := cfg.Models()
	if err != nil {
		return nil, err
	}
	a.models = models

	store, err := a.cityStore()
	if err != nil {
		return nil, err
	}
	client := cities.NewClient(cfg.CityDatasetURL, cfg.CityCommitsURL, cfg.HTTPTimeout)
	a.cities = cities.NewProvider(client, store, metrics, logger)

	var flat *model.Model
	if cfg.FlatCSV {
		f := model.Flat
		flat = &f
	}
	savers := pipeline.MultiSaver{output.NewFileSaver(cfg.OutputDir, models, flat, logger)}
	if len(cfg.KafkaBrokers) > 0 {
		w := kafkaadapter.NewWriter(cfg, logger)
		a.closers = append(a.closers, w.Close)
		savers = append(savers, w)
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	loader := source.NewLoader(source.FileFetcher{}, source.NewHTTPFetcher(cfg.HTTPTimeout), metrics, logger)
	a.processor = pipeline.New(loader, a.cities, savers, pipeline.Options{
		Sources:    cfg.Sources,
		CacheKey:   cfg.CacheKey,
		Workers:    cfg.Workers,
		NewMatcher: a.newMatcher,
	}, logger, metrics)
	return a, nil
}

func (a *app) cityStore() (cities.Store, error) {
	if a.cfg.CityCacheRedisURL == "" {
		return cities.NewFileStore(a.cfg.CityCachePath), nil
	}
	client, err := cities.NewRedisClient(a.cfg.CityCacheRedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	a.logger.Info("city index cached in redis", "key", a.cfg.CityCacheRedisKey)
	return cities.NewRedisStore(client, a.cfg.CityCacheRedisKey), nil
}

// newMatcher wraps the cascade in an LRU that reports to CityMatches.
func (a *app) newMatcher(index []string) (domain.CityMatcher, error) {
	inner := matcher.New(index, a.cfg.MatcherConfig())
	return matcher.NewCached(inner, a.cfg.MatchCacheSize, func(s matcher.Strategy, cached bool) {
		result := "miss"
		if cached {
			result = "hit"
		}
		a.metrics.CityMatches.WithLabelValues(string(s), result).Inc()
	})
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
