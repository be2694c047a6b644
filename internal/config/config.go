package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/repeater-data-etl/internal/adapter/cities"
	"github.com/couchcryptid/repeater-data-etl/internal/matcher"
	"github.com/couchcryptid/repeater-data-etl/internal/model"
)

const (
	defaultSources   = "data/rptrs.json,https://radioid.net/static/rptrs.json"
	defaultCacheKey  = "radioid_rptrs"
	defaultOutputDir = "radio/repetidoras"
	defaultCityCache = "radio/repetidoras/cidades/brasil.cidades.json"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Sources   []string
	CacheKey  string
	OutputDir string
	CSVModels []string
	FlatCSV   bool
	Workers   int

	// City index configuration.
	CityDatasetURL    string
	CityCommitsURL    string
	CityCachePath     string
	CityCacheRedisURL string
	CityCacheRedisKey string
	MatchCacheSize    int
	HTTPTimeout       time.Duration

	// Optional Kafka publishing; disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	RunInterval     time.Duration

	TuningFile string
	Tuning     Tuning
}

// Tuning holds the matcher cutoffs and output formatting read from the
// optional YAML tuning file. Zero values keep the defaults.
type Tuning struct {
	Matcher struct {
		SimilarityThreshold float64  `yaml:"similarity_threshold"`
		MaxPrefixWords      int      `yaml:"max_prefix_words"`
		PrefixAmbiguity     int      `yaml:"prefix_ambiguity"`
		SubstringAmbiguity  int      `yaml:"substring_ambiguity"`
		SubstringMaxLen     int      `yaml:"substring_max_len"`
		KeywordMinLen       int      `yaml:"keyword_min_len"`
		PriorityCities      []string `yaml:"priority_cities"`
	} `yaml:"matcher"`
	AliasTemplate string `yaml:"alias_template"`
	CSVDelimiter  string `yaml:"csv_delimiter"`
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	httpTimeout, err := parseDuration("HTTP_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	runInterval, err := parseDuration("RUN_INTERVAL", "6h")
	if err != nil {
		return nil, err
	}
	workers, err := parsePositiveInt("WORKERS", 1)
	if err != nil {
		return nil, err
	}
	matchCacheSize, err := parsePositiveInt("MATCH_CACHE_SIZE", 4096)
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		Sources:   splitList(sharedcfg.EnvOrDefault("RPTR_SOURCES", defaultSources)),
		CacheKey:  sharedcfg.EnvOrDefault("RPTR_CACHE_KEY", defaultCacheKey),
		OutputDir: sharedcfg.EnvOrDefault("OUTPUT_DIR", defaultOutputDir),
		CSVModels: splitList(strings.ToLower(sharedcfg.EnvOrDefault("CSV_MODELS", "rt4d"))),
		FlatCSV:   sharedcfg.EnvOrDefault("FLAT_CSV", "true") == "true",
		Workers:   workers,

		CityDatasetURL:    sharedcfg.EnvOrDefault("CITY_DATASET_URL", cities.DefaultDatasetURL),
		CityCommitsURL:    sharedcfg.EnvOrDefault("CITY_COMMITS_URL", cities.DefaultCommitsURL),
		CityCachePath:     sharedcfg.EnvOrDefault("CITY_CACHE_PATH", defaultCityCache),
		CityCacheRedisURL: os.Getenv("CITY_CACHE_REDIS_URL"),
		CityCacheRedisKey: sharedcfg.EnvOrDefault("CITY_CACHE_REDIS_KEY", "brasil_cidades"),
		MatchCacheSize:    matchCacheSize,
		HTTPTimeout:       httpTimeout,

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "repeaters"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		RunInterval:     runInterval,

		TuningFile: os.Getenv("TUNING_FILE"),
	}

	if len(cfg.Sources) == 0 {
		return nil, errors.New("RPTR_SOURCES is required")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("OUTPUT_DIR is required")
	}
	for _, name := range cfg.CSVModels {
		if _, err := model.Lookup(name); err != nil {
			return nil, fmt.Errorf("invalid CSV_MODELS: %w", err)
		}
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	if cfg.TuningFile != "" {
		t, err := LoadTuning(cfg.TuningFile)
		if err != nil {
			return nil, err
		}
		cfg.Tuning = t
	}
	return cfg, nil
}

// LoadTuning reads and validates a YAML tuning file.
func LoadTuning(path string) (Tuning, error) {
	var t Tuning
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read TUNING_FILE: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse TUNING_FILE %s: %w", path, err)
	}
	if th := t.Matcher.SimilarityThreshold; th < 0 || th > 1 {
		return t, fmt.Errorf("invalid TUNING_FILE: similarity_threshold %v outside [0, 1]", th)
	}
	if t.AliasTemplate != "" {
		if _, err := model.ParseTemplate(t.AliasTemplate); err != nil {
			return t, fmt.Errorf("invalid TUNING_FILE: %w", err)
		}
	}
	return t, nil
}

// MatcherConfig returns the default cascade cutoffs with tuning overrides applied.
func (c *Config) MatcherConfig() matcher.Config {
	mc := matcher.DefaultConfig()
	t := c.Tuning.Matcher
	if t.SimilarityThreshold > 0 {
		mc.SimilarityThreshold = t.SimilarityThreshold
	}
	if t.MaxPrefixWords > 0 {
		mc.MaxPrefixWords = t.MaxPrefixWords
	}
	if t.PrefixAmbiguity > 0 {
		mc.PrefixAmbiguity = t.PrefixAmbiguity
	}
	if t.SubstringAmbiguity > 0 {
		mc.SubstringAmbiguity = t.SubstringAmbiguity
	}
	if t.SubstringMaxLen > 0 {
		mc.SubstringMaxLen = t.SubstringMaxLen
	}
	if t.KeywordMinLen > 0 {
		mc.KeywordMinLen = t.KeywordMinLen
	}
	if len(t.PriorityCities) > 0 {
		mc.PriorityCities = t.PriorityCities
	}
	return mc
}

// Models returns the configured CSV models with the tuned alias template
// and delimiter applied.
func (c *Config) Models() ([]model.Model, error) {
	out := make([]model.Model, 0, len(c.CSVModels))
	for _, name := range c.CSVModels {
		m, err := c.Model(name)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Model looks up a registered model by name and applies the tuning.
func (c *Config) Model(name string) (model.Model, error) {
	m, err := model.Lookup(strings.ToLower(name))
	if err != nil {
		return model.Model{}, err
	}
	if c.Tuning.AliasTemplate != "" {
		m = m.WithAlias(model.MustParseTemplate(c.Tuning.AliasTemplate))
	}
	return m.WithDelimiter(c.Tuning.CSVDelimiter), nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
