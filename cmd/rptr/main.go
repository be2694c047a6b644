// Command rptr builds the per-state repeater files and radio channel lists
// from the RadioID repeater dump.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	httpadapter "github.com/couchcryptid/repeater-data-etl/internal/adapter/http"
	"github.com/couchcryptid/repeater-data-etl/internal/adapter/labre"
	"github.com/couchcryptid/repeater-data-etl/internal/adapter/output"
	"github.com/couchcryptid/repeater-data-etl/internal/adapter/source"
	"github.com/couchcryptid/repeater-data-etl/internal/config"
	"github.com/couchcryptid/repeater-data-etl/internal/domain"
	"github.com/couchcryptid/repeater-data-etl/internal/matcher"
	"github.com/couchcryptid/repeater-data-etl/internal/model"
	"github.com/couchcryptid/repeater-data-etl/internal/observability"
	"github.com/couchcryptid/repeater-data-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCLI(cfg, logger, metrics).RunContext(ctx, os.Args); err != nil {
		logger.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newCLI(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *cli.App {
	withApp := func(fn func(*cli.Context, *app) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			a, err := newApp(cfg, logger, metrics)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Error("close error", "error", err)
				}
			}()
			return fn(c, a)
		}
	}

	return &cli.App{
		Name:  "rptr",
		Usage: "normalize Brazilian DMR repeaters into per-state files and radio channel lists",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run one batch and exit",
				Action: withApp(runOnce),
			},
			{
				Name:   "serve",
				Usage:  "serve HTTP and re-run the batch every RUN_INTERVAL",
				Action: withApp(serve),
			},
			{
				Name:  "cities",
				Usage: "inspect the official city index",
				Subcommands: []*cli.Command{
					{
						Name:   "refresh",
						Usage:  "download the city index and update the cache",
						Action: withApp(refreshCities),
					},
					{
						Name:      "match",
						Usage:     "show how raw city names resolve",
						ArgsUsage: "NAME...",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "state", Aliases: []string{"s"}, Usage: "state code or name the names belong to"},
						},
						Action: withApp(matchCities),
					},
				},
			},
			{
				Name:      "convert",
				Usage:     "convert a per-state JSON file into a radio channel list",
				ArgsUsage: "STATE_JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Value: "rt4d", Usage: "one of " + strings.Join(model.Names(), ", ")},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file (default stdout)"},
				},
				Action: func(c *cli.Context) error { return convert(c, cfg) },
			},
			{
				Name:      "labre",
				Usage:     "parse a LABRE repeater listing (HTML file or URL) into records",
				ArgsUsage: "FILE_OR_URL",
				Action:    func(c *cli.Context) error { return parseLabre(c, cfg) },
			},
		},
	}
}

func runOnce(c *cli.Context, a *app) error {
	summary, err := a.processor.Run(c.Context)
	if err != nil {
		return err
	}
	printSummary(c.App.Writer, summary)
	return nil
}

func serve(c *cli.Context, a *app) error {
	ctx := c.Context
	srv := httpadapter.NewServer(a.cfg.HTTPAddr, a.processor, a.processor, a.models, a.logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()

	if err := a.processor.Serve(ctx, a.cfg.RunInterval); err != nil {
		a.logger.Error("scheduler error", "error", err)
	}

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

func refreshCities(c *cli.Context, a *app) error {
	names, err := a.cities.Refresh(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%d cities cached\n", len(names))
	return nil
}

func matchCities(c *cli.Context, a *app) error {
	if c.NArg() == 0 {
		return errors.New("at least one NAME is required")
	}
	index, err := a.cities.Names(c.Context)
	if err != nil {
		return err
	}
	m := matcher.New(index, a.cfg.MatcherConfig())
	state := domain.NormalizeState(c.String("state"))

	table := tablewriter.NewWriter(c.App.Writer)
	table.SetHeader([]string{"Raw", "Cleaned", "Strategy", "City"})
	for _, raw := range c.Args().Slice() {
		cleaned := domain.CleanCity(raw, state)
		_, strategy := m.MatchWithStrategy(cleaned)
		table.Append([]string{raw, cleaned, string(strategy), domain.ResolveCity(raw, state, m)})
	}
	table.Render()
	return nil
}

func convert(c *cli.Context, cfg *config.Config) error {
	if c.NArg() != 1 {
		return errors.New("exactly one STATE_JSON is required")
	}
	m, err := cfg.Model(c.String("model"))
	if err != nil {
		return err
	}

	_, records, err := output.ReadStateFile(c.Args().First())
	if err != nil {
		return err
	}

	w := c.App.Writer
	if path := c.String("out"); path != "" {
		f, err := os.Create(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	return m.WriteCSV(w, records)
}

func parseLabre(c *cli.Context, cfg *config.Config) error {
	if c.NArg() != 1 {
		return errors.New("exactly one FILE_OR_URL is required")
	}
	location := c.Args().First()

	var fetcher source.Fetcher = source.FileFetcher{}
	if source.IsRemote(location) {
		fetcher = source.NewHTTPFetcher(cfg.HTTPTimeout)
	}
	body, err := fetcher.Fetch(c.Context, location)
	if err != nil {
		return err
	}
	records, err := labre.Parse(bytes.NewReader(body))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(records)
}

func printSummary(w io.Writer, s *pipeline.Summary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"State", "Records"})
	for _, state := range s.States {
		table.Append([]string{strings.ToUpper(state), strconv.Itoa(len(s.Contents[state]))})
	}
	table.SetFooter([]string{strconv.Itoa(s.TotalStates()), strconv.Itoa(s.RecordsOut)})
	table.Render()

	fmt.Fprintf(w, "run %s: %d in, %d out, %d files\n", s.RunID, s.RecordsIn, s.RecordsOut, len(s.Files))
	for _, reason := range slices.Sorted(maps.Keys(s.Dropped)) {
		fmt.Fprintf(w, "  dropped %s: %d\n", reason, s.Dropped[reason])
	}
}
