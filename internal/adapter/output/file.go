// Package output writes normalized state groups to the filesystem.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
	"github.com/couchcryptid/repeater-data-etl/internal/model"
)

// AllRecordsFile is the name of the flat all-states export under the output dir.
const AllRecordsFile = "repeaters.csv"

// FileSaver writes {dir}/uf/{uf}/{uf}.json plus one {uf}.{model}.csv per
// configured model, and the flat export of every record.
type FileSaver struct {
	dir    string
	models []model.Model
	flat   *model.Model
	logger *slog.Logger
}

// NewFileSaver creates a saver rooted at dir. flat may be nil to skip the
// all-records export.
func NewFileSaver(dir string, models []model.Model, flat *model.Model, logger *slog.Logger) *FileSaver {
	return &FileSaver{dir: dir, models: models, flat: flat, logger: logger}
}

// StateDir returns the directory holding a state's files.
func StateDir(dir, state string) string {
	return filepath.Join(dir, "uf", state)
}

// StatePath returns the path of a state's file with the given extension
// ("json" or "{model}.csv").
func StatePath(dir, state, ext string) string {
	return filepath.Join(StateDir(dir, state), state+"."+ext)
}

// Save writes one state group and returns the written paths.
func (s *FileSaver) Save(_ context.Context, state string, records []domain.NormalizedRecord) ([]string, error) {
	if err := os.MkdirAll(StateDir(s.dir, state), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", state, err)
	}

	jsonPath := StatePath(s.dir, state, "json")
	err := writeAtomic(jsonPath, func(w io.Writer) error {
		return EncodeState(w, state, records)
	})
	if err != nil {
		return nil, err
	}
	written := []string{jsonPath}

	for _, m := range s.models {
		p := StatePath(s.dir, state, m.Name+"."+m.Extension)
		if err := writeAtomic(p, func(w io.Writer) error { return m.WriteCSV(w, records) }); err != nil {
			return written, err
		}
		written = append(written, p)
	}

	s.logger.Debug("state saved", "state", state, "records", len(records), "files", len(written))
	return written, nil
}

// SaveAll writes the flat export of every record.
func (s *FileSaver) SaveAll(_ context.Context, records []domain.NormalizedRecord) ([]string, error) {
	if s.flat == nil {
		return nil, nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	p := filepath.Join(s.dir, AllRecordsFile)
	if err := writeAtomic(p, func(w io.Writer) error { return s.flat.WriteCSV(w, records) }); err != nil {
		return nil, err
	}
	return []string{p}, nil
}

// EncodeState writes {"<state>": [records...]}.
func EncodeState(w io.Writer, state string, records []domain.NormalizedRecord) error {
	if records == nil {
		records = []domain.NormalizedRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string][]domain.NormalizedRecord{state: records}); err != nil {
		return fmt.Errorf("encode state %s: %w", state, err)
	}
	return nil
}

// ReadStateFile decodes a file written by Save. The state is taken from the
// single top-level key.
func ReadStateFile(path string) (string, []domain.NormalizedRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read state file: %w", err)
	}
	var groups map[string][]domain.NormalizedRecord
	if err := json.Unmarshal(data, &groups); err != nil {
		return "", nil, fmt.Errorf("decode state file %s: %w", path, err)
	}
	if len(groups) != 1 {
		return "", nil, fmt.Errorf("state file %s: want one state key, got %d", path, len(groups))
	}
	var state string
	var records []domain.NormalizedRecord
	for k, v := range groups {
		state, records = strings.ToLower(k), v
	}
	if !domain.IsStateCode(state) {
		return "", nil, fmt.Errorf("state file %s: unknown state %q", path, state)
	}
	return state, records, nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = pf.Cleanup() }()

	if err := write(pf); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit %s: %w", path, err)
	}
	return nil
}
