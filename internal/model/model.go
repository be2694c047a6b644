// Package model converts normalized repeater records into the channel tables
// imported by radio programming software.
package model

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
)

// ErrUnknownModel is returned by Lookup for names not in the registry.
var ErrUnknownModel = errors.New("unknown model")

// RowFunc maps the record at 1-based channel ch to one value per column.
type RowFunc func(ch int, r domain.NormalizedRecord, alias *Template) []string

// Model is a fixed-column channel layout.
type Model struct {
	Name      string
	Columns   []string
	Delimiter string
	Extension string

	alias *Template
	row   RowFunc
	quote func(string) string
}

// WithAlias returns a copy of m rendering channel aliases with t.
func (m Model) WithAlias(t *Template) Model {
	m.alias = t
	return m
}

// WithDelimiter returns a copy of m joining fields with d.
func (m Model) WithDelimiter(d string) Model {
	if d != "" {
		m.Delimiter = d
	}
	return m
}

// Alias returns the template used for the channel alias column.
func (m Model) Alias() *Template {
	if m.alias == nil {
		return MustParseTemplate(DefaultAliasTemplate)
	}
	return m.alias
}

// Table returns the header row followed by one row per record.
func (m Model) Table(records []domain.NormalizedRecord) [][]string {
	alias := m.Alias()
	out := make([][]string, 0, len(records)+1)
	out = append(out, append([]string(nil), m.Columns...))
	for i, r := range records {
		out = append(out, m.row(i+1, r, alias))
	}
	return out
}

// CSV serializes Table, quoting every field with the model's formatter.
func (m Model) CSV(records []domain.NormalizedRecord) string {
	var b strings.Builder
	_ = m.WriteCSV(&b, records)
	return b.String()
}

// WriteCSV streams the CSV form to w. Lines are separated by "\n" with no
// trailing newline.
func (m Model) WriteCSV(w io.Writer, records []domain.NormalizedRecord) error {
	quote := m.quote
	if quote == nil {
		quote = QuoteIfNotNumeric
	}
	for i, row := range m.Table(records) {
		fields := make([]string, len(row))
		for j, v := range row {
			fields[j] = quote(v)
		}
		line := strings.Join(fields, m.Delimiter)
		if i > 0 {
			line = "\n" + line
		}
		if _, err := io.WriteString(w, line); err != nil {
			return fmt.Errorf("write %s csv: %w", m.Name, err)
		}
	}
	return nil
}

// QuoteIfNotNumeric leaves numeric-looking values bare and double-quotes
// everything else, doubling embedded quotes. Blank values count as numeric.
func QuoteIfNotNumeric(v string) string {
	t := strings.TrimSpace(v)
	if t == "" {
		return v
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

var registry = map[string]Model{}

func register(m Model) Model {
	registry[m.Name] = m
	return m
}

// Lookup returns the registered model called name.
func Lookup(name string) (Model, error) {
	m, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// Names lists registered models in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// freq formats a frequency in MHz with five decimals; nil is 0.
func freq(v *float64) string {
	return strconv.FormatFloat(value(v), 'f', 5, 64)
}

func value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
