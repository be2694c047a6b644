// Command validate checks a published output directory: every per-state
// JSON file decodes, records carry consistent locations and frequencies,
// groups are sorted, and the model CSVs and flat export have one line per
// record.
//
// Usage:
//
//	go run ./cmd/validate -dir radio/repetidoras
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/couchcryptid/repeater-data-etl/internal/adapter/output"
	"github.com/couchcryptid/repeater-data-etl/internal/domain"
	"github.com/couchcryptid/repeater-data-etl/internal/model"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// stateFile is one decoded {uf}.json.
type stateFile struct {
	dir     string
	state   string
	records []domain.NormalizedRecord
}

func main() {
	dir := flag.String("dir", "", "output directory written by rptr run")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(os.Stdout, *dir))
}

func run(w io.Writer, dir string) int {
	fmt.Fprintln(w, "=== Repeater Output Validation ===")

	files, load := loadStateFiles(dir)
	phases := []*phase{
		load,
		validateRecords(files),
		validateSortOrder(files),
		validateModelCSVs(files),
		validateFlatExport(dir, files),
	}

	fmt.Fprintln(w)
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-32s %s\n", p.name, status)
	}

	total := 0
	for _, f := range files {
		total += len(f.records)
	}
	fmt.Fprintf(w, "\nStates: %d, records: %d\n", len(files), total)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

func loadStateFiles(dir string) ([]stateFile, *phase) {
	p := &phase{name: "State files decode"}
	var files []stateFile
	for _, code := range domain.StateCodes() {
		path := output.StatePath(dir, code, "json")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		state, records, err := output.ReadStateFile(path)
		if err != nil {
			p.errorf("%s: %v", path, err)
			continue
		}
		if state != code {
			p.errorf("%s: key %q does not match directory %q", path, state, code)
		}
		files = append(files, stateFile{dir: output.StateDir(dir, code), state: code, records: records})
	}
	if len(files) == 0 && p.passed() {
		p.errorf("no state files under %s", filepath.Join(dir, "uf"))
	}
	return files, p
}

func validateRecords(files []stateFile) *phase {
	p := &phase{name: "Record invariants"}
	for _, f := range files {
		next := map[string]int{}
		for i, r := range f.records {
			where := fmt.Sprintf("%s[%d]", f.state, i)
			if r.State() != f.state {
				p.errorf("%s: location state %q", where, r.State())
			}
			if r.City() == "" {
				p.errorf("%s: empty city", where)
			}
			key := r.Location.Key()
			if r.Location.Index != next[key] {
				p.errorf("%s: %s index %d, want %d", where, r.City(), r.Location.Index, next[key])
			}
			next[key] = r.Location.Index + 1
			if r.RX != nil && r.TX != nil && r.Offset != nil {
				if math.Abs(*r.RX+*r.Offset-*r.TX) > 1e-4 {
					p.errorf("%s: tx %v != rx %v + offset %v", where, *r.TX, *r.RX, *r.Offset)
				}
			}
		}
	}
	return p
}

func validateSortOrder(files []stateFile) *phase {
	p := &phase{name: "Groups sorted by city"}
	col := collate.New(language.BrazilianPortuguese)
	for _, f := range files {
		for i := 1; i < len(f.records); i++ {
			a, b := f.records[i-1].City(), f.records[i].City()
			if col.CompareString(a, b) > 0 {
				p.errorf("%s[%d]: %q sorts after %q", f.state, i, a, b)
			}
		}
	}
	return p
}

func validateModelCSVs(files []stateFile) *phase {
	p := &phase{name: "Model CSV line counts"}
	for _, f := range files {
		for _, name := range model.Names() {
			m, _ := model.Lookup(name)
			path := filepath.Join(f.dir, f.state+"."+m.Name+"."+m.Extension)
			lines, err := countLines(path)
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				p.errorf("%s: %v", path, err)
				continue
			}
			if lines != len(f.records)+1 {
				p.errorf("%s: %d lines, want %d", path, lines, len(f.records)+1)
			}
		}
	}
	return p
}

func validateFlatExport(dir string, files []stateFile) *phase {
	p := &phase{name: "Flat export"}
	path := filepath.Join(dir, output.AllRecordsFile)
	lines, err := countLines(path)
	if os.IsNotExist(err) {
		return p
	}
	if err != nil {
		p.errorf("%s: %v", path, err)
		return p
	}
	total := 0
	for _, f := range files {
		total += len(f.records)
	}
	if lines != total+1 {
		p.errorf("%s: %d lines, want %d", path, lines, total+1)
	}
	return p
}

// countLines counts "\n"-separated lines; the CSVs have no trailing newline.
func countLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	data = bytes.TrimRight(data, "\n")
	if len(data) == 0 {
		return 0, nil
	}
	return strings.Count(string(data), "\n") + 1, nil
}
