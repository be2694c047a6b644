// Package labre reads the LABRE-SP repeater listing, an HTML spreadsheet
// export, into normalized records.
package labre

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
)

const (
	defaultState = "sp"
	unknownCity  = "Desconhecida"
	minDataCells = 5
)

var (
	// "SP - Campinas", "RJ/Niteroi"
	ufPrefixRe = regexp.MustCompile(`^\s*([A-Z]{2})\s*[-/,]\s*(.+)$`)
	cityPartRe = regexp.MustCompile(`^[^-,(]+`)
)

// Parse extracts one record per table row that carries a callsign. A
// document without a table yields no records.
func Parse(r io.Reader) ([]domain.NormalizedRecord, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse labre html: %w", err)
	}
	table := findTable(doc)
	if table == nil {
		return nil, nil
	}

	rows := collect(table, atom.Tr)
	if len(rows) == 0 {
		return nil, nil
	}
	header := findHeader(rows)
	var headers []string
	for _, c := range cells(header, atom.Th, atom.Td) {
		headers = append(headers, strings.ToLower(text(c)))
	}

	var out []domain.NormalizedRecord
	for _, row := range rows {
		if row == header {
			continue
		}
		tds := cells(row, atom.Td)
		if len(tds) < minDataCells || len(tds) < len(headers) {
			continue
		}
		if rec, ok := parseRow(headers, tds); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

type row struct {
	callsign string
	rx, tx   float64
	state    string
	city     string
	tone     string
	altitude int
}

func parseRow(headers []string, tds []*html.Node) (domain.NormalizedRecord, bool) {
	var r row
	for i, h := range headers {
		v := text(tds[i])
		switch {
		case strings.Contains(h, "indicativo"):
			r.callsign = v
		case strings.Contains(h, "freq. rx"), strings.Contains(h, "freq.rx"),
			strings.Contains(h, "off-set"), strings.Contains(h, "offset"):
			r.rx = parseDecimal(v)
		case strings.Contains(h, "freq"):
			r.tx = parseDecimal(v)
		case strings.Contains(h, "cidade"):
			r.state, r.city = parseCity(v)
		case strings.Contains(h, "tone"), strings.Contains(h, "mode"):
			r.tone = v
		case strings.Contains(h, "altitude"):
			r.altitude, _ = strconv.Atoi(leadingDigits(v))
		}
	}
	if r.callsign == "" {
		return domain.NormalizedRecord{}, false
	}

	offset := 0.0
	if r.tx != 0 && r.rx != 0 {
		offset = r.rx - r.tx
	}
	loc := domain.Location{State: defaultState, City: unknownCity}
	if r.city != "" {
		loc = domain.Location{State: r.state, City: r.city}
	}
	return domain.NormalizedRecord{
		RX:       &r.rx,
		TX:       &r.tx,
		Offset:   &offset,
		Location: loc,
		Info: domain.Info{
			Callsign: domain.StringScalar(r.callsign),
			Tone:     domain.StringScalar(r.tone),
			Altitude: domain.NumberScalar(float64(r.altitude)),
		},
	}, true
}

// parseCity reads "UF - City" or a bare city, which defaults to SP.
func parseCity(s string) (state, city string) {
	if m := ufPrefixRe.FindStringSubmatch(s); m != nil {
		if uf := strings.ToLower(m[1]); domain.IsStateCode(uf) {
			return uf, firstPart(m[2])
		}
	}
	return defaultState, firstPart(s)
}

func firstPart(s string) string {
	return strings.TrimSpace(cityPartRe.FindString(strings.TrimSpace(s)))
}

func parseDecimal(s string) float64 {
	return domain.ParseFloatPrefix(strings.Replace(strings.TrimSpace(s), ",", ".", 1))
}

func leadingDigits(s string) string {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && s[end] == '-') {
		end++
	}
	return s[:end]
}

// findTable prefers a table mentioning the callsign or frequency columns.
func findTable(doc *html.Node) *html.Node {
	tables := collect(doc, atom.Table)
	for _, t := range tables {
		if s := text(t); strings.Contains(s, "Indicativo") || strings.Contains(s, "Freq") {
			return t
		}
	}
	if len(tables) > 0 {
		return tables[0]
	}
	return nil
}

// findHeader returns the first row with more than five cells naming a known
// column, or the first row.
func findHeader(rows []*html.Node) *html.Node {
	for _, r := range rows {
		if len(cells(r, atom.Th, atom.Td)) <= minDataCells {
			continue
		}
		if s := text(r); strings.Contains(s, "Indicativo") || strings.Contains(s, "Freq") {
			return r
		}
	}
	return rows[0]
}

func collect(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func cells(tr *html.Node, kinds ...atom.Atom) []*html.Node {
	var out []*html.Node
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		for _, k := range kinds {
			if c.DataAtom == k {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
