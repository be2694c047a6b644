package model

import (
	"strconv"
	"strings"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
)

// Flat is the all-records spreadsheet export: one row per repeater with the
// info fields spread into their own columns.
var Flat = register(Model{
	Name: "flat",
	Columns: []string{
		"location", "rx", "tx", "offset", "color", "timeslot",
		"info.dmr_id", "info.callsign", "info.ipsc", "info.assigned",
		"info.locator", "info.trustee", "info.map", "info.map_info",
		"info.tone", "info.altitude",
	},
	Delimiter: ";",
	Extension: "csv",
	row:       flatRow,
	quote:     quoteIfSpecial,
})

func flatRow(_ int, r domain.NormalizedRecord, _ *Template) []string {
	loc := []string{strings.ToUpper(r.Location.State), r.Location.City}
	if r.Location.Index > 0 {
		loc = append(loc, strconv.Itoa(r.Location.Index))
	}
	slots := make([]string, len(r.Timeslot))
	for i, s := range r.Timeslot {
		slots[i] = strconv.Itoa(s)
	}
	opt := func(v *float64) string {
		if v == nil {
			return ""
		}
		return number(*v)
	}
	return []string{
		strings.Join(loc, ","),
		opt(r.RX),
		opt(r.TX),
		opt(r.Offset),
		opt(r.Color),
		strings.Join(slots, ","),
		opt(r.Info.DMRID),
		r.Info.Callsign.String(),
		r.Info.IPSC.String(),
		r.Info.Assigned.String(),
		r.Info.Locator.String(),
		r.Info.Trustee.String(),
		r.Info.Map.String(),
		r.Info.MapInfo.String(),
		r.Info.Tone.String(),
		r.Info.Altitude.String(),
	}
}

// quoteIfSpecial quotes values holding the delimiter, a comma, a quote or a
// line break.
func quoteIfSpecial(v string) string {
	if !strings.ContainsAny(v, ";,\"\n") {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}
