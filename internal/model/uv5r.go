package model

import (
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
)

// uv5rNameLen is the longest channel name the UV-5R display holds.
const uv5rNameLen = 7

const defaultCTCSS = "88.5"

// UV5R is the CHIRP memory layout used for Baofeng UV-5R family radios.
var UV5R = register(Model{
	Name: "uv5r",
	Columns: []string{
		"Location", "Name", "Frequency", "Duplex", "Offset", "Tone",
		"rToneFreq", "cToneFreq", "DtcsCode", "DtcsPolarity", "RxDtcsCode",
		"CrossMode", "Mode", "TStep", "Skip", "Power", "Comment",
		"URCALL", "RPT1CALL", "RPT2CALL", "DVCODE",
	},
	Delimiter: ",",
	Extension: "csv",
	row:       uv5rRow,
	quote:     func(v string) string { return v },
})

func uv5rRow(ch int, r domain.NormalizedRecord, alias *Template) []string {
	offset := value(r.Offset)
	if offset == 0 && r.TX != nil {
		offset = value(r.TX) - value(r.RX)
	}
	duplex := ""
	switch {
	case offset > 0:
		duplex = "+"
	case offset < 0:
		duplex = "-"
	}

	tone, toneFreq := "", defaultCTCSS
	if t := r.Info.Tone.Float(); r.Info.Tone.Set && t > 0 {
		tone, toneFreq = "Tone", strconv.FormatFloat(t, 'f', 1, 64)
	}

	name := []rune(strings.ReplaceAll(alias.Render(AliasValues(r)), ",", " "))
	if len(name) > uv5rNameLen {
		name = name[:uv5rNameLen]
	}

	var comment []string
	if cs := r.Info.Callsign.String(); cs != "" {
		comment = append(comment, cs)
	}
	if r.Info.DMRID != nil && *r.Info.DMRID != 0 {
		comment = append(comment, "DMR "+number(*r.Info.DMRID))
	}

	return []string{
		strconv.Itoa(ch),
		strings.TrimSpace(string(name)),
		strconv.FormatFloat(value(r.RX), 'f', 6, 64),
		duplex,
		strconv.FormatFloat(math.Abs(offset), 'f', 6, 64),
		tone,
		toneFreq,
		defaultCTCSS,
		"023",
		"NN",
		"023",
		"Tone->Tone",
		"FM",
		"5.00",
		"",
		"High",
		strings.ReplaceAll(strings.Join(comment, " "), ",", " "),
		"", "", "", "",
	}
}
