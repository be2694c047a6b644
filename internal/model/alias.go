package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
)

// DefaultAliasTemplate renders "D SP: Campinas [1]".
const DefaultAliasTemplate = "{{$AD}} {{$UF}}: {{$CITY}}{{[ [{{$COUNT}}]]}}"

var (
	placeholderRe = regexp.MustCompile(`\{\{\$([A-Z_]+)\}\}`)
	optionalRe    = regexp.MustCompile(`(?s)\{\{\[(.*?)\]\}\}`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

// Template renders channel aliases. {{$FIELD}} is replaced by the field
// value; {{[ ... ]}} is kept only when every field inside it is non-empty.
// Unknown fields are left as written.
type Template struct {
	raw string
}

// ParseTemplate checks that optional groups are closed.
func ParseTemplate(s string) (*Template, error) {
	stripped := optionalRe.ReplaceAllString(s, "")
	if strings.Contains(stripped, "{{[") {
		return nil, fmt.Errorf("alias template %q: unclosed optional group", s)
	}
	return &Template{raw: s}, nil
}

// MustParseTemplate is ParseTemplate for constants.
func MustParseTemplate(s string) *Template {
	t, err := ParseTemplate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the template source.
func (t *Template) String() string {
	return t.raw
}

// Render substitutes values and squeezes whitespace.
func (t *Template) Render(values map[string]string) string {
	out := optionalRe.ReplaceAllStringFunc(t.raw, func(group string) string {
		content := optionalRe.FindStringSubmatch(group)[1]
		for _, m := range placeholderRe.FindAllStringSubmatch(content, -1) {
			if v, ok := values[m[1]]; ok && v == "" {
				return ""
			}
		}
		return content
	})
	out = placeholderRe.ReplaceAllStringFunc(out, func(ph string) string {
		if v, ok := values[placeholderRe.FindStringSubmatch(ph)[1]]; ok {
			return v
		}
		return ph
	})
	return strings.TrimSpace(spaceRe.ReplaceAllString(out, " "))
}

// AD discriminator values: analog-capable channel or digital-only.
const (
	ModeAnalog  = "A"
	ModeDigital = "D"
)

// ADMode is "D" when the record has at least one timeslot and a non-zero
// color code.
func ADMode(r domain.NormalizedRecord) string {
	if len(r.Timeslot) > 0 && r.Color != nil && *r.Color != 0 {
		return ModeDigital
	}
	return ModeAnalog
}

// AliasValues builds the placeholder map for a record.
func AliasValues(r domain.NormalizedRecord) map[string]string {
	uf := strings.ToUpper(r.Location.State)
	if uf == "" {
		uf = "XX"
	}
	city := r.Location.City
	if city == "" {
		city = "Unknown"
	}
	count := ""
	if r.Location.Index > 0 {
		count = strconv.Itoa(r.Location.Index)
	}
	return map[string]string{
		"UF":    uf,
		"CITY":  city,
		"COUNT": count,
		"AD":    ADMode(r),
	}
}
