package domain

import (
	"regexp"
	"strings"
)

var (
	edgePunctLeftRe  = regexp.MustCompile(`^[-./,|\s]+`)
	edgePunctRightRe = regexp.MustCompile(`[-./,|\s]+$`)
)

// CleanCity strips trailing state and country qualifiers from a raw city
// string and normalizes separators. Only qualifiers anchored at the end are
// removed; "SP Campinas" keeps its leading "SP".
//
// When state is a known code, the words of its canonical name are stripped
// first, then every table spelling and the country tokens.
func CleanCity(raw, state string) string {
	if raw == "" {
		return ""
	}
	city := raw

	if name := StateName(state); name != "" {
		for _, w := range strings.Fields(name) {
			city = wordPatterns[w].ReplaceAllString(city, "")
		}
	}
	for _, re := range suffixPatterns {
		city = re.ReplaceAllString(city, "")
	}

	city = edgePunctRightRe.ReplaceAllString(city, "")
	city = edgePunctLeftRe.ReplaceAllString(city, "")
	return collapsePunct(city)
}

// ResolveCity cleans raw for the given state and validates it against m.
// Cleaned values shorter than two characters skip matching and fall back
// to the capitalized raw text with separators collapsed. A nil matcher
// capitalizes the cleaned value.
func ResolveCity(raw, state string, m CityMatcher) string {
	if raw == "" {
		return ""
	}
	cleaned := CleanCity(raw, state)
	if len([]rune(cleaned)) > 1 {
		if m == nil {
			return Capitalize(cleaned)
		}
		return m.Match(cleaned)
	}
	return Capitalize(collapsePunct(raw))
}
