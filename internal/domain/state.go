package domain

import (
	"regexp"
	"strings"
)

type stateEntry struct {
	key  string
	code string
}

// stateTable maps every accepted spelling to its two-letter code. Order
// matters: the first entry for a code is its canonical name, and the city
// cleaner strips suffixes in this order.
var stateTable = []stateEntry{
	{"acre", "ac"},
	{"alagoas", "al"},
	{"amapa", "ap"},
	{"amapá", "ap"},
	{"amazonas", "am"},
	{"bahia", "ba"},
	{"ceara", "ce"},
	{"ceará", "ce"},
	{"distrito federal", "df"},
	{"espirito santo", "es"},
	{"espírito santo", "es"},
	{"goias", "go"},
	{"goiás", "go"},
	{"maranhao", "ma"},
	{"maranhão", "ma"},
	{"mato grosso", "mt"},
	{"mato grosso do sul", "ms"},
	{"minas gerais", "mg"},
	{"para", "pa"},
	{"pará", "pa"},
	{"paraiba", "pb"},
	{"paraíba", "pb"},
	{"parana", "pr"},
	{"paraná", "pr"},
	{"pernambuco", "pe"},
	{"piaui", "pi"},
	{"piauí", "pi"},
	{"rio de janeiro", "rj"},
	{"rio grande do norte", "rn"},
	{"rio grande do sul", "rs"},
	{"rondonia", "ro"},
	{"rondônia", "ro"},
	{"roraima", "rr"},
	{"santa catarina", "sc"},
	{"sao paulo", "sp"},
	{"são paulo", "sp"},
	{"sergipe", "se"},
	{"tocantins", "to"},

	{"ac", "ac"}, {"al", "al"}, {"ap", "ap"}, {"am", "am"}, {"ba", "ba"},
	{"ce", "ce"}, {"df", "df"}, {"es", "es"}, {"go", "go"}, {"ma", "ma"},
	{"mt", "mt"}, {"ms", "ms"}, {"mg", "mg"}, {"pa", "pa"}, {"pb", "pb"},
	{"pr", "pr"}, {"pe", "pe"}, {"pi", "pi"}, {"rj", "rj"}, {"rn", "rn"},
	{"rs", "rs"}, {"ro", "ro"}, {"rr", "rr"}, {"sc", "sc"}, {"sp", "sp"},
	{"se", "se"}, {"to", "to"},
}

// countryTokens are stripped after the state names.
var countryTokens = []string{"brazil", "brasil"}

var (
	stateLookup = map[string]string{}
	stateNames  = map[string]string{}
	stateCodes  []string

	// suffixPatterns holds one trailing-qualifier pattern per table key,
	// followed by the country tokens, in strip order.
	suffixPatterns []*regexp.Regexp

	// wordPatterns caches the per-word patterns used for a record's own state.
	wordPatterns = map[string]*regexp.Regexp{}
)

func init() {
	for _, e := range stateTable {
		stateLookup[e.key] = e.code
		if _, ok := stateNames[e.code]; !ok {
			stateNames[e.code] = e.key
		}
		if e.key == e.code {
			stateCodes = append(stateCodes, e.code)
		}
	}
	for _, e := range stateTable {
		suffixPatterns = append(suffixPatterns, suffixPattern(e.key))
		for _, w := range strings.Fields(e.key) {
			if _, ok := wordPatterns[w]; !ok {
				wordPatterns[w] = suffixPattern(w)
			}
		}
	}
	for _, c := range countryTokens {
		suffixPatterns = append(suffixPatterns, suffixPattern(c))
	}
}

// suffixPattern matches token at the end of a string when it is preceded by
// at least one separator, case-insensitively.
func suffixPattern(token string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)[-\s/,.]+` + regexp.QuoteMeta(token) + `[-\s/,.]*$`)
}

// NormalizeState maps a free-text state name or abbreviation to its
// lowercase two-letter code, or "" when the input is not a Brazilian state.
func NormalizeState(s string) string {
	if s == "" {
		return ""
	}
	return stateLookup[Fold(s)]
}

// StateName returns the canonical lowercase name for a state code.
func StateName(code string) string {
	return stateNames[code]
}

// StateCodes lists the 27 state codes in table order.
func StateCodes() []string {
	out := make([]string, len(stateCodes))
	copy(out, stateCodes)
	return out
}

// IsStateCode reports whether code is one of the 27 lowercase codes.
func IsStateCode(code string) bool {
	c, ok := stateLookup[code]
	return ok && c == code
}
