package domain

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// punctRunRe matches runs of the separators trustees put between city,
	// state and country ("Campinas - SP", "Curitiba/PR", "Foz do Iguaçu, PR").
	punctRunRe = regexp.MustCompile(`[-./,|]+`)

	spaceRunRe = regexp.MustCompile(`\s+`)
)

// combiningMark covers U+0300–U+036F, the block left behind by NFD for
// Portuguese accents and the cedilla.
var combiningMark = runes.Predicate(func(r rune) bool {
	return r >= 0x0300 && r <= 0x036f
})

// Fold lowercases s, strips combining diacritics and trims surrounding
// whitespace. It is the key form used by the state table and the city index.
func Fold(s string) string {
	// transform chains carry state, so build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(combiningMark))
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	return strings.TrimSpace(folded)
}

// Capitalize lowercases s and upper-cases the first letter of every
// space-separated word. Repeated spaces are preserved.
func Capitalize(s string) string {
	words := strings.Split(strings.ToLower(s), " ")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if r == utf8.RuneError {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// collapsePunct turns separator runs into single spaces and squeezes
// whitespace.
func collapsePunct(s string) string {
	s = punctRunRe.ReplaceAllString(s, " ")
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
