package domain

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	// brazilRe accepts both spellings used by radioid.net trustees.
	brazilRe = regexp.MustCompile(`(?i)bra(s|z)il`)

	tsTokenRe = regexp.MustCompile(`(?i)ts`)

	leadingIntRe = regexp.MustCompile(`^[+-]?\d+`)
)

// Rejection reasons. NormalizeRecord returns exactly one of these when a
// record does not make it into a state group.
var (
	ErrNotBrazil    = errors.New("country is not brazil")
	ErrInactive     = errors.New("repeater is not active")
	ErrUnknownState = errors.New("state not recognized")
	ErrUnknownCity  = errors.New("city could not be resolved")
)

// RejectReason returns a short label for a rejection error, suitable for
// metrics and summaries. Unknown errors map to "other".
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotBrazil):
		return "country"
	case errors.Is(err, ErrInactive):
		return "status"
	case errors.Is(err, ErrUnknownState):
		return "state"
	case errors.Is(err, ErrUnknownCity):
		return "city"
	case errors.Is(err, ErrMalformedRecord):
		return "decode"
	default:
		return "other"
	}
}

// DuplicateCounter counts (state, city) occurrences within one batch run.
// It is not safe for concurrent use.
type DuplicateCounter struct {
	seen map[string]int
}

// NewDuplicateCounter returns an empty counter. Use one per run.
func NewDuplicateCounter() *DuplicateCounter {
	return &DuplicateCounter{seen: make(map[string]int)}
}

// Next records one more occurrence of the pair and returns its duplicate
// index: 0 for the first occurrence, then 1, 2, ...
func (c *DuplicateCounter) Next(state, city string) int {
	key := Location{State: state, City: city}.Key()
	n := c.seen[key]
	c.seen[key] = n + 1
	return n
}

// Count returns how many times the pair has been seen.
func (c *DuplicateCounter) Count(state, city string) int {
	return c.seen[Location{State: state, City: city}.Key()]
}

// ResolveLocation applies the country/status filter and resolves the state
// code and city name of a raw record. It has no side effects, so it can run
// for many records in parallel.
func ResolveLocation(rec RawRepeaterRecord, m CityMatcher) (state, city string, err error) {
	if !brazilRe.MatchString(strings.TrimSpace(rec.Country.String())) {
		return "", "", ErrNotBrazil
	}
	if !strings.EqualFold(rec.Status.String(), "active") {
		return "", "", ErrInactive
	}
	state = NormalizeState(rec.State.String())
	if state == "" {
		return "", "", ErrUnknownState
	}
	city = ResolveCity(rec.City.String(), state, m)
	if city == "" {
		return "", "", ErrUnknownCity
	}
	return state, city, nil
}

// BuildRecord restructures a raw record whose location is already resolved
// and takes the next duplicate index from counter.
func BuildRecord(rec RawRepeaterRecord, state, city string, counter *DuplicateCounter) NormalizedRecord {
	out := NormalizedRecord{
		RX:     floatPtr(rec.Frequency),
		Offset: floatPtr(rec.Offset),
		Color:  floatPtr(rec.ColorCode),
		Info: Info{
			DMRID:    floatPtr(rec.ID),
			Callsign: rec.Callsign,
			IPSC:     rec.IPSCNetwork,
			Assigned: rec.Assigned,
			Locator:  rec.Locator,
			Trustee:  rec.Trustee,
			Map:      rec.Map,
			MapInfo:  rec.MapInfo,
		},
		Location: Location{State: state, City: city},
	}
	if rec.TSLinked.Set {
		out.Timeslot = ParseTimeslots(rec.TSLinked.String())
	}
	if out.RX != nil && out.Offset != nil {
		tx := round5(*out.RX + *out.Offset)
		out.TX = &tx
	}
	if len(rec.Extra) > 0 {
		out.Extra = make(map[string]json.RawMessage, len(rec.Extra))
		for k, v := range rec.Extra {
			out.Extra[k] = capitalizeRaw(v)
		}
	}
	out.Location.Index = counter.Next(state, city)
	return out
}

// NormalizeRecord resolves and builds a record in one step. Rejected records
// do not touch the counter.
func NormalizeRecord(rec RawRepeaterRecord, m CityMatcher, counter *DuplicateCounter) (NormalizedRecord, error) {
	state, city, err := ResolveLocation(rec, m)
	if err != nil {
		return NormalizedRecord{}, err
	}
	return BuildRecord(rec, state, city, counter), nil
}

// ParseTimeslots converts "TS1 TS2" into [1 2], dropping tokens that are not
// positive integers.
func ParseTimeslots(s string) []int {
	out := []int{}
	s = strings.TrimSpace(tsTokenRe.ReplaceAllString(s, ""))
	for _, tok := range strings.Fields(s) {
		m := leadingIntRe.FindString(tok)
		if m == "" {
			continue
		}
		n, err := strconv.Atoi(m)
		if err != nil || n <= 0 {
			continue
		}
		out = append(out, n)
	}
	return out
}

func floatPtr(s Scalar) *float64 {
	if !s.Set {
		return nil
	}
	v := s.Float()
	return &v
}

// capitalizeRaw capitalizes JSON strings and leaves every other value alone.
func capitalizeRaw(v json.RawMessage) json.RawMessage {
	if len(v) == 0 || v[0] != '"' {
		return v
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return v
	}
	b, err := json.Marshal(Capitalize(s))
	if err != nil {
		return v
	}
	return b
}
