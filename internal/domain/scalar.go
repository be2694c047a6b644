package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// floatPrefixRe matches the longest decimal prefix parseFloat would accept.
var floatPrefixRe = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// Scalar is a JSON field that upstream sends as a number or as a string.
// The zero value is an absent field.
type Scalar struct {
	Text  string
	Num   float64
	IsNum bool
	Set   bool
}

// NumberScalar returns a present numeric scalar.
func NumberScalar(v float64) Scalar {
	return Scalar{Num: v, IsNum: true, Set: true}
}

// StringScalar returns a present string scalar.
func StringScalar(s string) Scalar {
	return Scalar{Text: s, Set: true}
}

// UnmarshalJSON accepts numbers, strings and null. Booleans are kept as
// their literal text.
func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*s = Scalar{}
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		return nil
	case b[0] == '"':
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return fmt.Errorf("decode scalar string: %w", err)
		}
		*s = StringScalar(text)
	case bytes.Equal(b, []byte("true")) || bytes.Equal(b, []byte("false")):
		*s = StringScalar(string(b))
	default:
		v, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("decode scalar %q: %w", b, err)
		}
		*s = NumberScalar(v)
	}
	return nil
}

// MarshalJSON writes the scalar back in the form it arrived in.
func (s Scalar) MarshalJSON() ([]byte, error) {
	switch {
	case !s.Set:
		return []byte("null"), nil
	case s.IsNum:
		return json.Marshal(s.Num)
	default:
		return json.Marshal(s.Text)
	}
}

// String renders the scalar as text; absent scalars are "".
func (s Scalar) String() string {
	switch {
	case !s.Set:
		return ""
	case s.IsNum:
		return strconv.FormatFloat(s.Num, 'f', -1, 64)
	default:
		return s.Text
	}
}

// Float coerces the scalar like parseFloat(x) || 0.
func (s Scalar) Float() float64 {
	if s.IsNum {
		if math.IsNaN(s.Num) {
			return 0
		}
		return s.Num
	}
	return ParseFloatPrefix(s.Text)
}

// ParseFloatPrefix parses the longest leading decimal number in s after
// leading whitespace, returning 0 when there is none.
func ParseFloatPrefix(s string) float64 {
	m := floatPrefixRe.FindString(strings.TrimLeft(s, " \t\n\r\f\v"))
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

// round5 rounds to five decimals, the precision of published frequencies.
func round5(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 5, 64), 64)
	if err != nil {
		return v
	}
	return r
}
