package domain

// CityMatcher turns a cleaned city name into its presentable form, checked
// against the official municipality list. Implementations never fail: an
// unknown name comes back capitalized, an ambiguous one with a trailing "?".
type CityMatcher interface {
	Match(name string) string
}

// CityMatcherFunc adapts a plain function to CityMatcher.
type CityMatcherFunc func(name string) string

// Match calls f(name).
func (f CityMatcherFunc) Match(name string) string {
	return f(name)
}
