package query

import "strings"

// Mode selects how tolerant compilation and substitution are of malformed input.
type Mode int

const (
	// Lenient drops malformed conditions, treats unknown operators as
	// equality and leaves unmatched placeholders in place.
	Lenient Mode = iota
	// Strict rejects all of the above with an error.
	Strict
)

// ParseMode maps a configuration value to a Mode. Anything other than
// "strict" selects Lenient.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), "strict") {
		return Strict
	}
	return Lenient
}

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "lenient"
}
