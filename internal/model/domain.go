package model

import (
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/norm"
)

// NormalizeDomain returns the canonical key form of a hostname.
//
// Whitespace and a trailing root dot are trimmed, the name is NFC-normalized
// and lower-cased, and internationalized names are converted to their ASCII
// (punycode) form. Names IDNA rejects (underscores, odd engine output) keep
// the lower-cased form so no event is ever dropped for spelling.
// Returns "" for blank input.
func NormalizeDomain(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return ""
	}
	s = strings.ToLower(norm.NFC.String(s))
	if ascii, err := idna.Lookup.ToASCII(s); err == nil && ascii != "" {
		return ascii
	}
	return s
}
