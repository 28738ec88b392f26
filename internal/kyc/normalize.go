// Package kyc holds the text heuristics of identity document verification:
// normalization, field extraction, name similarity and trust scoring.
// Everything here is pure and safe for concurrent use.
package kyc

import (
	"strings"
	"unicode"
)

// Normalize uppercases text, drops every character outside [A-Z0-9] and
// whitespace, collapses whitespace runs to a single space and trims.
// Extracted names and registered client names must both pass through it
// before they are compared.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for _, r := range strings.ToUpper(text) {
		switch {
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}
	return b.String()
}
