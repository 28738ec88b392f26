package kyc

import (
	"strings"
	"unicode"

	"github.com/adrg/strutil/metrics"
)

// dice counts bigrams as a multiset, so a repeated pair only matches as often
// as it occurs in both strings.
var dice = &metrics.SorensenDice{CaseSensitive: true, NgramSize: 2}

// Similarity returns the Dice coefficient of the character bigrams of a and b,
// ignoring whitespace. Identical strings score 1, strings without a shared
// bigram score 0.
func Similarity(a, b string) float64 {
	first := stripSpace(a)
	second := stripSpace(b)

	if first == second {
		return 1
	}
	if len([]rune(first)) < 2 || len([]rune(second)) < 2 {
		return 0
	}
	return dice.Compare(first, second)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
