package command

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Normalize folds text into the form commands are matched in: NFKC, narrow
// width, lower case, punctuation replaced by spaces, whitespace collapsed.
func Normalize(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKC, width.Fold), s)
	if err != nil {
		folded = s
	}
	// Casers are stateful; one per call.
	folded = cases.Lower(language.Und).String(folded)

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(cleaned), " ")
}
