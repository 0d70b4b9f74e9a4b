package scoring

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Location weights: a title hit says more than a body hit.
const (
	titleWeight    = 1.0
	keywordWeight  = 0.8
	categoryWeight = 0.7
	bodyWeight     = 0.5
)

// fold case-folds s and drops combining marks so "Crédit" and "credit" meet.
// Transformers are stateful, so a fresh chain is built per call.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// normalizeTerm turns "  AI-Funding " into "ai funding".
func normalizeTerm(s string) string {
	return strings.Join(tokenize(s), " ")
}

// field is a padded token string so phrases match on token boundaries.
type field string

func newField(s string) field {
	tokens := tokenize(s)
	if len(tokens) == 0 {
		return ""
	}
	return field(" " + strings.Join(tokens, " ") + " ")
}

func (f field) contains(term string) bool {
	if f == "" || term == "" {
		return false
	}
	return strings.Contains(string(f), " "+term+" ")
}

func keywordSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if n := normalizeTerm(v); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}
