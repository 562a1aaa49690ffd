package match

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Transformers are stateful, so each call borrows its own chain.
var foldPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFC,
			cases.Lower(language.Und),
			runes.Remove(runes.Predicate(isJoiner)),
		)
	},
}

func isJoiner(r rune) bool { return r == '-' || r == '_' }

// Normalize returns the comparable form of text: lowercased, without '-' and
// '_', whitespace runs collapsed to one space and trimmed.
//
// No separator is ever inserted, so "iPhone15" stays distinct from "iphone 15".
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	t := foldPool.Get().(transform.Transformer)
	defer foldPool.Put(t)
	t.Reset()

	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = strings.Map(func(r rune) rune {
			if isJoiner(r) {
				return -1
			}
			return unicode.ToLower(r)
		}, text)
	}
	return strings.Join(strings.Fields(folded), " ")
}
