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

// Transformers carry state, so each goroutine borrows its own chain.
var foldPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFKD,
			runes.Remove(runes.In(unicode.Mn)),
			cases.Upper(language.Und),
			norm.NFC,
		)
	},
}

// Name returns the comparison form of a person or organization name: accents
// folded, upper-cased, apostrophes dropped, every other run of non-alphanumeric
// characters collapsed to a single space. "José  O'Neil-Smith" and
// "JOSE ONEIL SMITH" normalize to the same string.
func Name(s string) string {
	t := foldPool.Get().(transform.Transformer)
	folded, _, err := transform.String(t, s)
	foldPool.Put(t)
	if err != nil {
		folded = strings.ToUpper(s)
	}

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

// State normalizes a two-letter state code.
func State(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Key is the name-and-state lookup key. It is empty when the name normalizes
// to nothing.
func Key(name, state string) string {
	n := Name(name)
	if n == "" {
		return ""
	}
	return n + "|" + State(state)
}
