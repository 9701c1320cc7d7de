// Package canon turns profile fields into the canonical text used for embedding
// and content-addressed cache keys.
package canon

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kailas-cloud/profdex/internal/domain/record"
)

// FieldSeparator joins non-empty canonical fields.
const FieldSeparator = " | "

// Canonicalize normalizes profile fields into a single string. It never fails:
// missing fields are empty and contribute nothing.
func Canonicalize(name, headline, experience, skills, location string) string {
	parts := make([]string, 0, 5)
	for _, f := range []string{name, headline, experience, skills, location} {
		if s := Field(f); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, FieldSeparator)
}

// Record canonicalizes the textual fields of a record.
func Record(r record.Record) string {
	f := r.Fields()
	return Canonicalize(f.Name, f.Headline, f.Experience, f.Skills, f.Location)
}

// Field normalizes one text value: markup stripped, diacritics folded,
// decorative symbols dropped, whitespace collapsed, lower-cased.
func Field(s string) string {
	if s == "" {
		return ""
	}
	s = stripMarkup(s)
	s = fold(s)
	s = cases.Lower(language.Und).String(s)
	return strings.Join(strings.Fields(s), " ")
}

// stripMarkup keeps only the text content of HTML-like input, with entities decoded.
func stripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// tags separate words: "<li>go</li><li>sql</li>" must not become "gosql"
			b.WriteByte(' ')
		}
	}
}

// decorative matches runes with no lexical content: emoji and other symbols,
// joiners, variation selectors, private use and control characters.
var decorative = runes.Predicate(func(r rune) bool {
	if r < unicode.MaxASCII {
		return unicode.IsControl(r) && !unicode.IsSpace(r)
	}
	if unicode.IsSpace(r) {
		return false
	}
	return unicode.Is(unicode.So, r) ||
		unicode.Is(unicode.Sk, r) ||
		unicode.Is(unicode.Co, r) ||
		unicode.Is(unicode.Cf, r) ||
		unicode.Is(unicode.Cc, r) ||
		unicode.Is(unicode.Variation_Selector, r)
})

// fold decomposes, drops combining marks and decorative runes, and recomposes.
func fold(s string) string {
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(decorative),
		runes.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return ' '
			}
			return r
		}),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
