// Package keys derives the canonical lookup key for any display name.
//
// The key is the join key used by the matcher, the aggregator, and every
// persisted slug (countries.slug, ethnic_groups.slug, languages.code). Any
// change to Normalize invalidates previously persisted slugs, so behavior
// changes must bump Version.
package keys

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Version identifies the normalization rules. Persisted slugs are only
// comparable when produced by the same version.
const Version = 1

// Normalize maps a display name to its camel-case key.
//
// Steps: lowercase, strip diacritics (NFD + combining mark removal), replace
// "& / ( )" and any other non-word character with a space, collapse
// whitespace, then join words in camel case ("Fon & apparentés" ->
// "fonApparentes").
//
// A string that already has key shape is returned unchanged, which keeps
// Normalize idempotent.
func Normalize(name string) string {
	s := strings.TrimSpace(name)
	if IsKey(s) {
		return s
	}
	words := Words(s)
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for i, w := range words {
		if i == 0 {
			b.WriteString(w)
			continue
		}
		r, size := utf8.DecodeRuneInString(w)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(w[size:])
	}
	return b.String()
}

// IsKey reports whether s is already in key shape: non-empty, ASCII word
// characters only, first character not an uppercase letter.
func IsKey(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isWordByte(c) {
			return false
		}
		if i == 0 && c >= 'A' && c <= 'Z' {
			return false
		}
	}
	return true
}

// Words returns the lowercase, diacritic-free words of name in order. It is
// the token form used for similarity scoring. Keys are split back on their
// camel-case boundaries.
func Words(name string) []string {
	s := strings.TrimSpace(name)
	if s == "" {
		return nil
	}
	if IsKey(s) {
		s = splitCamel(s)
	}
	s = StripDiacritics(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < utf8.RuneSelf && isWordByte(byte(r)) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte(' ')
	}
	return strings.Fields(b.String())
}

// StripDiacritics removes combining marks after canonical decomposition
// ("Algérie" -> "Algerie").
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// isWordByte matches the ASCII word class [A-Za-z0-9_].
func isWordByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

func splitCamel(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if i > 0 && c >= 'A' && c <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteByte(c)
	}
	return b.String()
}
