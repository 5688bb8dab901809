// Package textnorm holds the deterministic string normalizations used for
// territory names, column headers and row-filter tokens.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// StripAccents removes combining marks ("São João" -> "Sao Joao").
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Name lowercases, strips accents and collapses whitespace. Idempotent.
func Name(s string) string {
	s = strings.ToLower(StripAccents(s))
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Column turns a header into snake_case ASCII ("Código Município" -> "codigo_municipio").
func Column(s string) string {
	s = strings.ToLower(StripAccents(strings.TrimPrefix(s, "\ufeff")))
	return strings.Trim(nonAlnumRe.ReplaceAllString(s, "_"), "_")
}

// Token normalizes a cell value for equality comparisons in row filters.
func Token(s string) string {
	return Column(s)
}
