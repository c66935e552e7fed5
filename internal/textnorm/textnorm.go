// Package textnorm normalizes Spanish infrastructure names for matching.
package textnorm

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopwords are dropped before similarity scoring; they carry no identity.
var stopwords = map[string]bool{
	"de": true, "del": true, "la": true, "las": true, "el": true,
	"los": true, "y": true, "en": true, "a": true, "al": true,
}

// Fold lowercases s, strips diacritics and trims surrounding space.
// "Centro de Salud Málaga" becomes "centro de salud malaga".
func Fold(s string) string {
	s, _, _ = transform.String(
		transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
		strings.TrimSpace(strings.ToLower(s)),
	)
	return s
}

// Tokens returns the folded alphanumeric words of s without stopwords.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

// Similarity scores two names from 0 to 100 using the cosine similarity of
// their bag-of-words vectors.
func Similarity(a, b string) float64 {
	va := vectorize(a)
	vb := vectorize(b)
	if len(va) == 0 || len(vb) == 0 {
		return 0
	}

	var dot, na, nb float64
	for w, ca := range va {
		dot += float64(ca * vb[w])
		na += float64(ca * ca)
	}
	for _, cb := range vb {
		nb += float64(cb * cb)
	}
	return 100 * dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func vectorize(s string) map[string]int {
	v := make(map[string]int)
	for _, t := range Tokens(s) {
		v[t]++
	}
	return v
}

// EscapeCQL quotes a literal for use inside a single-quoted CQL/SQL string.
func EscapeCQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
