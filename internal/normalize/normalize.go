// Package normalize canonicalizes OCR text and candidate field values so
// that downstream extraction and matching compare like with like.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var wsRe = regexp.MustCompile(`\s+`)

// Clean lower-cases, NFC-normalizes, applies OCR-confusion fixes and
// collapses whitespace while keeping punctuation intact. It is used on
// label lines before pattern extraction, where anchors like "name:" and
// time tokens like "9:00" still need their punctuation.
func Clean(s string) string {
	s = fold(s)
	if s == "" {
		return ""
	}
	return fixTokens(s)
}

// Normalize produces the fully canonical form used for field comparison:
// case folding, punctuation stripping (only letters, digits and single
// spaces survive) and OCR-confusion fixes. The function is total and
// idempotent; empty or whitespace-only input yields the empty string.
//
// Confusion fixes run after punctuation stripping so that token
// boundaries, and with them the per-token context decision, are the same
// on every application.
func Normalize(s string) string {
	s = fold(s)
	if s == "" {
		return ""
	}
	s = stripPunct(s)
	if s == "" {
		return ""
	}
	return fixTokens(s)
}

// Lines splits raw OCR output into cleaned, non-empty lines.
func Lines(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if c := Clean(p); c != "" {
			lines = append(lines, c)
		}
	}
	return lines
}

// fold applies Unicode NFC, lower-casing and whitespace collapsing.
func fold(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	s = strings.ToLower(s)
	s = wsRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// stripPunct replaces every rune that is not a letter or digit with a
// space and re-collapses the result.
func stripPunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.TrimSpace(wsRe.ReplaceAllString(b.String(), " "))
}

func fixTokens(s string) string {
	tokens := strings.Split(s, " ")
	for i, tok := range tokens {
		tokens[i] = fixConfusions(tok)
	}
	return strings.Join(tokens, " ")
}

// Digit/letter look-alike pairs commonly swapped by OCR engines. '1' has
// two letter forms; alphaToken picks between 'i' and 'l' by neighborhood.
var (
	letterForDigit = map[rune]rune{'0': 'o', '1': 'l', '5': 's', '8': 'b'}
	digitForLetter = map[rune]rune{'o': '0', 'l': '1', 'i': '1', 's': '5', 'b': '8'}
)

// Dosage unit suffixes recognized when deciding token context.
var unitSuffixes = []string{"mcg", "mg", "ml", "g"}

// fixConfusions rewrites look-alike characters inside a single token when
// the token's unambiguous characters establish a numeric or alphabetic
// context. Tokens made entirely of ambiguous characters are left alone
// unless a trailing dosage unit marks them as numeric.
func fixConfusions(tok string) string {
	body, suffix := splitUnitSuffix(tok)
	digits, letters := contextCounts(body)

	numeric := digits > letters
	alpha := letters > digits
	if digits == 0 && letters == 0 && suffix != "" && containsDigit(body) {
		numeric = true
	}

	switch {
	case numeric:
		return mapRunes(body, digitForLetter) + suffix
	case alpha:
		return alphaToken(body) + suffix
	default:
		return tok
	}
}

// alphaToken rewrites digits inside an alphabetic token. '0', '5' and '8'
// have a single letter form; '1' reads as 'i' between two consonants and
// as 'l' otherwise ("l1sinopril" vs "tab1et").
func alphaToken(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if r != '1' {
			if m, ok := letterForDigit[r]; ok {
				runes[i] = m
			}
		}
	}
	for i, r := range runes {
		if r == '1' {
			if consonantAt(runes, i-1) && consonantAt(runes, i+1) {
				runes[i] = 'i'
			} else {
				runes[i] = 'l'
			}
		}
	}
	return string(runes)
}

func consonantAt(runes []rune, i int) bool {
	if i < 0 || i >= len(runes) {
		return false
	}
	r := runes[i]
	if !unicode.IsLetter(r) {
		return false
	}
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return false
	}
	return true
}

// splitUnitSuffix peels a dosage unit off the end of a token so that
// "10mg" classifies by its numeric body rather than the unit letters.
func splitUnitSuffix(tok string) (string, string) {
	for _, u := range unitSuffixes {
		body, ok := strings.CutSuffix(tok, u)
		if !ok || body == "" {
			continue
		}
		if hasDigitish(body) {
			return body, u
		}
	}
	return tok, ""
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// hasDigitish reports whether any rune could plausibly be a digit.
func hasDigitish(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
		if _, ok := digitForLetter[r]; ok {
			return true
		}
	}
	return false
}

// contextCounts counts unambiguous digits and letters. Ambiguous
// look-alike characters vote for neither side, and every rewrite maps an
// ambiguous character onto another ambiguous one, so the classification
// is stable across repeated application.
func contextCounts(s string) (digits, letters int) {
	for _, r := range s {
		if _, ok := letterForDigit[r]; ok {
			continue
		}
		if _, ok := digitForLetter[r]; ok {
			continue
		}
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		}
	}
	return digits, letters
}

func mapRunes(s string, table map[rune]rune) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if m, ok := table[r]; ok {
			b.WriteRune(m)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
