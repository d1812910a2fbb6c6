package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_Basic(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"whitespace only", "  \t \n ", ""},
		{"lowercases", "LISINOPRIL", "lisinopril"},
		{"collapses whitespace", "john   doe", "john doe"},
		{"strips punctuation", "doe, john", "doe john"},
		{"strips colon from time", "9:00 AM", "9 00 am"},
		{"keeps alphanumerics", "take 2 tablets", "take 2 tablets"},
		{"mixed punctuation", "Rx#: 123-456", "rx 123 456"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalize_ConfusionFixes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"zero in name", "JOHN D0E", "john doe"},
		{"one as i between consonants", "L1SINOPRIL", "lisinopril"},
		{"one as l next to vowel", "TAB1ET", "tablet"},
		{"letter o in dosage", "1Omg", "10mg"},
		{"five as S in number", "12S", "125"},
		{"eight as B in number", "4B2", "482"},
		{"ambiguous token untouched", "ill", "ill"},
		{"plain dosage untouched", "10mg", "10mg"},
		{"word ending in unit letters untouched", "blog", "blog"},
		{"unit with decimal", "2.5ml", "2 5ml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"LISINOPRIL 10MG",
		"Doe, John",
		"9:00 AM  TABLET",
		"JOHN D0E\nL1SINOPRIL",
		"a1.23 x0.5s",
		"Take 1 tablet by mouth daily",
		"blog omg 1omg",
		"!!!@@@###",
		" Martínez, José",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "normalize must be idempotent for %q", in)
	}
}

func TestClean_KeepsPunctuation(t *testing.T) {
	assert.Equal(t, "name: doe, john", Clean("Name:  DOE,  John"))
	assert.Equal(t, "9:00 am", Clean("9:00 AM"))
}

func TestLines(t *testing.T) {
	lines := Lines("JOHN DOE\r\n\r\nLISINOPRIL 10MG\n  9:00 AM  ")
	assert.Equal(t, []string{"john doe", "lisinopril 10mg", "9:00 am"}, lines)

	assert.Nil(t, Lines(""))
	assert.Empty(t, Lines("\n\n\n"))
}
