package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch_ExactAfterNormalization(t *testing.T) {
	res := Match("Lisinopril", "LISINOPRIL", KindMedication)
	assert.True(t, res.Passed)
	assert.InDelta(t, 1.0, res.Score, 1e-9)
}

func TestMatch_Substring(t *testing.T) {
	res := Match("Lisinopril", "LISINOPRIL 10MG TABLET", KindMedication)
	assert.True(t, res.Passed)
	assert.InDelta(t, 0.9, res.Score, 1e-9)
}

func TestMatch_SubstringProperty(t *testing.T) {
	// Any case/whitespace variant of expected embedded in extracted text
	// must pass with score >= 0.9.
	cases := []struct{ expected, extracted string }{
		{"Metformin", "take METFORMIN with food"},
		{"John Doe", "patient  JOHN   DOE  room 4"},
		{"9:00 AM", "dose at 9:00 am daily"},
		{"81mg", "aspirin 81MG chewable"},
	}
	for _, c := range cases {
		res := Match(c.expected, c.extracted, KindMedication)
		assert.True(t, res.Passed, "expected %q to match %q", c.expected, c.extracted)
		assert.GreaterOrEqual(t, res.Score, 0.9)
	}
}

func TestMatch_TokenOverlapNameOrder(t *testing.T) {
	res := Match("Doe, John", "JOHN DOE", KindPatient)
	assert.True(t, res.Passed)
	assert.InDelta(t, 1.0, res.Score, 1e-9)

	res = Match("John Doe", "DOE, JOHN", KindPatient)
	assert.True(t, res.Passed)
}

func TestMatch_TokenOverlapPartial(t *testing.T) {
	// Two of three tokens shared: IoU = 2/4 = 0.5, below the 0.6 gate,
	// and edit distance is large, so the match fails.
	res := Match("John Michael Doe", "John Doe Smith", KindPatient)
	assert.False(t, res.Passed)
}

func TestMatch_NumericDosage(t *testing.T) {
	// Unit printed apart from the number still matches on the value.
	res := Match("10mg", "10 milligrams", KindDosage)
	assert.True(t, res.Passed)
	assert.InDelta(t, 0.8, res.Score, 1e-9)
}

func TestMatch_NumericNotAppliedToNames(t *testing.T) {
	res := Match("Ward 10", "Room 10", KindPatient)
	assert.False(t, res.Passed)
}

func TestMatch_LevenshteinFallback(t *testing.T) {
	// Single substitution in a long-ish token: similarity above 0.75.
	res := Match("lisinopril", "lisinoprul", KindMedication)
	assert.True(t, res.Passed)
	assert.GreaterOrEqual(t, res.Score, 0.75)

	// Very different strings fail and report the raw similarity.
	res = Match("lisinopril", "warfarin", KindMedication)
	assert.False(t, res.Passed)
	assert.Less(t, res.Score, 0.75)
}

func TestMatch_EmptySides(t *testing.T) {
	res := Match("John Doe", "", KindPatient)
	assert.False(t, res.Passed)
	assert.Zero(t, res.Score)

	res = Match("", "whatever", KindPatient)
	assert.False(t, res.Passed)

	res = Match("", "", KindPatient)
	assert.True(t, res.Passed)
}

func TestMatch_TimeStrings(t *testing.T) {
	res := Match("9:00 AM", "9:00 am", KindTime)
	assert.True(t, res.Passed)
	assert.InDelta(t, 1.0, res.Score, 1e-9)

	// Different hour fails every rung.
	res = Match("9:00 AM", "11:30 pm", KindTime)
	assert.False(t, res.Passed)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("abc", "abc"))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, 1, levenshtein("kitten", "sitten"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, similarity("", ""), 1e-9)
	assert.InDelta(t, 0.5, similarity("ab", "aX"), 0.26)
}
