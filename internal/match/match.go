// Package match scores one expected field value against extracted label
// text.
//
// The scoring ladder is evaluated in order and the first rung that
// succeeds decides the result:
//
//  1. exact normalized equality           -> 1.0, passed
//  2. expected is a substring of extracted -> 0.9, passed
//  3. token-set overlap (IoU) >= 0.6       -> overlap, passed
//  4. numeric-token equality (short fields) -> 0.8, passed
//  5. Levenshtein similarity               -> passed iff >= 0.75
//
// The ladder is also what makes name-order invariance work: "doe john"
// and "john doe" share an identical token set, so rung 3 scores them 1.0
// regardless of printed order.
package match

import (
	"strings"

	"github.com/MeKo-Tech/medscan/internal/normalize"
)

// Kind identifies which label field a comparison is for.
type Kind string

const (
	KindMedication Kind = "medication_name"
	KindDosage     Kind = "dosage"
	KindPatient    Kind = "patient_name"
	KindTime       Kind = "time"
)

// Ladder thresholds and rung scores.
const (
	substringScore      = 0.9
	overlapThreshold    = 0.6
	numericScore        = 0.8
	similarityThreshold = 0.75
)

// Result is the outcome of comparing one expected field value against the
// extracted text.
type Result struct {
	Field  Kind    `json:"field"`
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
}

// Match compares an expected field value with extracted text. Both sides
// are normalized before comparison; an empty side fails with score 0
// except when both are empty.
func Match(expected, extracted string, kind Kind) Result {
	exp := normalize.Normalize(expected)
	got := normalize.Normalize(extracted)

	if exp == "" && got == "" {
		return Result{Field: kind, Passed: true, Score: 1.0}
	}
	if exp == "" || got == "" {
		return Result{Field: kind, Passed: false, Score: 0}
	}

	if exp == got {
		return Result{Field: kind, Passed: true, Score: 1.0}
	}

	if strings.Contains(got, exp) {
		return Result{Field: kind, Passed: true, Score: substringScore}
	}

	if overlap := tokenOverlap(tokenSet(exp), tokenSet(got)); overlap >= overlapThreshold {
		return Result{Field: kind, Passed: true, Score: overlap}
	}

	if shortNumericField(kind) {
		if n := leadingNumber(exp); n != "" && n == leadingNumber(got) {
			return Result{Field: kind, Passed: true, Score: numericScore}
		}
	}

	score := similarity(exp, got)
	return Result{Field: kind, Passed: score >= similarityThreshold, Score: score}
}

// shortNumericField reports whether the numeric-token rung applies.
func shortNumericField(kind Kind) bool {
	return kind == KindDosage || kind == KindTime
}
