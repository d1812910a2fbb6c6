// Package validate turns per-field match results into an overall label
// verdict.
//
// Patient name and scheduled time are required: those two guard against
// scanning the wrong person or the wrong moment, the failure modes with
// real safety consequences. Medication name and dosage only contribute to
// the display score and confidence, because stylized packaging fonts make
// drug names the noisiest OCR target.
package validate

import (
	"github.com/MeKo-Tech/medscan/internal/extract"
	"github.com/MeKo-Tech/medscan/internal/match"
)

// Expected is the patient/medication/time tuple a capture session verifies
// against. PatientName arrives in "Last, First" form; ScheduledTime is the
// localized display string expected to appear printed on the label.
type Expected struct {
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
	PatientName    string `json:"patient_name"`
	ScheduledTime  string `json:"scheduled_time"`
}

// Verdict is the outcome of validating one extracted label.
type Verdict struct {
	IsValid        bool                `json:"is_valid"`
	Matches        map[match.Kind]bool `json:"matches"`
	Score          int                 `json:"score"` // total passed fields, for display
	Confidence     float64             `json:"confidence"`
	RequiredChecks int                 `json:"required_checks"`
	PassedChecks   int                 `json:"passed_checks"`
	Results        []match.Result      `json:"results"`
}

// requiredKinds are the fields that must pass for a valid verdict.
var requiredKinds = map[match.Kind]bool{
	match.KindPatient: true,
	match.KindTime:    true,
}

// Validate scores every comparable field of the extracted label against
// the expected values. Absent extracted fields degrade to an automatic
// fail for that field (matching against empty text), while optional
// expected fields the caller left unset are skipped entirely so a vacuous
// pass cannot inflate the score or confidence. IsValid holds only when
// every required field passed; partial credit never suffices.
func Validate(extracted extract.Label, expected Expected) Verdict {
	results := []match.Result{
		match.Match(expected.PatientName, extracted.PatientName, match.KindPatient),
		match.Match(expected.ScheduledTime, extracted.PrintedTime, match.KindTime),
	}
	if expected.MedicationName != "" {
		results = append(results, match.Match(expected.MedicationName, extracted.MedicationName, match.KindMedication))
	}
	if expected.Dosage != "" {
		results = append(results, match.Match(expected.Dosage, extracted.Dosage, match.KindDosage))
	}

	v := Verdict{
		Matches: make(map[match.Kind]bool, len(results)),
		Results: results,
	}
	var confSum float64
	for _, r := range results {
		v.Matches[r.Field] = r.Passed
		confSum += r.Score
		if r.Passed {
			v.Score++
		}
		if requiredKinds[r.Field] {
			v.RequiredChecks++
			if r.Passed {
				v.PassedChecks++
			}
		}
	}
	v.Confidence = confSum / float64(len(results))
	v.IsValid = v.PassedChecks == v.RequiredChecks
	return v
}
