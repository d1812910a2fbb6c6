// Package extract parses structured label fields out of noisy OCR text.
//
// Extraction never fails: a field whose rules all miss is simply left
// empty, and the label's confidence is carried over from the reading
// unchanged (extraction itself does not discount further).
package extract

import (
	"strings"

	"github.com/MeKo-Tech/medscan/internal/normalize"
	"github.com/MeKo-Tech/medscan/internal/recognize"
)

// Label holds the fields located on a medication label. Empty string means
// the field was not found.
type Label struct {
	MedicationName string  `json:"medication_name,omitempty"`
	Dosage         string  `json:"dosage,omitempty"`
	PatientName    string  `json:"patient_name,omitempty"`
	Instructions   string  `json:"instructions,omitempty"`
	Pharmacy       string  `json:"pharmacy,omitempty"`
	Prescriber     string  `json:"prescriber,omitempty"`
	PrintedTime    string  `json:"printed_time,omitempty"`
	Confidence     float64 `json:"confidence"`
}

// Extract parses one OCR reading into label fields. Rules per field run in
// a fixed priority order; the first match wins.
func Extract(r recognize.Reading) Label {
	lines := normalize.Lines(r.Text)
	label := Label{Confidence: r.Confidence}
	if len(lines) == 0 {
		return label
	}

	label.Dosage = extractDosage(lines)
	label.PrintedTime = extractTime(lines)
	label.PatientName = extractPatientName(lines)
	label.MedicationName = extractMedication(lines)
	label.Instructions = extractInstructions(lines)
	label.Pharmacy = extractPharmacy(lines)
	label.Prescriber = extractPrescriber(lines)
	return label
}

// extractDosage rules: (1) "dose:"/"dosage:" anchored line, (2) first
// number+unit token anywhere.
func extractDosage(lines []string) string {
	for _, line := range lines {
		if m := dosageAnchorRe.FindStringSubmatch(line); m != nil {
			if d := dosageRe.FindString(m[1]); d != "" {
				return strings.ReplaceAll(d, " ", "")
			}
			return strings.TrimSpace(m[1])
		}
	}
	for _, line := range lines {
		if d := dosageRe.FindString(line); d != "" {
			return strings.ReplaceAll(d, " ", "")
		}
	}
	return ""
}

// extractTime rules: (1) HH:MM token with optional am/pm, (2) compact
// digits with a mandatory am/pm marker.
func extractTime(lines []string) string {
	for _, line := range lines {
		if m := timeClockRe.FindString(line); m != "" {
			return m
		}
	}
	for _, line := range lines {
		if m := timeCompactRe.FindString(line); m != "" {
			return m
		}
	}
	return ""
}

// extractPatientName rules: (1) "name:"/"patient:" anchored line,
// (2) a "Last, First" line, canonicalized to "First Last", (3) the first
// name-shaped line: 2-3 alphabetic tokens, none of them a label keyword.
//
// Rule 2 exists because expected names arrive in "Last, First" form while
// labels print either order; both sides must converge on the same shape.
func extractPatientName(lines []string) string {
	for _, line := range lines {
		if m := nameAnchorRe.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(strings.Trim(m[1], " .,"))
		}
	}
	for _, line := range lines {
		if m := commaNameRe.FindStringSubmatch(line); m != nil {
			return m[2] + " " + m[1]
		}
	}
	for _, line := range lines {
		if isNameShaped(line) {
			return line
		}
	}
	return ""
}

// extractMedication rules: (1) "medication:"/"rx:" anchored line with any
// dosage part removed, (2) the alphabetic prefix of the first line that
// carries a dosage token ("lisinopril 10mg" -> "lisinopril").
func extractMedication(lines []string) string {
	for _, line := range lines {
		if m := medicationAnchorRe.FindStringSubmatch(line); m != nil {
			return trimDosagePart(m[1])
		}
	}
	for _, line := range lines {
		if loc := dosageRe.FindStringIndex(line); loc != nil {
			if prefix := strings.TrimSpace(strings.Trim(line[:loc[0]], " .,-")); prefix != "" && !containsStopword(prefix) {
				return prefix
			}
		}
	}
	return ""
}

func extractInstructions(lines []string) string {
	for _, line := range lines {
		if m := instructionsAnchorRe.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "take ") {
			return line
		}
	}
	return ""
}

func extractPharmacy(lines []string) string {
	for _, line := range lines {
		if strings.Contains(line, "pharmacy") {
			return line
		}
	}
	return ""
}

func extractPrescriber(lines []string) string {
	for _, line := range lines {
		if m := prescriberAnchorRe.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	for _, line := range lines {
		if prescriberTitleRe.MatchString(line) {
			return line
		}
	}
	return ""
}

// isNameShaped reports whether a line looks like a bare printed name.
func isNameShaped(line string) bool {
	if !nameShapeRe.MatchString(line) {
		return false
	}
	return !containsStopword(line)
}

func containsStopword(s string) bool {
	for _, tok := range strings.Fields(s) {
		if _, ok := nameStopwords[strings.Trim(tok, ".,")]; ok {
			return true
		}
	}
	return false
}

// trimDosagePart strips a trailing dosage token from an anchored
// medication value ("lisinopril 10mg" -> "lisinopril").
func trimDosagePart(s string) string {
	if loc := dosageRe.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	return strings.TrimSpace(strings.Trim(s, " .,-"))
}
