package extract

import "regexp"

// Pattern rules are tried in a fixed priority order per field; the first
// rule that matches wins. All patterns run against cleaned lines
// (lower-cased, whitespace-collapsed, confusion-fixed, punctuation kept).
var (
	// Dosage: a number immediately followed (optionally with one space) by
	// a unit suffix.
	dosageRe = regexp.MustCompile(`\b(\d+(?:[.,]\d+)?) ?(mcg|mg|ml|g)\b`)

	// Anchored field prefixes.
	dosageAnchorRe       = regexp.MustCompile(`^(?:dose|dosage) *[:\-] *(.+)$`)
	nameAnchorRe         = regexp.MustCompile(`^(?:patient name|patient|name) *[:\-] *(.+)$`)
	medicationAnchorRe   = regexp.MustCompile(`^(?:medication|med|drug|rx) *[:\-] *(.+)$`)
	instructionsAnchorRe = regexp.MustCompile(`^(?:instructions|sig|directions) *[:\-] *(.+)$`)
	prescriberAnchorRe   = regexp.MustCompile(`^(?:prescriber|provider|physician) *[:\-] *(.+)$`)

	// Printed time: HH:MM with optional meridiem, or a compact form that
	// requires the meridiem to avoid swallowing dosage numbers.
	timeClockRe   = regexp.MustCompile(`\b((?:[01]?\d|2[0-3]):[0-5]\d ?(?:am|pm)?)\b`)
	timeCompactRe = regexp.MustCompile(`\b((?:[01]?\d|2[0-3])(?:[0-5]\d)? ?(?:am|pm))\b`)

	// "Last, First" (optionally with a middle token).
	commaNameRe = regexp.MustCompile(`^([a-z][a-z'\-]+), *([a-z][a-z'\-]+(?: [a-z][a-z'\-]+)?)$`)

	// A run of 2-3 purely alphabetic tokens.
	nameShapeRe = regexp.MustCompile(`^[a-z][a-z'\-]+(?: [a-z][a-z'\-]+){1,2}$`)

	// Prescriber title anywhere in the line ("dr. smith", "j smith md").
	prescriberTitleRe = regexp.MustCompile(`\bdr\.? .+|.+ m\.?d\.?$`)
)

// Tokens that disqualify a line from being treated as a bare patient name.
var nameStopwords = map[string]struct{}{
	"take": {}, "tablet": {}, "tablets": {}, "capsule": {}, "capsules": {},
	"daily": {}, "mouth": {}, "oral": {}, "pharmacy": {}, "refill": {},
	"refills": {}, "rx": {}, "qty": {}, "dose": {}, "dosage": {}, "dr": {},
	"am": {}, "pm": {}, "with": {}, "food": {}, "water": {}, "by": {},
}
