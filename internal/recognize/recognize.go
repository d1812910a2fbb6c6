// Package recognize defines the text-recognition boundary of the label
// verification pipeline and ships a Tesseract-backed implementation.
package recognize

import (
	"context"
	"errors"
)

// Reading is the output of one recognition attempt over a single frame.
type Reading struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0..1
}

// Empty reports whether the reading carries no usable text.
func (r Reading) Empty() bool { return r.Text == "" }

// ErrNoText is returned when the engine ran but produced no usable text.
// Callers treat it as a failed attempt, not a hard error.
var ErrNoText = errors.New("no text recognized")

// Recognizer converts an encoded image into a text reading. Implementations
// must be safe for concurrent use; each call is independent.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (Reading, error)
}

// Func adapts a plain function to the Recognizer interface.
type Func func(ctx context.Context, image []byte) (Reading, error)

func (f Func) Recognize(ctx context.Context, image []byte) (Reading, error) {
	return f(ctx, image)
}
