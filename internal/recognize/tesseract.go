package recognize

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Config holds settings for the Tesseract-backed recognizer.
type Config struct {
	Languages  []string         // tesseract language codes, e.g. ["eng"]
	PageSegMode int             // tesseract PSM; <0 keeps the engine default
	Preprocess PreprocessConfig // image cleanup before recognition
}

// DefaultConfig returns recognizer defaults for English label text.
func DefaultConfig() Config {
	return Config{
		Languages:   []string{"eng"},
		PageSegMode: int(gosseract.PSM_AUTO),
		Preprocess:  DefaultPreprocessConfig(),
	}
}

// Tesseract recognizes text using a local Tesseract installation via
// gosseract. A fresh client is created per call, so the value is safe for
// concurrent use.
type Tesseract struct {
	cfg Config
}

// NewTesseract creates a Tesseract recognizer with the given config.
func NewTesseract(cfg Config) *Tesseract {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}
	return &Tesseract{cfg: cfg}
}

// Recognize runs OCR on the encoded image. The context bounds the wait:
// Tesseract itself cannot be interrupted mid-call, but the caller gets
// control back once ctx expires and the orphaned call finishes on its own.
func (t *Tesseract) Recognize(ctx context.Context, image []byte) (Reading, error) {
	if len(image) == 0 {
		return Reading{}, ErrNoText
	}

	prepped, err := Preprocess(image, t.cfg.Preprocess)
	if err != nil {
		return Reading{}, err
	}

	type result struct {
		reading Reading
		err     error
	}
	done := make(chan result, 1)
	go func() {
		r, err := t.recognizeBytes(prepped)
		done <- result{r, err}
	}()

	select {
	case <-ctx.Done():
		return Reading{}, ctx.Err()
	case res := <-done:
		return res.reading, res.err
	}
}

// recognizeBytes performs the actual engine call and aggregates per-line
// confidences into a single 0..1 score.
func (t *Tesseract) recognizeBytes(image []byte) (Reading, error) {
	client := gosseract.NewClient()
	defer func() { _ = client.Close() }()

	if err := client.SetLanguage(t.cfg.Languages...); err != nil {
		return Reading{}, fmt.Errorf("set language: %w", err)
	}
	if t.cfg.PageSegMode >= 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(t.cfg.PageSegMode)); err != nil {
			return Reading{}, fmt.Errorf("set page seg mode: %w", err)
		}
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return Reading{}, fmt.Errorf("set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return Reading{}, fmt.Errorf("recognize: %w", err)
	}

	var lines []string
	var confSum float64
	for _, b := range boxes {
		line := strings.TrimSpace(b.Word)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		confSum += b.Confidence
	}
	if len(lines) == 0 {
		return Reading{}, ErrNoText
	}

	return Reading{
		Text:       strings.Join(lines, "\n"),
		Confidence: confSum / float64(len(lines)) / 100.0,
	}, nil
}
