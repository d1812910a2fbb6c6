package recognize

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
)

// PreprocessConfig controls image cleanup applied before recognition.
type PreprocessConfig struct {
	Enabled      bool    // apply grayscale/contrast/sharpen pass
	MinHeight    int     // upscale images shorter than this (pixels)
	TargetHeight int     // height to upscale to
	Contrast     float64 // contrast adjustment in percent
	Sigma        float64 // sharpen sigma
}

// DefaultPreprocessConfig returns the cleanup settings that work well for
// pouch and bottle label photographs.
func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{
		Enabled:      true,
		MinHeight:    900,
		TargetHeight: 1300,
		Contrast:     15,
		Sigma:        0.7,
	}
}

// Preprocess decodes an encoded image, applies the cleanup pass and
// re-encodes it as PNG. Label photos are often small, low-contrast phone
// captures; grayscale + contrast + sharpen measurably improves engine
// output on them.
func Preprocess(data []byte, cfg PreprocessConfig) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if !cfg.Enabled {
		return data, nil
	}

	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, cfg.Contrast)
	gray = imaging.Sharpen(gray, cfg.Sigma)
	if gray.Bounds().Dy() < cfg.MinHeight && cfg.TargetHeight > 0 {
		gray = imaging.Resize(gray, 0, cfg.TargetHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, fmt.Errorf("encode preprocessed image: %w", err)
	}
	return buf.Bytes(), nil
}
