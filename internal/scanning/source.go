package scanning

import (
	"context"
	"image"
)

// TextSource turns a bitmap into text. Implementations wrap an OCR engine or a
// vision model; output is not assumed to be repeatable across calls.
type TextSource interface {
	// Recognize returns the text found in img, possibly empty
	Recognize(ctx context.Context, img *image.Gray) (string, error)
	// Close releases any resources held by the source
	Close() error
}

// Variant is one normalized bitmap produced by the Preprocessor
type Variant struct {
	Label  string
	Bitmap *image.Gray
}

// RecognizedText is the text a TextSource returned for a single variant
type RecognizedText struct {
	Label string
	Text  string
}
