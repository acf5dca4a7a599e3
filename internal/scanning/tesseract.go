package scanning

import (
	"context"
	"fmt"
	"image"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements TextSource with the local Tesseract engine
type Tesseract struct {
	languages []string
}

// NewTesseract creates a Tesseract source for the given language packs
func NewTesseract(languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Tesseract{languages: languages}
}

// Recognize runs Tesseract over img. The engine cannot be interrupted, so a
// cancelled context is only honored before the call starts.
func (t *Tesseract) Recognize(ctx context.Context, img *image.Gray) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := bitmapToPNG(img)
	if err != nil {
		return "", err
	}

	// A client is not safe for concurrent use, so each call gets its own
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return "", fmt.Errorf("setting tesseract language: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("loading image into tesseract: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("running tesseract: %w", err)
	}
	return text, nil
}

// Close is a no-op; clients are released after every call
func (t *Tesseract) Close() error {
	return nil
}
