package scanning

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Variant labels, in the order the Preprocessor emits them
const (
	LabelSimpleThreshold   = "simple-threshold"
	LabelAdaptiveThreshold = "adaptive-threshold"
)

// PreprocessOptions tunes the binarization strategies
type PreprocessOptions struct {
	// Threshold is the global cutoff: pixels at or above it become white
	Threshold uint8
	// BlockSize is the odd neighborhood width used by the adaptive threshold
	BlockSize int
	// Offset is subtracted from the local mean before comparing
	Offset int
	// MinHeight upscales shorter images before binarizing; 0 disables
	MinHeight int
}

// DefaultPreprocessOptions returns the settings tuned for phone photos of receipts
func DefaultPreprocessOptions() PreprocessOptions {
	return PreprocessOptions{
		Threshold: 150,
		BlockSize: 11,
		Offset:    2,
	}
}

// Preprocessor converts raw image bytes into bitmaps suited for text recognition
type Preprocessor struct {
	opts PreprocessOptions
}

// NewPreprocessor creates a Preprocessor. An even or non-positive block size is
// bumped to the next valid odd width.
func NewPreprocessor(opts PreprocessOptions) *Preprocessor {
	if opts.BlockSize < 3 {
		opts.BlockSize = 3
	}
	if opts.BlockSize%2 == 0 {
		opts.BlockSize++
	}
	return &Preprocessor{opts: opts}
}

// Preprocess decodes data and returns one variant per strategy, simple
// threshold first. Undecodable input yields ErrMalformedInput.
func (p *Preprocessor) Preprocess(data []byte, mediaType string) ([]Variant, error) {
	img, err := decodeImage(data, mediaType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	if p.opts.MinHeight > 0 && img.Bounds().Dy() < p.opts.MinHeight {
		img = imaging.Resize(img, 0, p.opts.MinHeight, imaging.Lanczos)
	}

	gray := toGray(imaging.Grayscale(img))

	return []Variant{
		{Label: LabelSimpleThreshold, Bitmap: p.simpleThreshold(gray)},
		{Label: LabelAdaptiveThreshold, Bitmap: p.adaptiveThreshold(gray)},
	}, nil
}

// simpleThreshold binarizes against the global cutoff
func (p *Preprocessor) simpleThreshold(src *image.Gray) *image.Gray {
	dst := image.NewGray(src.Rect)
	for i, v := range src.Pix {
		if v >= p.opts.Threshold {
			dst.Pix[i] = 0xff
		}
	}
	return dst
}

// adaptiveThreshold binarizes each pixel against the Gaussian-weighted mean of
// its neighborhood minus the offset
func (p *Preprocessor) adaptiveThreshold(src *image.Gray) *image.Gray {
	mean := imaging.Blur(src, gaussianSigma(p.opts.BlockSize))
	dst := image.NewGray(src.Rect)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := int(src.Pix[y*src.Stride+x])
			m := int(mean.Pix[y*mean.Stride+x*4])
			if v > m-p.opts.Offset {
				dst.Pix[y*dst.Stride+x] = 0xff
			}
		}
	}
	return dst
}

// gaussianSigma derives the kernel sigma from the block width the same way
// common vision libraries do when none is given
func gaussianSigma(blockSize int) float64 {
	return 0.3*(float64(blockSize-1)*0.5-1) + 0.8
}

// toGray flattens an already desaturated NRGBA image into a single channel
func toGray(src *image.NRGBA) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x := range out {
			out[x] = row[x*4]
		}
	}
	return dst
}
