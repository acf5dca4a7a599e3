package scanning

import "errors"

var (
	// ErrMalformedInput marks input bytes that cannot be decoded as an image.
	// Callers should report it to the user as a validation failure.
	ErrMalformedInput = errors.New("invalid or corrupted image file")

	// ErrProcessing marks every other pipeline failure, such as an unavailable
	// recognition engine.
	ErrProcessing = errors.New("receipt processing failed")
)
