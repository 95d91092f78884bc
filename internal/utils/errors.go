package utils

import (
	"errors"
	"fmt"
)

// ErrImageTooLarge marks images whose dimensions exceed the configured maximum.
var ErrImageTooLarge = errors.New("image too large")

// ImageProcessingError represents errors that can occur while loading or
// validating an image.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

// Unwrap exposes the underlying error to errors.Is and errors.As.
func (e *ImageProcessingError) Unwrap() error {
	return e.Err
}
