package detector

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig wraps all detector configuration validation failures.
var ErrInvalidConfig = errors.New("invalid detector config")

// Default tuning values. They were calibrated on synthetic line drawings and
// separate thin noise artifacts (up to ~322 px) from real shapes (from ~375 px).
const (
	DefaultThreshold            = 128
	DefaultEpsilon              = 2.0
	DefaultMinBlobArea          = 350
	DefaultMinContourLength     = 20
	DefaultCircularityThreshold = 0.88
	DefaultStarRatio            = 0.7
	DefaultClosureDistance      = 10.0
)

// Config holds the tunable thresholds of the detection pipeline.
type Config struct {
	// Threshold is the grayscale cutoff below which a pixel is foreground.
	Threshold int
	// Epsilon is the simplification tolerance in pixels.
	Epsilon float64
	// MinBlobArea drops blobs with fewer pixels before tracing.
	MinBlobArea int
	// MinContourLength drops contours with fewer points after tracing.
	MinContourLength int
	// CircularityThreshold is the Polsby-Popper score above which a blob is a circle.
	CircularityThreshold float64
	// StarRatio is the maximum inner/outer radius ratio for stars.
	StarRatio float64
	// ClosureDistance merges the first and last simplified vertex when closer than this.
	ClosureDistance float64
	// Workers > 1 traces and classifies blobs concurrently.
	Workers int
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:            DefaultThreshold,
		Epsilon:              DefaultEpsilon,
		MinBlobArea:          DefaultMinBlobArea,
		MinContourLength:     DefaultMinContourLength,
		CircularityThreshold: DefaultCircularityThreshold,
		StarRatio:            DefaultStarRatio,
		ClosureDistance:      DefaultClosureDistance,
		Workers:              1,
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 256 {
		return fmt.Errorf("%w: threshold %d out of range [0, 256]", ErrInvalidConfig, c.Threshold)
	}
	if !nonNegative(c.Epsilon) {
		return fmt.Errorf("%w: epsilon must be a finite non-negative number, got %.2f", ErrInvalidConfig, c.Epsilon)
	}
	if c.MinBlobArea < 0 {
		return fmt.Errorf("%w: min blob area must be non-negative, got %d", ErrInvalidConfig, c.MinBlobArea)
	}
	if c.MinContourLength < 0 {
		return fmt.Errorf("%w: min contour length must be non-negative, got %d", ErrInvalidConfig, c.MinContourLength)
	}
	if !nonNegative(c.CircularityThreshold) || c.CircularityThreshold == 0 {
		return fmt.Errorf("%w: circularity threshold must be a finite positive number, got %.2f",
			ErrInvalidConfig, c.CircularityThreshold)
	}
	if !(c.StarRatio > 0 && c.StarRatio <= 1) {
		return fmt.Errorf("%w: star ratio %.2f out of range (0, 1]", ErrInvalidConfig, c.StarRatio)
	}
	if !nonNegative(c.ClosureDistance) {
		return fmt.Errorf("%w: closure distance must be a finite non-negative number, got %.2f", ErrInvalidConfig, c.ClosureDistance)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", ErrInvalidConfig, c.Workers)
	}
	return nil
}

// nonNegative reports whether v is finite and >= 0. NaN fails every comparison.
func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}
