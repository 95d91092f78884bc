// Package pipeline wraps the shape detector with image loading, ordered
// parallel batch processing, PDF page handling and result formatting.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/shapedetect/internal/detector"
	"github.com/MeKo-Tech/shapedetect/internal/utils"
)

// Config holds configuration for the detection pipeline and its components.
type Config struct {
	Detector    detector.Config
	Constraints utils.ImageConstraints

	Parallel ParallelConfig
	Resource ResourceConfig
}

// DefaultConfig returns a default pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		Detector:    detector.DefaultConfig(),
		Constraints: utils.DefaultImageConstraints(),
		Parallel:    DefaultParallelConfig(),
		Resource:    DefaultResourceConfig(),
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg       Config
	resources *ResourceManager
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithDetectorConfig replaces the whole detector configuration.
func (b *Builder) WithDetectorConfig(cfg detector.Config) *Builder {
	b.cfg.Detector = cfg
	return b
}

// WithThreshold sets the binarization cutoff.
func (b *Builder) WithThreshold(threshold int) *Builder {
	b.cfg.Detector.Threshold = threshold
	return b
}

// WithEpsilon sets the contour simplification tolerance.
func (b *Builder) WithEpsilon(eps float64) *Builder {
	b.cfg.Detector.Epsilon = eps
	return b
}

// WithMinBlobArea sets the minimum blob size in pixels.
func (b *Builder) WithMinBlobArea(area int) *Builder {
	if area >= 0 {
		b.cfg.Detector.MinBlobArea = area
	}
	return b
}

// WithMinContourLength sets the minimum traced contour length.
func (b *Builder) WithMinContourLength(n int) *Builder {
	if n >= 0 {
		b.cfg.Detector.MinContourLength = n
	}
	return b
}

// WithCircularityThreshold sets the circle cutoff.
func (b *Builder) WithCircularityThreshold(th float64) *Builder {
	if th > 0 {
		b.cfg.Detector.CircularityThreshold = th
	}
	return b
}

// WithStarRatio sets the maximum inner/outer radius ratio for stars.
func (b *Builder) WithStarRatio(ratio float64) *Builder {
	if ratio > 0 {
		b.cfg.Detector.StarRatio = ratio
	}
	return b
}

// WithClosureDistance sets the first/last vertex merge distance.
func (b *Builder) WithClosureDistance(d float64) *Builder {
	if d >= 0 {
		b.cfg.Detector.ClosureDistance = d
	}
	return b
}

// WithDetectorWorkers sets how many goroutines trace blobs within one image.
func (b *Builder) WithDetectorWorkers(n int) *Builder {
	if n > 0 {
		b.cfg.Detector.Workers = n
	}
	return b
}

// WithImageConstraints bounds the accepted image dimensions.
func (b *Builder) WithImageConstraints(c utils.ImageConstraints) *Builder {
	b.cfg.Constraints = c
	return b
}

// WithParallelWorkers sets the number of parallel workers for batch processing.
func (b *Builder) WithParallelWorkers(workers int) *Builder {
	if workers > 0 {
		b.cfg.Parallel.MaxWorkers = workers
	}
	return b
}

// WithBatchSize sets the batch size for micro-batching in parallel processing.
func (b *Builder) WithBatchSize(size int) *Builder {
	if size >= 0 {
		b.cfg.Parallel.BatchSize = size
	}
	return b
}

// WithProgressCallback sets the progress callback for batch processing.
func (b *Builder) WithProgressCallback(callback ProgressCallback) *Builder {
	b.cfg.Parallel.ProgressCallback = callback
	return b
}

// WithMemoryLimit enables backpressure once heap usage nears bytes.
func (b *Builder) WithMemoryLimit(bytes uint64) *Builder {
	b.cfg.Resource.MaxMemoryBytes = bytes
	return b
}

// WithMaxInFlight caps how many images are decoded into grids at once.
func (b *Builder) WithMaxInFlight(n int) *Builder {
	if n > 0 {
		b.cfg.Resource.MaxInFlight = n
	}
	return b
}

// WithResourceManager makes the pipeline gate its work on rm instead of a
// manager of its own, so several pipelines share one in-flight and memory budget.
func (b *Builder) WithResourceManager(rm *ResourceManager) *Builder {
	b.resources = rm
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks that the configuration looks sane.
func (b *Builder) Validate() error {
	if err := b.cfg.Detector.Validate(); err != nil {
		return err
	}
	c := b.cfg.Constraints
	if c.MinWidth < 0 || c.MinHeight < 0 {
		return errors.New("image constraints must be non-negative")
	}
	if c.MaxWidth > 0 && c.MaxWidth < c.MinWidth {
		return fmt.Errorf("max width %d below min width %d", c.MaxWidth, c.MinWidth)
	}
	if c.MaxHeight > 0 && c.MaxHeight < c.MinHeight {
		return fmt.Errorf("max height %d below min height %d", c.MaxHeight, c.MinHeight)
	}
	if b.cfg.Parallel.MaxWorkers < 0 {
		return fmt.Errorf("parallel workers must be non-negative, got %d", b.cfg.Parallel.MaxWorkers)
	}
	return nil
}

// Pipeline wires the detector to image loading and batch processing.
type Pipeline struct {
	cfg             Config
	Detector        *detector.Detector
	ResourceManager *ResourceManager
}

// Build validates the configuration and initializes the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	det, err := detector.New(b.cfg.Detector)
	if err != nil {
		return nil, fmt.Errorf("init detector: %w", err)
	}
	p := &Pipeline{cfg: b.cfg, Detector: det}

	switch {
	case b.resources != nil:
		p.ResourceManager = b.resources
	case b.cfg.Resource.enabled():
		p.ResourceManager = NewResourceManager(b.cfg.Resource)
	}
	return p, nil
}

// Close releases all resources.
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	p.ResourceManager = nil
	p.Detector = nil
	return nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Info returns a map with key pipeline properties.
func (p *Pipeline) Info() map[string]interface{} {
	d := p.cfg.Detector
	info := map[string]interface{}{
		"detector": map[string]interface{}{
			"threshold":             d.Threshold,
			"epsilon":               d.Epsilon,
			"min_blob_area":         d.MinBlobArea,
			"min_contour_length":    d.MinContourLength,
			"circularity_threshold": d.CircularityThreshold,
			"star_ratio":            d.StarRatio,
			"closure_distance":      d.ClosureDistance,
			"workers":               d.Workers,
		},
		"parallel": map[string]interface{}{
			"max_workers":           p.cfg.Parallel.MaxWorkers,
			"batch_size":            p.cfg.Parallel.BatchSize,
			"has_progress_callback": p.cfg.Parallel.ProgressCallback != nil,
		},
		"resource_management": map[string]interface{}{
			"max_memory_bytes": p.cfg.Resource.MaxMemoryBytes,
			"max_in_flight":    p.cfg.Resource.MaxInFlight,
			"memory_threshold": p.cfg.Resource.MemoryThreshold,
			"active":           p.ResourceManager != nil,
		},
	}
	if p.ResourceManager != nil {
		info["resource_stats"] = p.ResourceManager.GetStats()
	}
	return info
}
