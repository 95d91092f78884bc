// Package detector finds simple geometric shapes in raster images.
//
// Detection runs in four stages: the pixel buffer is binarized, foreground
// pixels are grouped into 8-connected blobs, each sufficiently large blob's
// outer boundary is traced, and the traced contour is simplified and
// classified as a circle, triangle, rectangle, pentagon or star.
package detector

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/shapedetect/internal/common"
)

// Detector runs the detection pipeline with a fixed, validated configuration.
type Detector struct {
	config Config
}

// New creates a detector after validating cfg.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}
	return &Detector{config: cfg}, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.config
}

// Detect runs the pipeline on buf.
func (d *Detector) Detect(buf *PixelBuffer) DetectionResult {
	return Detect(buf, d.config)
}

// Detect is the pure pipeline entry point. It never fails on a well-formed
// buffer; an image without foreground yields an empty shape list. Shapes are
// reported in blob discovery order regardless of cfg.Workers.
func Detect(buf *PixelBuffer, cfg Config) DetectionResult {
	timer := common.NewNamedTimer("detect")
	res := DetectionResult{Shapes: []DetectedShape{}, Width: buf.Width, Height: buf.Height}

	grid := Binarize(buf, cfg.Threshold)
	defer ReleaseGrid(grid)

	blobs := ExtractBlobs(grid)
	candidates := make([]Blob, 0, len(blobs))
	for _, b := range blobs {
		if b.Area < cfg.MinBlobArea {
			continue
		}
		candidates = append(candidates, b)
	}

	var outcomes []blobOutcome
	if cfg.Workers > 1 && len(candidates) > 1 {
		outcomes = processBlobsParallel(candidates, grid, cfg)
	} else {
		outcomes = make([]blobOutcome, len(candidates))
		for i, b := range candidates {
			outcomes[i] = processBlob(b, grid, cfg)
		}
	}

	for _, o := range outcomes {
		if o.ok {
			res.Shapes = append(res.Shapes, o.shape)
		}
	}

	res.ProcessingTime = timer.Stop()
	slog.Debug("Shape detection completed",
		"width", buf.Width,
		"height", buf.Height,
		"blobs", len(blobs),
		"candidates", len(candidates),
		"shapes", len(res.Shapes),
		"duration", timer.Duration())
	return res
}

// blobOutcome is the per-blob result of tracing and classification.
type blobOutcome struct {
	shape DetectedShape
	ok    bool
}

// processBlob traces, simplifies and classifies a single blob.
func processBlob(b Blob, grid *BinaryGrid, cfg Config) blobOutcome {
	contour := TraceContour(b, grid)
	if len(contour) < cfg.MinContourLength {
		slog.Debug("Skipping short contour", "blob", b.ID, "points", len(contour))
		return blobOutcome{}
	}
	vertices := SimplifyClosedContour(contour, cfg.Epsilon, cfg.ClosureDistance)
	shape, ok := Classify(vertices, contour, b, cfg)
	if !ok {
		slog.Debug("Blob not classified", "blob", b.ID, "vertices", len(vertices), "area", b.Area)
		return blobOutcome{}
	}
	return blobOutcome{shape: shape, ok: true}
}

// processBlobsParallel fans blobs out to a bounded worker pool. Each worker
// writes only its own slot, so the output keeps the input order.
func processBlobsParallel(blobs []Blob, grid *BinaryGrid, cfg Config) []blobOutcome {
	out := make([]blobOutcome, len(blobs))
	workers := min(cfg.Workers, len(blobs))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = processBlob(blobs[i], grid, cfg)
			}
		}()
	}
	for i := range blobs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return out
}
