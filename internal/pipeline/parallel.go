package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"
)

// ParallelConfig holds configuration for parallel processing.
type ParallelConfig struct {
	MaxWorkers       int                           // Number of parallel workers (0 = runtime.NumCPU())
	BatchSize        int                           // Images per batch for micro-batching (0 = no batching)
	ProgressCallback ProgressCallback              // Optional progress reporting
	ErrorHandler     func(int, image.Image, error) // Optional per-image error handler
}

// DefaultParallelConfig returns sensible defaults for parallel processing.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		MaxWorkers: runtime.NumCPU(),
	}
}

// progressTracker serializes progress callbacks so "current" counts up by one.
type progressTracker struct {
	mu    sync.Mutex
	cb    ProgressCallback
	total int
	done  int
}

func newProgressTracker(cb ProgressCallback, total int) *progressTracker {
	if cb != nil {
		cb.OnStart(total)
	}
	return &progressTracker{cb: cb, total: total}
}

// record marks n images finished; err is reported once for the group.
func (t *progressTracker) record(n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done += n
	if t.cb == nil {
		return
	}
	if err != nil {
		t.cb.OnError(t.done, err)
	}
	t.cb.OnProgress(t.done, t.total)
}

func (t *progressTracker) finish() {
	if t.cb != nil {
		t.cb.OnComplete()
	}
}

// ProcessImagesParallel processes multiple images in parallel using a worker pool.
// Returns results in the same order as input images.
func (p *Pipeline) ProcessImagesParallel(images []image.Image, config ParallelConfig) ([]*ImageResult, error) {
	return p.ProcessImagesParallelContext(context.Background(), images, config)
}

// ProcessImagesParallelContext processes images in parallel with context
// cancellation support. The result slice is index-aligned with images; a
// failed image leaves a nil entry and the lowest-index error is returned.
func (p *Pipeline) ProcessImagesParallelContext(ctx context.Context, images []image.Image, config ParallelConfig) ([]*ImageResult, error) {
	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}
	if p == nil || p.Detector == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}

	progress := newProgressTracker(config.ProgressCallback, len(images))
	defer progress.finish()

	// Each worker writes only the slots of the indices it receives.
	results := make([]*ImageResult, len(images))
	errs := make([]error, len(images))

	indices := make(chan int)
	go func() {
		defer close(indices)
		for i := range images {
			select {
			case indices <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for range min(config.MaxWorkers, len(images)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				if ctx.Err() != nil {
					return
				}
				results[i], errs[i] = p.ProcessImageContext(ctx, images[i])
				progress.record(1, errs[i])
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, settleErrors(images, results, errs, config.ErrorHandler)
}

// settleErrors clears the result slot of every failed image, reports each
// failure to handler in index order and returns the lowest-index error.
func settleErrors(images []image.Image, results []*ImageResult, errs []error,
	handler func(int, image.Image, error),
) error {
	var firstError error
	for i, err := range errs {
		if err == nil {
			continue
		}
		results[i] = nil
		if firstError == nil {
			firstError = fmt.Errorf("image %d: %w", i, err)
		}
		if handler != nil {
			handler(i, images[i], err)
		}
	}
	return firstError
}

// ProcessImagesParallelBatched processes images in parallel with micro-batching support.
func (p *Pipeline) ProcessImagesParallelBatched(images []image.Image, config ParallelConfig) ([]*ImageResult, error) {
	return p.ProcessImagesParallelBatchedContext(context.Background(), images, config)
}

// ProcessImagesParallelBatchedContext splits images into batches of
// config.BatchSize, processes each batch sequentially on its own goroutine
// and keeps at most config.MaxWorkers batches running. Results and errors
// are per image, as in ProcessImagesParallelContext: a failing image does not
// affect the rest of its batch.
func (p *Pipeline) ProcessImagesParallelBatchedContext(ctx context.Context, images []image.Image, config ParallelConfig) ([]*ImageResult, error) {
	if config.BatchSize <= 1 {
		return p.ProcessImagesParallelContext(ctx, images, config)
	}
	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}
	if p == nil || p.Detector == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}

	progress := newProgressTracker(config.ProgressCallback, len(images))
	defer progress.finish()

	results := make([]*ImageResult, len(images))
	errs := make([]error, len(images))

	sem := make(chan struct{}, config.MaxWorkers)
	var wg sync.WaitGroup

	for start := 0; start < len(images); start += config.BatchSize {
		end := min(start+config.BatchSize, len(images))

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			for i := start; i < end; i++ {
				if ctx.Err() != nil {
					return
				}
				results[i], errs[i] = p.ProcessImageContext(ctx, images[i])
				progress.record(1, errs[i])
			}
		}(start, end)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, settleErrors(images, results, errs, config.ErrorHandler)
}

// ParallelStats holds statistics about parallel processing performance.
type ParallelStats struct {
	TotalImages      int           `json:"total_images"`
	ProcessedImages  int           `json:"processed_images"`
	FailedImages     int           `json:"failed_images"`
	WorkerCount      int           `json:"worker_count"`
	TotalDuration    time.Duration `json:"total_duration_ns"`
	AveragePerImage  time.Duration `json:"average_per_image_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
}

// CalculateParallelStats calculates performance statistics for parallel processing.
func CalculateParallelStats(results []*ImageResult, duration time.Duration, workerCount int) ParallelStats {
	processed := 0
	for _, r := range results {
		if r != nil {
			processed++
		}
	}

	stats := ParallelStats{
		TotalImages:     len(results),
		ProcessedImages: processed,
		FailedImages:    len(results) - processed,
		WorkerCount:     workerCount,
		TotalDuration:   duration,
	}
	if processed > 0 && duration > 0 {
		stats.AveragePerImage = duration / time.Duration(processed)
		stats.ThroughputPerSec = float64(processed) / duration.Seconds()
	}
	return stats
}
