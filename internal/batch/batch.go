// Package batch runs shape detection over many image files: discovery,
// parallel detection, overlays, formatting and run statistics.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/MeKo-Tech/shapedetect/internal/common"
	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
)

// ProcessBatch processes a batch of images with the given configuration.
func ProcessBatch(imagePaths []string, config *Config) (*Result, error) {
	return ProcessBatchContext(context.Background(), imagePaths, config)
}

// ProcessBatchContext discovers images under imagePaths and detects shapes
// in all of them. Without ContinueOnError the first failing file aborts the
// run; with it, failures are reported per file in Result.Files.
func ProcessBatchContext(ctx context.Context, imagePaths []string, config *Config) (*Result, error) {
	if config == nil {
		config = DefaultConfig()
	}

	files, err := discoverImageFiles(imagePaths, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no image files found")
	}

	style, err := newOverlayStyle(config)
	if err != nil {
		return nil, err
	}

	pl, err := buildPipeline(config, progressCallback(config))
	if err != nil {
		return nil, fmt.Errorf("failed to build detection pipeline: %w", err)
	}
	defer func() {
		if err := pl.Close(); err != nil {
			slog.Warn("Error closing pipeline", "error", err)
		}
	}()

	timer := common.NewNamedTimer("batch")
	results := make([]FileResult, len(files))
	for i, f := range files {
		results[i].Path = f
	}

	loaded, err := loadImages(files, results, config.ContinueOnError)
	if err != nil {
		return nil, fmt.Errorf("batch processing failed: %w", err)
	}

	if len(loaded) > 0 {
		if err := detectLoaded(ctx, pl, loaded, results, config, style); err != nil {
			return nil, err
		}
	}

	res := &Result{
		Files:       results,
		Duration:    timer.Stop(),
		WorkerCount: pl.Config().Parallel.MaxWorkers,
	}
	slog.Info("Batch completed",
		"files", len(files),
		"failed", len(res.Failed()),
		"duration", res.Duration)
	return res, nil
}

func detectLoaded(ctx context.Context, pl *pipeline.Pipeline, loaded []loadedImage, results []FileResult,
	config *Config, style *overlayStyle,
) error {
	images := make([]image.Image, len(loaded))
	for i, l := range loaded {
		images[i] = l.img
	}

	var mu sync.Mutex
	perImage := make(map[int]error)
	pcfg := pl.Config().Parallel
	pcfg.ErrorHandler = func(i int, _ image.Image, err error) {
		mu.Lock()
		perImage[i] = err
		mu.Unlock()
	}

	detected, err := pl.ProcessImagesParallelBatchedContext(ctx, images, pcfg)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil && !config.ContinueOnError {
		return fmt.Errorf("batch processing failed: %w", err)
	}

	for i, l := range loaded {
		fr := &results[l.fileIndex]
		var r *pipeline.ImageResult
		if i < len(detected) {
			r = detected[i]
		}
		if r == nil {
			fr.Error = perImage[i]
			if fr.Error == nil {
				fr.Error = err
			}
			if fr.Error == nil {
				fr.Error = errors.New("detection produced no result")
			}
			continue
		}
		finishResult(r, l.img, fr.Path, config, style)
		fr.Result = r
	}
	return nil
}

func progressCallback(config *Config) pipeline.ProgressCallback {
	if config.ShowProgress && !config.Quiet {
		var w io.Writer = os.Stderr
		if config.ProgressWriter != nil {
			w = config.ProgressWriter
		}
		return pipeline.NewConsoleProgressCallback(w, "Processing: ").
			WithUpdateInterval(config.ProgressInterval)
	}
	return pipeline.NewLogProgressCallback(slog.Default(), slog.LevelDebug)
}
