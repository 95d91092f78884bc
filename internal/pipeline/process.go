package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/shapedetect/internal/detector"
	"github.com/MeKo-Tech/shapedetect/internal/utils"
)

// ProcessImage runs shape detection on a single image.
func (p *Pipeline) ProcessImage(img image.Image) (*ImageResult, error) {
	return p.ProcessImageContext(context.Background(), img)
}

// ProcessImageContext runs shape detection with cancellation support.
func (p *Pipeline) ProcessImageContext(ctx context.Context, img image.Image) (*ImageResult, error) {
	if p == nil || p.Detector == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := utils.ValidateImageConstraints(img, p.cfg.Constraints); err != nil {
		return nil, err
	}

	if p.ResourceManager != nil {
		if err := p.ResourceManager.Acquire(ctx); err != nil {
			return nil, err
		}
		defer p.ResourceManager.Release()
	}

	res := &ImageResult{DetectionResult: p.Detector.Detect(detector.FromImage(img))}
	if err := ValidateImageResult(res); err != nil {
		slog.Error("Detector produced an inconsistent result", "error", err)
		return nil, fmt.Errorf("inconsistent detection result: %w", err)
	}
	return res, nil
}

// ProcessFile loads an image file and runs detection on it. The result's
// Source is set to path.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*ImageResult, error) {
	img, meta, err := utils.LoadImage(path)
	if err != nil {
		return nil, err
	}
	res, err := p.ProcessImageContext(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	res.Source = path
	slog.Debug("Processed image file",
		"path", path,
		"format", meta.Format,
		"width", meta.Width,
		"height", meta.Height,
		"shapes", len(res.Shapes))
	return res, nil
}
