package batch

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/shapedetect/internal/detector"
	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
	"github.com/MeKo-Tech/shapedetect/internal/utils"
)

type overlayStyle struct {
	dir    string
	box    color.Color
	marker color.Color
}

func newOverlayStyle(config *Config) (*overlayStyle, error) {
	if config.OverlayDir == "" {
		return nil, nil
	}
	style := &overlayStyle{dir: config.OverlayDir}
	if config.BoxColor != "" {
		c, err := utils.ParseHexColor(config.BoxColor)
		if err != nil {
			return nil, fmt.Errorf("invalid overlay box color: %w", err)
		}
		style.box = c
	}
	if config.MarkerColor != "" {
		c, err := utils.ParseHexColor(config.MarkerColor)
		if err != nil {
			return nil, fmt.Errorf("invalid overlay marker color: %w", err)
		}
		style.marker = c
	}
	return style, nil
}

// loadedImage is a discovered file that decoded successfully.
type loadedImage struct {
	fileIndex int
	img       image.Image
}

// loadImages decodes every path. Failures are recorded on files; with
// continueOnError unset the first failure aborts the batch.
func loadImages(paths []string, files []FileResult, continueOnError bool) ([]loadedImage, error) {
	loaded := make([]loadedImage, 0, len(paths))
	for i, path := range paths {
		img, err := loadImage(path)
		if err != nil {
			if !continueOnError {
				return nil, err
			}
			slog.Warn("Skipping unreadable image", "file", path, "error", err)
			files[i].Error = err
			continue
		}
		loaded = append(loaded, loadedImage{fileIndex: i, img: img})
	}
	return loaded, nil
}

func loadImage(path string) (image.Image, error) {
	if !utils.IsSupportedImage(path) {
		return nil, fmt.Errorf("unsupported image format: %s", path)
	}
	img, _, err := utils.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return img, nil
}

// applyConfidenceFilter drops shapes below minConfidence.
func applyConfidenceFilter(res *pipeline.ImageResult, minConfidence float64) {
	if res == nil || minConfidence <= 0 {
		return
	}
	filtered := make([]detector.DetectedShape, 0, len(res.Shapes))
	for _, s := range res.Shapes {
		if s.Confidence >= minConfidence {
			filtered = append(filtered, s)
		}
	}
	res.Shapes = filtered
}

func overlayPath(dir, source string) string {
	base := filepath.Base(source)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+"_overlay.png")
}

// saveOverlay renders the detections over img and writes a PNG next to
// the other overlays.
func saveOverlay(img image.Image, res *pipeline.ImageResult, style *overlayStyle) (string, error) {
	ov := pipeline.RenderOverlay(img, res, style.box, style.marker)
	if ov == nil {
		return "", errors.New("nothing to render")
	}
	if err := os.MkdirAll(style.dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create overlay directory: %w", err)
	}
	outPath := overlayPath(style.dir, res.Source)
	if err := imaging.Save(ov, outPath); err != nil {
		return "", fmt.Errorf("failed to save overlay: %w", err)
	}
	return outPath, nil
}

// finishResult applies the per-file post-processing steps.
func finishResult(res *pipeline.ImageResult, img image.Image, path string, config *Config, style *overlayStyle) {
	res.Source = path
	applyConfidenceFilter(res, config.MinConfidence)
	if config.SortShapes {
		pipeline.SortShapesTopLeft(res)
	}
	if style == nil {
		return
	}
	out, err := saveOverlay(img, res, style)
	if err != nil {
		slog.Warn("Overlay not written", "file", path, "error", err)
		return
	}
	slog.Debug("Overlay written", "file", path, "overlay", out)
}
