package cmd

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/shapedetect/internal/config"
	"github.com/MeKo-Tech/shapedetect/internal/detector"
	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
	"github.com/MeKo-Tech/shapedetect/internal/utils"
)

// writeResults writes output to file, or to w when file is empty.
func writeResults(w, status io.Writer, output, file string) error {
	if output != "" && !strings.HasSuffix(output, "\n") {
		output += "\n"
	}
	if file == "" {
		_, err := fmt.Fprint(w, output)
		return err
	}
	if dir := filepath.Dir(file); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(file, []byte(output), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	_, _ = fmt.Fprintf(status, "Results written to %s\n", file)
	return nil
}

func validateMinConfidence(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("invalid min-confidence %g: must be between 0 and 1", v)
	}
	return nil
}

// filterShapes drops shapes below minConfidence and optionally sorts the rest.
func filterShapes(res *pipeline.ImageResult, minConfidence float64, sortShapes bool) {
	if res == nil {
		return
	}
	if minConfidence > 0 {
		kept := make([]detector.DetectedShape, 0, len(res.Shapes))
		for _, s := range res.Shapes {
			if s.Confidence >= minConfidence {
				kept = append(kept, s)
			}
		}
		res.Shapes = kept
	}
	if sortShapes {
		pipeline.SortShapesTopLeft(res)
	}
}

// overlayWriter renders detections onto the source image and saves a PNG.
type overlayWriter struct {
	dir    string
	box    color.Color
	marker color.Color
}

// newOverlayWriter returns nil when no overlay directory is configured.
func newOverlayWriter(out config.OutputConfig) (*overlayWriter, error) {
	if out.OverlayDir == "" {
		return nil, nil
	}
	ow := &overlayWriter{dir: out.OverlayDir}
	if out.OverlayBoxColor != "" {
		c, err := utils.ParseHexColor(out.OverlayBoxColor)
		if err != nil {
			return nil, fmt.Errorf("invalid overlay box color: %w", err)
		}
		ow.box = c
	}
	if out.OverlayContourColor != "" {
		c, err := utils.ParseHexColor(out.OverlayContourColor)
		if err != nil {
			return nil, fmt.Errorf("invalid overlay contour color: %w", err)
		}
		ow.marker = c
	}
	return ow, nil
}

// Write loads the image at res.Source again and stores the overlay as
// <dir>/<stem>_overlay.png.
func (ow *overlayWriter) Write(res *pipeline.ImageResult) (string, error) {
	img, _, err := utils.LoadImage(res.Source)
	if err != nil {
		return "", err
	}
	ov := pipeline.RenderOverlay(img, res, ow.box, ow.marker)
	if ov == nil {
		return "", errors.New("nothing to render")
	}
	if err := os.MkdirAll(ow.dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create overlay directory: %w", err)
	}
	base := filepath.Base(res.Source)
	outPath := filepath.Join(ow.dir, strings.TrimSuffix(base, filepath.Ext(base))+"_overlay.png")
	if err := imaging.Save(ov, outPath); err != nil {
		return "", fmt.Errorf("failed to save overlay: %w", err)
	}
	return outPath, nil
}

// addDetectionFlags registers the detector and result filtering flags.
func addDetectionFlags(c *cobra.Command) {
	f := c.Flags()
	f.Int("threshold", detector.DefaultThreshold, "binarization threshold; pixels darker than this are foreground")
	f.Float64("epsilon", detector.DefaultEpsilon, "Ramer-Douglas-Peucker simplification tolerance in pixels")
	f.Int("min-blob-area", detector.DefaultMinBlobArea, "ignore blobs with fewer pixels")
	f.Float64("min-confidence", 0, "drop shapes below this confidence (0-1)")
	f.Int("precision", 2, "decimal places for confidence values")
	f.Bool("sort", false, "sort shapes top-to-bottom, left-to-right")
}

func addOverlayFlags(c *cobra.Command) {
	f := c.Flags()
	f.String("overlay-dir", "", "write overlay images into this directory")
	f.String("box-color", "#FF0000", "overlay bounding box color (hex)")
	f.String("contour-color", "#00FF00", "overlay center marker color (hex)")
}
