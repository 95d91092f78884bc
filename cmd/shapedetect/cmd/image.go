package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/shapedetect/internal/common"
	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
)

func newImageCommand() *cobra.Command {
	imageCmd := &cobra.Command{
		Use:   "image [files...]",
		Short: "Detect shapes in image files",
		Long: `Detect circles, triangles, rectangles, pentagons and stars in one or more
image files (PNG, JPEG, GIF, BMP, TIFF, WebP).

Examples:
  shapedetect image scene.png
  shapedetect image a.png b.png --format json
  shapedetect image scene.png --threshold 100 --epsilon 3
  shapedetect image scene.png --overlay-dir overlays`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImage,
	}

	f := imageCmd.Flags()
	f.StringP("format", "f", "text", "output format (text, json, csv, yaml)")
	f.StringP("output", "o", "", "output file (default is stdout)")
	addDetectionFlags(imageCmd)
	addOverlayFlags(imageCmd)
	return imageCmd
}

func runImage(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")
	if err := validateMinConfidence(minConfidence); err != nil {
		return err
	}
	sortShapes, _ := cmd.Flags().GetBool("sort")

	overlays, err := newOverlayWriter(cfg.Output)
	if err != nil {
		return err
	}

	pl, err := pipeline.NewBuilder().WithDetectorConfig(cfg.ToDetectorConfig()).Build()
	if err != nil {
		return fmt.Errorf("failed to build detection pipeline: %w", err)
	}
	defer func() {
		if err := pl.Close(); err != nil {
			slog.Warn("Error closing pipeline", "error", err)
		}
	}()

	timer := common.NewNamedTimer("image")
	results := make([]*pipeline.ImageResult, 0, len(args))
	for _, path := range args {
		res, err := pl.ProcessFile(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("failed to process image: %w", err)
		}
		filterShapes(res, minConfidence, sortShapes)
		if overlays != nil {
			out, err := overlays.Write(res)
			if err != nil {
				return fmt.Errorf("failed to write overlay for %s: %w", path, err)
			}
			slog.Debug("Overlay written", "file", path, "overlay", out)
		}
		results = append(results, res)
	}
	slog.Info("Detection completed", "images", len(results), "duration", timer.Stop())

	output, err := pipeline.Format(cfg.Output.Format, cfg.Output.ConfidencePrecision, results...)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}
	return writeResults(cmd.OutOrStdout(), cmd.ErrOrStderr(), output, cfg.Output.File)
}
