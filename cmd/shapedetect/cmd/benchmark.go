package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/shapedetect/internal/benchmark"
	"github.com/MeKo-Tech/shapedetect/internal/detector"
	"github.com/MeKo-Tech/shapedetect/internal/utils"
)

func newBenchmarkCommand() *cobra.Command {
	benchCmd := &cobra.Command{
		Use:   "benchmark [files...]",
		Short: "Time each detection stage on sample images",
		Long: `Run every detection stage repeatedly on the given images and report
per-stage timings: binarize, extract_blobs, trace_contours, simplify, classify
and the end-to-end detect.

Examples:
  shapedetect benchmark scene.png
  shapedetect benchmark a.png b.png --iterations 50 --stages binarize,detect
  shapedetect benchmark scene.png --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runBenchmark,
	}

	f := benchCmd.Flags()
	f.IntP("iterations", "n", 10, "iterations per stage")
	f.StringSlice("stages", nil, "stages to run (default all)")
	f.StringP("format", "f", "text", "output format (text, json)")
	f.Int("threshold", detector.DefaultThreshold, "binarization threshold; pixels darker than this are foreground")
	f.Float64("epsilon", detector.DefaultEpsilon, "Ramer-Douglas-Peucker simplification tolerance in pixels")
	f.Int("min-blob-area", detector.DefaultMinBlobArea, "ignore blobs with fewer pixels")
	return benchCmd
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	iterations, _ := flags.GetInt("iterations")
	if iterations < 1 {
		return fmt.Errorf("invalid iterations %d: must be at least 1", iterations)
	}
	stages, _ := flags.GetStringSlice("stages")
	for _, s := range stages {
		if !slices.Contains(benchmark.Stages, s) {
			return fmt.Errorf("unknown stage %q (valid: %s)", s, strings.Join(benchmark.Stages, ", "))
		}
	}
	format, _ := flags.GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported benchmark format: %s", format)
	}

	cfg := GetConfig().ToDetectorConfig()
	var results []benchmark.Result
	for _, path := range args {
		img, _, err := utils.LoadImage(path)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		prefix := filepath.Base(path) + "/"
		b, err := benchmark.NewDetectionBenchmark(prefix, img, cfg)
		if err != nil {
			return err
		}
		for _, stage := range benchmark.Stages {
			if len(stages) > 0 && !slices.Contains(stages, stage) {
				continue
			}
			results = append(results, b.Run(prefix+stage, iterations))
		}
		b.Close()
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	_, _ = fmt.Fprintln(out, "Benchmark Results:")
	_, _ = fmt.Fprintln(out, "==================")
	for _, r := range results {
		_, _ = fmt.Fprintln(out, r.String())
	}
	return nil
}
