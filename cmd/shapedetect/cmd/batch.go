package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/shapedetect/internal/batch"
)

func newBatchCommand() *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch [paths...]",
		Short: "Detect shapes in many images in parallel",
		Long: `Discover image files in the given files and directories and detect shapes in
all of them with a parallel worker pool.

Examples:
  shapedetect batch ./images
  shapedetect batch ./images --recursive --include "*.png" --exclude "*_overlay.png"
  shapedetect batch ./images --workers 8 --format json --output results.json
  shapedetect batch ./images --progress --stats`,
		Args: cobra.MinimumNArgs(1),
		RunE: runBatch,
	}

	f := batchCmd.Flags()
	f.StringP("format", "f", "text", "output format (text, json, csv, yaml)")
	f.StringP("output", "o", "", "output file (default is stdout)")
	f.String("output-dir", "", "directory for the output file")
	addDetectionFlags(batchCmd)
	addOverlayFlags(batchCmd)

	f.IntP("workers", "w", 0, "number of parallel workers (default from config, number of CPUs)")
	f.Int("batch-size", 0, "images per processing chunk (0 processes all at once)")
	f.String("memory-limit", "", "soft heap limit, for example 512MB or 2GB")
	f.Int("max-in-flight", 0, "maximum images in detection at once (0 is unlimited)")

	f.BoolP("recursive", "r", false, "descend into subdirectories")
	f.StringSlice("include", nil, "glob patterns of files to include")
	f.StringSlice("exclude", nil, "glob patterns of files to exclude")
	f.Bool("continue-on-error", false, "skip unreadable files instead of aborting")

	f.Bool("progress", false, "show a progress bar on stderr")
	f.BoolP("quiet", "q", false, "suppress progress and status messages")
	f.Bool("stats", false, "print processing statistics")
	return batchCmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	bc, err := batchConfig(cmd)
	if err != nil {
		return err
	}

	res, err := batch.ProcessBatchContext(cmd.Context(), args, bc)
	if err != nil {
		return err
	}

	if err := res.SaveResults(cmd.OutOrStdout(), bc.Format, bc.Precision, bc.ResolveOutputFile(), bc.Quiet); err != nil {
		return err
	}
	if bc.ShowStats {
		res.PrintStats(cmd.ErrOrStderr(), bc.Quiet)
	}
	return nil
}

// batchConfig merges the resolved configuration with the batch-only flags.
func batchConfig(cmd *cobra.Command) (*batch.Config, error) {
	cfg := GetConfig()
	flags := cmd.Flags()

	minConfidence, _ := flags.GetFloat64("min-confidence")
	if err := validateMinConfidence(minConfidence); err != nil {
		return nil, err
	}
	batchSize, _ := flags.GetInt("batch-size")
	maxInFlight, _ := flags.GetInt("max-in-flight")
	if batchSize < 0 || maxInFlight < 0 {
		return nil, fmt.Errorf("invalid batch settings: batch-size %d, max-in-flight %d (must not be negative)",
			batchSize, maxInFlight)
	}
	memoryLimit, _ := flags.GetString("memory-limit")
	sortShapes, _ := flags.GetBool("sort")
	showProgress, _ := flags.GetBool("progress")
	quiet, _ := flags.GetBool("quiet")
	showStats, _ := flags.GetBool("stats")

	return &batch.Config{
		Detector:         cfg.ToDetectorConfig(),
		MinConfidence:    minConfidence,
		Format:           cfg.Output.Format,
		OutputFile:       cfg.Output.File,
		OutputDir:        cfg.Batch.OutputDir,
		Precision:        cfg.Output.ConfidencePrecision,
		SortShapes:       sortShapes,
		OverlayDir:       cfg.Output.OverlayDir,
		BoxColor:         cfg.Output.OverlayBoxColor,
		MarkerColor:      cfg.Output.OverlayContourColor,
		Workers:          cfg.Batch.Workers,
		BatchSize:        batchSize,
		MemoryLimitStr:   memoryLimit,
		MaxInFlight:      maxInFlight,
		Recursive:        cfg.Batch.Recursive,
		IncludePatterns:  cfg.Batch.Include,
		ExcludePatterns:  cfg.Batch.Exclude,
		ContinueOnError:  cfg.Batch.ContinueOnError,
		ShowProgress:     showProgress,
		Quiet:            quiet,
		ShowStats:        showStats,
		ProgressInterval: 100 * time.Millisecond,
		ProgressWriter:   cmd.ErrOrStderr(),
	}, nil
}
