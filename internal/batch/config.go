package batch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/MeKo-Tech/shapedetect/internal/detector"
	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
)

// Config holds all configuration for batch processing.
type Config struct {
	// Detection settings
	Detector      detector.Config
	MinConfidence float64

	// Output settings
	Format      string
	OutputFile  string
	OutputDir   string
	Precision   int
	SortShapes  bool
	OverlayDir  string
	BoxColor    string
	MarkerColor string

	// Parallel processing settings
	Workers        int
	BatchSize      int
	MemoryLimitStr string
	MaxInFlight    int

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string
	ContinueOnError bool

	// Progress settings
	ShowProgress     bool
	Quiet            bool
	ShowStats        bool
	ProgressInterval time.Duration
	ProgressWriter   io.Writer
}

// DefaultConfig returns a configuration with the calibrated detector defaults.
func DefaultConfig() *Config {
	return &Config{
		Detector:         detector.DefaultConfig(),
		Format:           "text",
		Precision:        2,
		Workers:          1,
		ProgressInterval: 100 * time.Millisecond,
	}
}

// FileResult is the outcome for one discovered file. Exactly one of Result
// and Error is set.
type FileResult struct {
	Path   string
	Result *pipeline.ImageResult
	Error  error
}

// Result holds the result of batch processing.
type Result struct {
	Files       []FileResult
	Duration    time.Duration
	WorkerCount int
}

// Results returns the successful detection results in discovery order.
func (r *Result) Results() []*pipeline.ImageResult {
	out := make([]*pipeline.ImageResult, 0, len(r.Files))
	for _, f := range r.Files {
		if f.Result != nil {
			out = append(out, f.Result)
		}
	}
	return out
}

// Failed returns the files that could not be loaded or processed.
func (r *Result) Failed() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Error != nil {
			out = append(out, f)
		}
	}
	return out
}

// Summary aggregates shape counts over all successful results.
func (r *Result) Summary() pipeline.Summary {
	return pipeline.Summarize(r.Results()...)
}

// Stats returns throughput statistics for the run.
func (r *Result) Stats() pipeline.ParallelStats {
	aligned := make([]*pipeline.ImageResult, len(r.Files))
	for i, f := range r.Files {
		aligned[i] = f.Result
	}
	return pipeline.CalculateParallelStats(aligned, r.Duration, r.WorkerCount)
}

// FormatResults formats the batch processing results in the specified format.
func (r *Result) FormatResults(format string, precision int) (string, error) {
	return formatBatchResults(r, format, precision)
}

// SaveResults writes the formatted results to outputFile, or to w when
// outputFile is empty.
func (r *Result) SaveResults(w io.Writer, format string, precision int, outputFile string, quiet bool) error {
	output, err := r.FormatResults(format, precision)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile == "" {
		_, err := fmt.Fprint(w, output)
		return err
	}

	if dir := filepath.Dir(outputFile); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if !quiet {
		_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
	}
	return nil
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(w io.Writer, quiet bool) {
	if quiet {
		return
	}
	stats := r.Stats()
	summary := r.Summary()

	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total images: %d\n", stats.TotalImages)
	_, _ = fmt.Fprintf(w, "  Processed: %d\n", stats.ProcessedImages)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", stats.FailedImages)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", stats.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", stats.TotalDuration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per image: %v\n", stats.AveragePerImage.Round(time.Microsecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f images/sec\n", stats.ThroughputPerSec)
	_, _ = fmt.Fprintf(w, "  Shapes: %d\n", summary.Shapes)

	types := make([]string, 0, len(summary.ByType))
	for t := range summary.ByType {
		types = append(types, t)
	}
	slices.Sort(types)
	for _, t := range types {
		_, _ = fmt.Fprintf(w, "    %s: %d\n", t, summary.ByType[t])
	}
	if summary.Shapes > 0 {
		_, _ = fmt.Fprintf(w, "  Avg confidence: %.3f\n", summary.AverageConfidence)
	}
}
