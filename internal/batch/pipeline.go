package batch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/shapedetect/internal/detector"
	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
)

// buildPipeline creates a detection pipeline from the batch configuration.
func buildPipeline(config *Config, progressCallback pipeline.ProgressCallback) (*pipeline.Pipeline, error) {
	memoryLimit, err := parseMemoryLimitOrDefault(config.MemoryLimitStr)
	if err != nil {
		return nil, err
	}

	b := pipeline.NewBuilder().
		WithParallelWorkers(config.Workers).
		WithBatchSize(config.BatchSize).
		WithMemoryLimit(memoryLimit).
		WithMaxInFlight(config.MaxInFlight).
		WithProgressCallback(progressCallback)

	if config.Detector != (detector.Config{}) {
		b = b.WithDetectorConfig(config.Detector)
	}

	return b.Build()
}

func parseMemoryLimitOrDefault(limitStr string) (uint64, error) {
	if strings.TrimSpace(limitStr) == "" {
		return 0, nil
	}
	limit, err := parseMemoryLimit(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid memory limit %q: %w", limitStr, err)
	}
	return limit, nil
}

var memoryUnits = []struct {
	suffix     string
	multiplier uint64
}{
	{"TB", 1 << 40},
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// parseMemoryLimit parses a memory limit string (e.g., "1GB", "512MB") into bytes.
func parseMemoryLimit(limit string) (uint64, error) {
	limit = strings.TrimSpace(strings.ToUpper(limit))

	for _, u := range memoryUnits {
		numStr, ok := strings.CutSuffix(limit, u.suffix)
		if !ok {
			continue
		}
		num, err := strconv.ParseFloat(strings.TrimSpace(numStr), 64)
		if err != nil {
			return 0, err
		}
		if num < 0 {
			return 0, fmt.Errorf("negative size %q", limit)
		}
		return uint64(num * float64(u.multiplier)), nil
	}

	return strconv.ParseUint(limit, 10, 64)
}
