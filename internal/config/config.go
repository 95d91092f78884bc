package config

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/MeKo-Tech/shapedetect/internal/detector"
	"github.com/MeKo-Tech/shapedetect/internal/utils"
)

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validOutputFormats = []string{"text", "json", "csv", "yaml"}
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	det := detector.DefaultConfig()
	return Config{
		LogLevel: "info",
		Detection: DetectionConfig{
			Threshold:            det.Threshold,
			Epsilon:              det.Epsilon,
			MinBlobArea:          det.MinBlobArea,
			MinContourLength:     det.MinContourLength,
			CircularityThreshold: det.CircularityThreshold,
			StarRatio:            det.StarRatio,
			ClosureDistance:      det.ClosureDistance,
			Workers:              det.Workers,
		},
		Output: OutputConfig{
			Format:              "text",
			ConfidencePrecision: 2,
			OverlayBoxColor:     "#FF0000",
			OverlayContourColor: "#00FF00",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			OverlayEnabled:  true,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
				MaxRequestsPerDay: 10000,
				MaxDataPerDayMB:   1024,
			},
		},
		Batch: BatchConfig{
			Workers: runtime.NumCPU(),
		},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.Output.Format != "" && !slices.Contains(validOutputFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)",
			c.Output.Format, strings.Join(validOutputFormats, ", "))
	}
	if c.Output.ConfidencePrecision < 0 || c.Output.ConfidencePrecision > 6 {
		return fmt.Errorf("invalid confidence precision: %d (must be between 0 and 6)", c.Output.ConfidencePrecision)
	}
	for name, col := range map[string]string{
		"output.overlay_box_color":     c.Output.OverlayBoxColor,
		"output.overlay_contour_color": c.Output.OverlayContourColor,
	} {
		if col == "" {
			continue
		}
		if _, err := utils.ParseHexColor(col); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if err := c.ToDetectorConfig().Validate(); err != nil {
		return fmt.Errorf("invalid detection settings: %w", err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if rl := c.Server.RateLimit; rl.Enabled && (rl.RequestsPerMinute <= 0 || rl.RequestsPerHour <= 0) {
		return fmt.Errorf("invalid rate limit: %d/min, %d/hour (must be positive when enabled)",
			rl.RequestsPerMinute, rl.RequestsPerHour)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}
	return nil
}

// ToDetectorConfig converts the detection section into detector.Config.
func (c *Config) ToDetectorConfig() detector.Config {
	d := c.Detection
	return detector.Config{
		Threshold:            d.Threshold,
		Epsilon:              d.Epsilon,
		MinBlobArea:          d.MinBlobArea,
		MinContourLength:     d.MinContourLength,
		CircularityThreshold: d.CircularityThreshold,
		StarRatio:            d.StarRatio,
		ClosureDistance:      d.ClosureDistance,
		Workers:              d.Workers,
	}
}
