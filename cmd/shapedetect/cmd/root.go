package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/shapedetect/internal/config"
	"github.com/MeKo-Tech/shapedetect/internal/version"
)

var (
	// Configuration loader of the current execution.
	configLoader *config.Loader
	// Resolved configuration of the current execution.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
)

// flagBindings maps command-line flags to configuration keys. A flag takes
// part in resolution only on the commands that define it.
var flagBindings = map[string]string{
	"verbose":   "verbose",
	"log-level": "log_level",

	"threshold":     "detection.threshold",
	"epsilon":       "detection.epsilon",
	"min-blob-area": "detection.min_blob_area",

	"format":        "output.format",
	"output":        "output.file",
	"precision":     "output.confidence_precision",
	"overlay-dir":   "output.overlay_dir",
	"box-color":     "output.overlay_box_color",
	"contour-color": "output.overlay_contour_color",

	"workers":           "batch.workers",
	"recursive":         "batch.recursive",
	"include":           "batch.include",
	"exclude":           "batch.exclude",
	"continue-on-error": "batch.continue_on_error",
	"output-dir":        "batch.output_dir",

	"pages": "pdf.pages",

	"host":                "server.host",
	"port":                "server.port",
	"cors-origin":         "server.cors_origin",
	"max-upload-mb":       "server.max_upload_mb",
	"timeout":             "server.timeout_sec",
	"shutdown-timeout":    "server.shutdown_timeout",
	"overlay-enabled":     "server.overlay_enabled",
	"rate-limit":          "server.rate_limit.enabled",
	"requests-per-minute": "server.rate_limit.requests_per_minute",
	"requests-per-hour":   "server.rate_limit.requests_per_hour",
}

// NewRootCommand builds a fresh command tree. Every call starts with empty
// configuration state, so a process can execute several command lines.
func NewRootCommand() *cobra.Command {
	cfgFile = ""
	configLoader = nil
	globalConfig = nil

	rootCmd := &cobra.Command{
		Use:   "shapedetect",
		Short: "Detect geometric shapes in raster images",
		Long: `shapedetect finds filled shapes in raster images and classifies them as
circle, triangle, rectangle, pentagon or star.

The pipeline binarizes the image, extracts 8-connected blobs, traces their
outer contours, simplifies them with Ramer-Douglas-Peucker and classifies the
result by vertex count, circularity and radial profile.

Examples:
  shapedetect image scene.png
  shapedetect batch ./images --recursive --format json
  shapedetect pdf document.pdf --pages 1-3
  shapedetect serve --port 8080`,
		Version:           version.String(),
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
	rootCmd.SetVersionTemplate("shapedetect {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/shapedetect, /etc/shapedetect)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newImageCommand(),
		newBatchCommand(),
		newPDFCommand(),
		newServeCommand(),
		newBenchmarkCommand(),
		newConfigCommand(),
		newVersionCommand(),
	)
	return rootCmd
}

// Execute runs the command line and exits non-zero on failure.
// This is called by main.main().
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns a fresh root command for tests that must not exit.
func GetRootCommand() *cobra.Command {
	return NewRootCommand()
}

// initConfig binds the flags of the executing command, loads the
// configuration and installs the logger.
func initConfig(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	flags := cmd.Flags()
	for name, key := range flagBindings {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}

	configLoader = config.NewLoaderWithViper(v)
	cfg, err := configLoader.LoadWithFile(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	globalConfig = cfg

	setupLogging(cmd.ErrOrStderr(), cfg)
	slog.Debug("Configuration loaded", "file", configLoader.GetConfigFileUsed(), "command", cmd.Name())
	return nil
}

// setupLogging installs a JSON slog handler. Logs go to stderr so that
// stdout carries only results.
func setupLogging(w io.Writer, cfg *config.Config) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: logLevel(cfg),
	})))
}

func logLevel(cfg *config.Config) slog.Level {
	if cfg.Verbose {
		return slog.LevelDebug
	}
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetConfig returns the configuration resolved for the running command.
func GetConfig() *config.Config {
	if globalConfig == nil {
		cfg := config.DefaultConfig()
		return &cfg
	}
	return globalConfig
}

// GetConfigLoader returns the loader of the running command.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoaderWithViper(viper.New())
	}
	return configLoader
}
