package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/shapedetect/internal/config"
	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
	"github.com/MeKo-Tech/shapedetect/internal/server"
)

func newServeCommand() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for the shape detection API",
		Long: `Start an HTTP server that provides REST and websocket endpoints for shape
detection.

The server provides the following endpoints:
  POST /detect/image - Detect shapes in an uploaded image
  POST /detect/pdf   - Detect shapes in the images of an uploaded PDF
  GET  /ws/detect    - Websocket detection stream
  GET  /info         - Pipeline configuration
  GET  /health       - Health check endpoint
  GET  /metrics      - Prometheus metrics

Examples:
  shapedetect serve
  shapedetect serve --port 8080
  shapedetect serve --host 0.0.0.0 --port 3000 --rate-limit`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	f := serveCmd.Flags()
	f.String("host", "localhost", "server host")
	f.IntP("port", "p", 8080, "server port")
	f.String("cors-origin", "*", "allowed CORS origin")
	f.Int("max-upload-mb", 50, "maximum upload size in MB")
	f.Int("timeout", 30, "request timeout in seconds")
	f.Int("shutdown-timeout", 10, "graceful shutdown timeout in seconds")
	f.Bool("overlay-enabled", true, "allow format=overlay responses")
	f.Bool("rate-limit", false, "enable per-client rate limiting")
	f.Int("requests-per-minute", 60, "rate limit: requests per minute per client")
	f.Int("requests-per-hour", 1000, "rate limit: requests per hour per client")
	f.Int("threshold", 128, "default binarization threshold")
	f.Float64("epsilon", 2.0, "default simplification tolerance in pixels")
	return serveCmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := GetConfig()
	srvCfg := serverConfig(cfg)

	s, err := server.NewServer(srvCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Warn("Error closing server", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Listening on http://%s:%d\n", srvCfg.Host, srvCfg.Port)
	return s.ListenAndServe(ctx, srvCfg)
}

// serverConfig maps the resolved configuration onto the server settings.
func serverConfig(cfg *config.Config) server.Config {
	pcfg := pipeline.DefaultConfig()
	pcfg.Detector = cfg.ToDetectorConfig()

	rl := cfg.Server.RateLimit
	return server.Config{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		CORSOrigin:         cfg.Server.CORSOrigin,
		MaxUploadMB:        int64(cfg.Server.MaxUploadMB),
		TimeoutSec:         cfg.Server.TimeoutSec,
		ShutdownTimeoutSec: cfg.Server.ShutdownTimeout,
		Precision:          cfg.Output.ConfidencePrecision,
		PipelineConfig:     pcfg,
		OverlayEnabled:     cfg.Server.OverlayEnabled,
		OverlayBoxColor:    cfg.Output.OverlayBoxColor,
		OverlayMarkerColor: cfg.Output.OverlayContourColor,
		RateLimit: server.RateLimitConfig{
			Enabled:           rl.Enabled,
			RequestsPerMinute: rl.RequestsPerMinute,
			RequestsPerHour:   rl.RequestsPerHour,
			MaxRequestsPerDay: rl.MaxRequestsPerDay,
			MaxDataPerDay:     int64(rl.MaxDataPerDayMB) << 20,
		},
	}
}
