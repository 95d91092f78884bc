package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/shapedetect/internal/detector"
	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
	"github.com/MeKo-Tech/shapedetect/internal/utils"
	"github.com/MeKo-Tech/shapedetect/internal/version"
)

const (
	formatJSON    = "json"
	formatText    = "text"
	formatCSV     = "csv"
	formatYAML    = "yaml"
	formatOverlay = "overlay"

	defaultMaxUploadMB = 50
	defaultPrecision   = 2
)

// NewServer builds the detection pipeline and returns a ready server.
func NewServer(config Config) (*Server, error) {
	base := config.PipelineConfig
	if base.Detector == (detector.Config{}) {
		base.Detector = detector.DefaultConfig()
	}
	if base.Constraints == (utils.ImageConstraints{}) {
		base.Constraints = utils.DefaultImageConstraints()
	}

	pl, err := pipeline.NewBuilder().
		WithDetectorConfig(base.Detector).
		WithImageConstraints(base.Constraints).
		WithParallelWorkers(base.Parallel.MaxWorkers).
		WithMemoryLimit(base.Resource.MaxMemoryBytes).
		WithMaxInFlight(base.Resource.MaxInFlight).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build detection pipeline: %w", err)
	}
	base = pl.Config()

	s, err := newServer(pl, base, config)
	if err != nil {
		_ = pl.Close()
		return nil, err
	}
	return s, nil
}

func newServer(pl detectionPipeline, base pipeline.Config, config Config) (*Server, error) {
	for name, value := range map[string]string{
		"overlay box color":    config.OverlayBoxColor,
		"overlay marker color": config.OverlayMarkerColor,
	} {
		if value == "" {
			continue
		}
		if _, err := utils.ParseHexColor(value); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	var resources *pipeline.ResourceManager
	if p, ok := pl.(*pipeline.Pipeline); ok {
		resources = p.ResourceManager
	}

	s := &Server{
		pipeline:           pl,
		pipelines:          newPipelineCache(base, resources, defaultPipelineCacheSize),
		constraints:        base.Constraints,
		corsOrigin:         config.CORSOrigin,
		maxUploadMB:        config.MaxUploadMB,
		timeoutSec:         config.TimeoutSec,
		precision:          config.Precision,
		overlayEnabled:     config.OverlayEnabled,
		overlayBoxColor:    config.OverlayBoxColor,
		overlayMarkerColor: config.OverlayMarkerColor,
	}
	if s.maxUploadMB <= 0 {
		s.maxUploadMB = defaultMaxUploadMB
	}
	if s.precision <= 0 {
		s.precision = defaultPrecision
	}
	if rl := config.RateLimit; rl.Enabled {
		s.rateLimiter = NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.MaxRequestsPerDay, rl.MaxDataPerDay)
	}
	return s, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pipelines != nil {
		_ = s.pipelines.Close()
	}
	if s.pipeline != nil {
		return s.pipeline.Close()
	}
	return nil
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	s.writeJSON(w, http.StatusOK, response)
}

// infoHandler describes the active detector configuration.
func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, InfoResponse{
		Pipeline:       s.pipeline.Info(),
		CachedVariants: s.pipelines.Len(),
		Formats:        []string{formatJSON, formatCSV, formatText, formatYAML, formatOverlay},
	})
}

// detectionOptions are per-request overrides of the detector configuration.
type detectionOptions struct {
	threshold *int
	epsilon   *float64
}

func (o detectionOptions) empty() bool { return o.threshold == nil && o.epsilon == nil }

func (o detectionOptions) apply(cfg detector.Config) detector.Config {
	if o.threshold != nil {
		cfg.Threshold = *o.threshold
	}
	if o.epsilon != nil {
		cfg.Epsilon = *o.epsilon
	}
	return cfg
}

// parseDetectionOptions reads threshold and epsilon through get, which
// returns "" for absent values.
func parseDetectionOptions(get func(string) string) (detectionOptions, error) {
	var opts detectionOptions
	if v := strings.TrimSpace(get("threshold")); v != "" {
		th, err := strconv.Atoi(v)
		if err != nil || th < 0 || th > 256 {
			return opts, fmt.Errorf("invalid threshold %q: must be an integer in [0, 256]", v)
		}
		opts.threshold = &th
	}
	if v := strings.TrimSpace(get("epsilon")); v != "" {
		eps, err := strconv.ParseFloat(v, 64)
		if err != nil || !(eps >= 0) || math.IsInf(eps, 1) {
			return opts, fmt.Errorf("invalid epsilon %q: must be a non-negative number", v)
		}
		opts.epsilon = &eps
	}
	return opts, nil
}

// pipelineFor returns the shared pipeline, or a cached variant when the
// request overrides detector settings.
func (s *Server) pipelineFor(opts detectionOptions) (detectionPipeline, error) {
	if opts.empty() || s.pipelines == nil {
		return s.pipeline, nil
	}
	return s.pipelines.GetOrCreate(opts.apply(s.pipelines.base.Detector))
}

// decodeUpload decodes an uploaded image, rejecting dimensions outside the
// pipeline constraints before the pixels are decoded.
func (s *Server) decodeUpload(r io.Reader) (image.Image, string, error) {
	return utils.DecodeImageWithConstraints(r, s.constraints)
}

// decodeStatus maps a decodeUpload error to an HTTP status.
func decodeStatus(err error) int {
	if errors.Is(err, utils.ErrImageTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// timeoutContext applies the configured per-request timeout.
func (s *Server) timeoutContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeoutSec > 0 {
		return context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
	}
	return context.WithCancel(ctx)
}

// requestContext is timeoutContext for an HTTP request.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return s.timeoutContext(r.Context())
}

// requestFormat reads "format" from the form or query, defaulting to json.
func requestFormat(r *http.Request) string {
	format := strings.ToLower(strings.TrimSpace(r.FormValue("format")))
	if format == "" {
		format = strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	}
	switch format {
	case "":
		return formatJSON
	case "yml":
		return formatYAML
	default:
		return format
	}
}

// parseUpload enforces the upload size limit and parses the multipart form.
// It writes the error response and returns false on failure.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) bool {
	maxBytes := s.maxUploadMB << 20
	tooLarge := func() bool {
		s.writeErrorResponse(w, fmt.Sprintf("upload exceeds %d MB", s.maxUploadMB), http.StatusRequestEntityTooLarge)
		return false
	}
	if r.ContentLength > maxBytes {
		return tooLarge()
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return tooLarge()
		}
		s.writeErrorResponse(w, "Failed to parse multipart form: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// detectionStatus maps a processing error to an HTTP status.
func detectionStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	case strings.Contains(err.Error(), "image too small"), strings.Contains(err.Error(), "image too large"):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, DetectResponse{Success: false, Error: message})
}
