package server

import (
	"context"
	"image"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/shapedetect/internal/pdf"
	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
	"github.com/MeKo-Tech/shapedetect/internal/utils"
)

// detectionPipeline defines the methods needed by the server from a pipeline.
type detectionPipeline interface {
	ProcessImageContext(ctx context.Context, img image.Image) (*pipeline.ImageResult, error)
	ProcessPDFContext(ctx context.Context, filename, pageRange string, creds *pdf.Credentials) (*pipeline.PDFResult, error)
	Info() map[string]interface{}
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline           detectionPipeline
	pipelines          *pipelineCache
	constraints        utils.ImageConstraints
	corsOrigin         string
	maxUploadMB        int64
	timeoutSec         int
	precision          int
	overlayEnabled     bool
	overlayBoxColor    string
	overlayMarkerColor string
	rateLimiter        *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host               string
	Port               int
	CORSOrigin         string
	MaxUploadMB        int64
	TimeoutSec         int
	ShutdownTimeoutSec int
	Precision          int
	PipelineConfig     pipeline.Config
	OverlayEnabled     bool
	OverlayBoxColor    string
	OverlayMarkerColor string
	RateLimit          RateLimitConfig
}

// RateLimitConfig holds per-client request limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// InfoResponse is returned by GET /info.
type InfoResponse struct {
	Pipeline       map[string]interface{} `json:"pipeline"`
	CachedVariants int                    `json:"cached_variants"`
	Formats        []string               `json:"formats"`
}

// DetectResponse wraps an image detection result.
type DetectResponse struct {
	Success bool                  `json:"success"`
	Result  *pipeline.ImageResult `json:"result,omitempty"`
	Summary *pipeline.Summary     `json:"summary,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// PDFResponse wraps a PDF detection result.
type PDFResponse struct {
	Success bool                `json:"success"`
	Result  *pipeline.PDFResult `json:"result,omitempty"`
	Summary *pipeline.Summary   `json:"summary,omitempty"`
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/info", s.corsMiddleware(s.infoHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/detect/image", s.corsMiddleware(s.rateLimitMiddleware(s.detectImageHandler)))
	mux.HandleFunc("/detect/pdf", s.corsMiddleware(s.rateLimitMiddleware(s.detectPDFHandler)))
	// The websocket route must see the raw ResponseWriter to hijack it.
	mux.HandleFunc("/ws/detect", s.rateLimitMiddleware(s.detectWebSocketHandler))
}
