package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shapedetect_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shapedetect_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Detection metrics
	detectionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shapedetect_detection_requests_total",
			Help: "Total number of detection requests",
		},
		[]string{"type", "status"}, // type: image, pdf, websocket
	)

	detectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shapedetect_detection_duration_seconds",
			Help:    "Detection processing duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"type"},
	)

	shapesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shapedetect_shapes_detected_total",
			Help: "Total number of detected shapes by shape type",
		},
		[]string{"shape"},
	)

	shapesPerImage = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shapedetect_shapes_per_image",
			Help:    "Number of shapes detected per image",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
		[]string{"type"},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shapedetect_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"}, // type: minute, hour, requests, data
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shapedetect_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shapedetect_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shapedetect_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)

// recordDetection updates the shape counters for a successful request.
func recordDetection(kind string, seconds float64, results ...*pipeline.ImageResult) {
	detectionRequestsTotal.WithLabelValues(kind, "success").Inc()
	detectionDuration.WithLabelValues(kind).Observe(seconds)
	for _, res := range results {
		if res == nil {
			continue
		}
		shapesPerImage.WithLabelValues(kind).Observe(float64(len(res.Shapes)))
		for _, s := range res.Shapes {
			shapesDetectedTotal.WithLabelValues(string(s.Type)).Inc()
		}
	}
}

func recordFailure(kind string) {
	detectionRequestsTotal.WithLabelValues(kind, "error").Inc()
}
