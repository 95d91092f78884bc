package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/shapedetect/internal/detector"
	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
	"github.com/MeKo-Tech/shapedetect/internal/utils"
)

func TestNewServer_Defaults(t *testing.T) {
	s := newRealServer(t, Config{})

	assert.Equal(t, int64(defaultMaxUploadMB), s.maxUploadMB)
	assert.Equal(t, defaultPrecision, s.precision)
	assert.Nil(t, s.rateLimiter)
	assert.Equal(t, detector.DefaultConfig(), s.pipelines.base.Detector)
	assert.Equal(t, utils.DefaultImageConstraints(), s.pipelines.base.Constraints)
}

func TestNewServer_CustomConfig(t *testing.T) {
	base := pipeline.DefaultConfig()
	base.Detector.Threshold = 100
	s := newRealServer(t, Config{
		MaxUploadMB:        5,
		Precision:          4,
		PipelineConfig:     base,
		OverlayEnabled:     true,
		OverlayBoxColor:    "#00FF00",
		OverlayMarkerColor: "#0000FF",
		RateLimit:          RateLimitConfig{Enabled: true, RequestsPerMinute: 10},
	})

	assert.Equal(t, int64(5), s.maxUploadMB)
	assert.Equal(t, 4, s.precision)
	assert.True(t, s.overlayEnabled)
	require.NotNil(t, s.rateLimiter)
	assert.Equal(t, 10, s.rateLimiter.requestsPerMinute)
	assert.Equal(t, 100, s.pipelines.base.Detector.Threshold)
}

func TestNewServer_Errors(t *testing.T) {
	t.Run("invalid overlay color", func(t *testing.T) {
		_, err := NewServer(Config{OverlayBoxColor: "red"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid overlay box color")
	})

	t.Run("invalid detector config", func(t *testing.T) {
		base := pipeline.DefaultConfig()
		base.Detector.Threshold = 300
		_, err := NewServer(Config{PipelineConfig: base})
		require.Error(t, err)
		assert.ErrorIs(t, err, detector.ErrInvalidConfig)
	})
}

func TestServer_Close(t *testing.T) {
	m := &mockPipeline{}
	s := newMockServer(t, m, Config{})
	require.NoError(t, s.Close())
	assert.True(t, m.closed)

	assert.NoError(t, (&Server{}).Close())
}

func TestServer_HealthHandler(t *testing.T) {
	s := newMockServer(t, &mockPipeline{}, Config{})

	t.Run("GET", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.healthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.NotEmpty(t, resp.Time)
	})

	t.Run("POST", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.healthHandler(w, httptest.NewRequest(http.MethodPost, "/health", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestServer_InfoHandler(t *testing.T) {
	s := newMockServer(t, &mockPipeline{}, Config{})

	w := httptest.NewRecorder()
	s.infoHandler(w, httptest.NewRequest(http.MethodGet, "/info", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp InfoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "mock", resp.Pipeline["detector"])
	assert.Zero(t, resp.CachedVariants)
	assert.Contains(t, resp.Formats, "overlay")

	w = httptest.NewRecorder()
	s.infoHandler(w, httptest.NewRequest(http.MethodDelete, "/info", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestParseDetectionOptions(t *testing.T) {
	tests := []struct {
		name      string
		values    map[string]string
		threshold *int
		epsilon   *float64
		wantErr   string
	}{
		{name: "empty", values: map[string]string{}},
		{name: "threshold", values: map[string]string{"threshold": "100"}, threshold: ptr(100)},
		{name: "epsilon", values: map[string]string{"epsilon": " 2.5 "}, epsilon: ptr(2.5)},
		{name: "both", values: map[string]string{"threshold": "0", "epsilon": "0"}, threshold: ptr(0), epsilon: ptr(0.0)},
		{name: "threshold upper bound", values: map[string]string{"threshold": "256"}, threshold: ptr(256)},
		{name: "threshold not a number", values: map[string]string{"threshold": "dark"}, wantErr: "invalid threshold"},
		{name: "threshold out of range", values: map[string]string{"threshold": "257"}, wantErr: "invalid threshold"},
		{name: "negative epsilon", values: map[string]string{"epsilon": "-1"}, wantErr: "invalid epsilon"},
		{name: "epsilon not a number", values: map[string]string{"epsilon": "wide"}, wantErr: "invalid epsilon"},
		{name: "NaN epsilon", values: map[string]string{"epsilon": "NaN"}, wantErr: "invalid epsilon"},
		{name: "infinite epsilon", values: map[string]string{"epsilon": "+Inf"}, wantErr: "invalid epsilon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseDetectionOptions(func(k string) string { return tt.values[k] })
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.threshold, opts.threshold)
			assert.Equal(t, tt.epsilon, opts.epsilon)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestDetectionOptions_Apply(t *testing.T) {
	base := detector.DefaultConfig()
	assert.Equal(t, base, detectionOptions{}.apply(base))
	assert.True(t, detectionOptions{}.empty())

	got := detectionOptions{threshold: ptr(90), epsilon: ptr(4.0)}.apply(base)
	assert.Equal(t, 90, got.Threshold)
	assert.InDelta(t, 4.0, got.Epsilon, 1e-9)
	assert.Equal(t, base.MinBlobArea, got.MinBlobArea)
}

func TestServer_PipelineFor(t *testing.T) {
	s := newRealServer(t, Config{})

	shared, err := s.pipelineFor(detectionOptions{})
	require.NoError(t, err)
	assert.Same(t, s.pipeline, shared)

	a, err := s.pipelineFor(detectionOptions{threshold: ptr(90)})
	require.NoError(t, err)
	b, err := s.pipelineFor(detectionOptions{threshold: ptr(90)})
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, s.pipelines.Len())

	_, err = s.pipelineFor(detectionOptions{epsilon: ptr(3.0)})
	require.NoError(t, err)
	assert.Equal(t, 2, s.pipelines.Len())

	for range 20 {
		_, err = s.pipelineFor(detectionOptions{epsilon: ptr(math.NaN())})
		require.Error(t, err)
	}
	assert.Equal(t, 2, s.pipelines.Len())
}

func TestServer_CachedPipelinesShareResources(t *testing.T) {
	s := newRealServer(t, Config{PipelineConfig: pipeline.Config{
		Resource: pipeline.ResourceConfig{MaxInFlight: 2},
	}})
	base, ok := s.pipeline.(*pipeline.Pipeline)
	require.True(t, ok)
	require.NotNil(t, base.ResourceManager)

	variant, err := s.pipelineFor(detectionOptions{threshold: ptr(90)})
	require.NoError(t, err)
	p, ok := variant.(*pipeline.Pipeline)
	require.True(t, ok)
	assert.Same(t, base.ResourceManager, p.ResourceManager)
}

func TestRequestFormat(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"/detect/image", "json"},
		{"/detect/image?format=CSV", "csv"},
		{"/detect/image?format=yml", "yaml"},
		{"/detect/image?format=text", "text"},
		{"/detect/image?format=overlay", "overlay"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.target, nil)
		assert.Equal(t, tt.want, requestFormat(req), tt.target)
	}
}

func TestDetectionStatus(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, detectionStatus(context.DeadlineExceeded))
	assert.Equal(t, 499, detectionStatus(context.Canceled))
	assert.Equal(t, http.StatusUnprocessableEntity, detectionStatus(errors.New("validate: image too large: 1x1 > 0x0")))
	assert.Equal(t, http.StatusInternalServerError, detectionStatus(errors.New("boom")))
}

func TestServer_WriteErrorResponse(t *testing.T) {
	s := &Server{}
	w := httptest.NewRecorder()
	s.writeErrorResponse(w, "bad things", http.StatusTeapot)

	assert.Equal(t, http.StatusTeapot, w.Code)
	var resp DetectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "bad things", resp.Error)
	assert.Nil(t, resp.Result)
}

func TestDecodeStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"too large", &utils.ImageProcessingError{Operation: "validate", Err: utils.ErrImageTooLarge}, http.StatusRequestEntityTooLarge},
		{"too small", &utils.ImageProcessingError{Operation: "validate", Err: errors.New("image too small: 1x1 < 5x5")}, http.StatusBadRequest},
		{"undecodable", &utils.ImageProcessingError{Operation: "decode", Err: errors.New("unknown format")}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeStatus(tt.err))
		})
	}
}
