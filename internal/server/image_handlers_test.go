package server

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/shapedetect/internal/testutil"
)

func TestServer_DetectImageHandler_MethodValidation(t *testing.T) {
	s := &Server{maxUploadMB: 10}

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			w := httptest.NewRecorder()
			s.detectImageHandler(w, httptest.NewRequest(method, "/detect/image", nil))
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		})
	}
}

func TestServer_DetectImageHandler_BadRequests(t *testing.T) {
	m := &mockPipeline{}
	s := newMockServer(t, m, Config{MaxUploadMB: 1})

	tests := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		status  int
		message string
	}{
		{
			name: "missing image file",
			req: func(t *testing.T) *http.Request {
				return newUploadRequest(t, "/detect/image", "", "", nil, map[string]string{"format": "json"})
			},
			status:  http.StatusBadRequest,
			message: "No image file provided",
		},
		{
			name: "invalid multipart form",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/detect/image", strings.NewReader("invalid form data"))
				req.Header.Set("Content-Type", "multipart/form-data; boundary=invalid")
				return req
			},
			status:  http.StatusBadRequest,
			message: "Failed to parse multipart form",
		},
		{
			name: "not an image",
			req: func(t *testing.T) *http.Request {
				return newUploadRequest(t, "/detect/image", "image", "notes.txt", []byte("This is not an image"), nil)
			},
			status:  http.StatusBadRequest,
			message: "Failed to decode image",
		},
		{
			name: "invalid threshold",
			req: func(t *testing.T) *http.Request {
				return imageUpload(t, map[string]string{"threshold": "bright"})
			},
			status:  http.StatusBadRequest,
			message: "invalid threshold",
		},
		{
			name: "unsupported format",
			req: func(t *testing.T) *http.Request {
				return imageUpload(t, map[string]string{"format": "xml"})
			},
			status:  http.StatusBadRequest,
			message: "Unsupported format: xml",
		},
		{
			name: "overlay disabled",
			req: func(t *testing.T) *http.Request {
				return imageUpload(t, map[string]string{"format": "overlay"})
			},
			status:  http.StatusForbidden,
			message: "Overlay rendering is disabled",
		},
		{
			name: "declared dimensions too large",
			req: func(t *testing.T) *http.Request {
				var buf bytes.Buffer
				require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 20000, 1))))
				return newUploadRequest(t, "/detect/image", "image", "wide.png", buf.Bytes(), nil)
			},
			status:  http.StatusRequestEntityTooLarge,
			message: "image too large: 20000x1",
		},
		{
			name: "upload too large",
			req: func(t *testing.T) *http.Request {
				big := bytes.Repeat([]byte{0x42}, 2<<20)
				return newUploadRequest(t, "/detect/image", "image", "big.png", big, nil)
			},
			status:  http.StatusRequestEntityTooLarge,
			message: "upload exceeds 1 MB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			s.detectImageHandler(w, tt.req(t))

			assert.Equal(t, tt.status, w.Code)
			var resp DetectResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.message)
		})
	}
	assert.Zero(t, m.imageCalls, "pipeline is not reached for rejected requests")
}

func TestServer_DetectImageHandler_JSON(t *testing.T) {
	s := newMockServer(t, &mockPipeline{}, Config{})

	w := httptest.NewRecorder()
	s.detectImageHandler(w, imageUpload(t, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp DetectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "canvas.png", resp.Result.Source)
	assert.Equal(t, 40, resp.Result.Width)
	assert.Len(t, resp.Result.Shapes, 2)
	require.NotNil(t, resp.Summary)
	assert.Equal(t, map[string]int{"rectangle": 1, "circle": 1}, resp.Summary.ByType)
}

func TestServer_DetectImageHandler_Formats(t *testing.T) {
	s := newMockServer(t, &mockPipeline{}, Config{Precision: 3})

	t.Run("csv", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.detectImageHandler(w, imageUpload(t, map[string]string{"format": "csv"}))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")

		rows, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "canvas.png", rows[1][0])
		assert.Equal(t, "rectangle", rows[1][2])
		assert.Equal(t, "0.900", rows[1][3])
	})

	t.Run("text", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.detectImageHandler(w, imageUpload(t, map[string]string{"format": "text"}))
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.HasPrefix(w.Body.String(), "canvas.png: 40x30, 2 shapes"))
	})

	t.Run("yaml via query", func(t *testing.T) {
		req := imageUpload(t, nil)
		req.URL.RawQuery = "format=yml"
		w := httptest.NewRecorder()
		s.detectImageHandler(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))

		var doc map[string]interface{}
		require.NoError(t, yaml.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(t, "canvas.png", doc["source"])
	})
}

func TestServer_DetectImageHandler_Overlay(t *testing.T) {
	s := newMockServer(t, &mockPipeline{}, Config{
		OverlayEnabled:     true,
		OverlayBoxColor:    "#00FF00",
		OverlayMarkerColor: "#0000FF",
	})

	t.Run("configured colors", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.detectImageHandler(w, imageUpload(t, map[string]string{"format": "overlay"}))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

		img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, 40, img.Bounds().Dx())
		assert.Positive(t, testutil.CountInk(img, color.NRGBA{G: 255, A: 255}))
	})

	t.Run("request color override", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.detectImageHandler(w, imageUpload(t, map[string]string{"format": "overlay", "box_color": "#FF00FF"}))
		require.Equal(t, http.StatusOK, w.Code)

		img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		assert.Positive(t, testutil.CountInk(img, color.NRGBA{R: 255, B: 255, A: 255}))
		assert.Zero(t, testutil.CountInk(img, color.NRGBA{G: 255, A: 255}))
	})

	t.Run("invalid color", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.detectImageHandler(w, imageUpload(t, map[string]string{"format": "overlay", "marker_color": "blue"}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid marker_color")
	})
}

func TestServer_DetectImageHandler_PipelineError(t *testing.T) {
	s := newMockServer(t, &mockPipeline{imageErr: errors.New("detector exploded")}, Config{})

	w := httptest.NewRecorder()
	s.detectImageHandler(w, imageUpload(t, nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp DetectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "detector exploded")
}

func TestServer_DetectImageHandler_RealPipeline(t *testing.T) {
	s := newRealServer(t, Config{})
	scene := testutil.MixedScene()
	data := testutil.EncodePNG(t, scene.Render())

	w := httptest.NewRecorder()
	s.detectImageHandler(w, newUploadRequest(t, "/detect/image", "image", "mixed.png", data, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp DetectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result)
	types := make([]string, 0, len(resp.Result.Shapes))
	for _, sh := range resp.Result.Shapes {
		types = append(types, string(sh.Type))
	}
	assert.Equal(t, scene.ExpectedTypes(), types)
	assert.Equal(t, len(types), resp.Summary.Shapes)
}

func TestServer_DetectImageHandler_ThresholdOverride(t *testing.T) {
	s := newRealServer(t, Config{})
	data := testutil.EncodePNG(t, testutil.MixedScene().Render())

	// Threshold 0 classifies no pixel as foreground.
	w := httptest.NewRecorder()
	s.detectImageHandler(w, newUploadRequest(t, "/detect/image", "image", "mixed.png", data,
		map[string]string{"threshold": "0"}))
	require.Equal(t, http.StatusOK, w.Code)

	var resp DetectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Result.Shapes)
	assert.Equal(t, 1, s.pipelines.Len())
}
