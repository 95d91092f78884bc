package server

import (
	"bytes"
	"context"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/shapedetect/internal/detector"
	"github.com/MeKo-Tech/shapedetect/internal/pdf"
	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
	"github.com/MeKo-Tech/shapedetect/internal/testutil"
)

// mockPipeline returns canned results and records its inputs.
type mockPipeline struct {
	mu sync.Mutex

	imageErr  error
	pdfResult *pipeline.PDFResult
	pdfErr    error

	imageCalls int
	pdfFile    string
	pdfPages   string
	pdfCreds   *pdf.Credentials
	closed     bool
}

func (m *mockPipeline) ProcessImageContext(_ context.Context, img image.Image) (*pipeline.ImageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imageCalls++
	if m.imageErr != nil {
		return nil, m.imageErr
	}
	b := img.Bounds()
	return mockImageResult(b.Dx(), b.Dy()), nil
}

func (m *mockPipeline) ProcessPDFContext(_ context.Context, filename, pageRange string, creds *pdf.Credentials) (*pipeline.PDFResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pdfFile = filename
	m.pdfPages = pageRange
	m.pdfCreds = creds
	if m.pdfErr != nil {
		return nil, m.pdfErr
	}
	if m.pdfResult != nil {
		return m.pdfResult, nil
	}
	return mockPDFResult(filename), nil
}

func (m *mockPipeline) Info() map[string]interface{} {
	return map[string]interface{}{"detector": "mock"}
}

func (m *mockPipeline) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func mockImageResult(w, h int) *pipeline.ImageResult {
	return &pipeline.ImageResult{DetectionResult: detector.DetectionResult{
		Width:  w,
		Height: h,
		Shapes: []detector.DetectedShape{
			{
				Type:        detector.ShapeRectangle,
				Confidence:  0.9,
				BoundingBox: detector.BoundingBox{X: 2, Y: 2, Width: 10, Height: 6},
				Center:      detector.Center{X: 6.5, Y: 4.5},
				Area:        60,
			},
			{
				Type:        detector.ShapeCircle,
				Confidence:  0.8,
				BoundingBox: detector.BoundingBox{X: 14, Y: 2, Width: 8, Height: 8},
				Center:      detector.Center{X: 17.5, Y: 5.5},
				Area:        50,
			},
		},
	}}
}

func mockPDFResult(filename string) *pipeline.PDFResult {
	img := mockImageResult(40, 30)
	img.Source = filename
	img.Page = 1
	return &pipeline.PDFResult{
		Filename:   filename,
		TotalPages: 1,
		Pages: []pipeline.PDFPageResult{
			{PageNumber: 1, Images: []*pipeline.ImageResult{img}, ShapeCount: len(img.Shapes)},
		},
	}
}

// newMockServer builds a server around m with the given config.
func newMockServer(t *testing.T, m *mockPipeline, cfg Config) *Server {
	t.Helper()
	s, err := newServer(m, pipeline.DefaultConfig(), cfg)
	require.NoError(t, err)
	return s
}

// newRealServer builds a server with a real detection pipeline.
func newRealServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newUploadRequest creates a multipart POST with one file field.
func newUploadRequest(t *testing.T, path, field, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if field != "" {
		part, err := writer.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func imageUpload(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()
	data := testutil.EncodePNG(t, testutil.NewCanvas(40, 30))
	return newUploadRequest(t, "/detect/image", "image", "canvas.png", data, fields)
}

func pdfUpload(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()
	return newUploadRequest(t, "/detect/pdf", "pdf", "doc.pdf", []byte(testutil.MinimalPDF), fields)
}
