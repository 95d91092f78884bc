package support

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/shapedetect/internal/server"
)

// HTTPTestServerWrapper runs a real detection server behind httptest.
type HTTPTestServerWrapper struct {
	Server *httptest.Server
	app    *server.Server
	client *http.Client
}

// NewHTTPTestServer starts a server with default detection settings. A
// positive requestsPerMinute enables the rate limiter.
func NewHTTPTestServer(requestsPerMinute int) (*HTTPTestServerWrapper, error) {
	cfg := server.Config{
		CORSOrigin:     "*",
		MaxUploadMB:    10,
		TimeoutSec:     30,
		OverlayEnabled: true,
	}
	if requestsPerMinute > 0 {
		cfg.RateLimit = server.RateLimitConfig{Enabled: true, RequestsPerMinute: requestsPerMinute}
	}

	app, err := server.NewServer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	return &HTTPTestServerWrapper{
		Server: httptest.NewServer(app.Handler()),
		app:    app,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// URL returns the base URL of the test server.
func (w *HTTPTestServerWrapper) URL() string {
	return w.Server.URL
}

// Close stops the listener and releases the pipelines.
func (w *HTTPTestServerWrapper) Close() {
	w.Server.Close()
	_ = w.app.Close()
}

// Get issues a GET request against path.
func (w *HTTPTestServerWrapper) Get(path string) (*http.Response, error) {
	return w.client.Get(w.URL() + path)
}

// PostFile uploads the file at filePath as the multipart field.
func (w *HTTPTestServerWrapper) PostFile(path, field, filePath string, values map[string]string) (*http.Response, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: scenario temp file
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filepath.Base(filePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	for k, v := range values {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, w.URL()+path, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return w.client.Do(req)
}

func (testCtx *TestContext) stopHTTPServer() {
	if testCtx.HTTPServer != nil {
		testCtx.HTTPServer.Close()
		testCtx.HTTPServer = nil
	}
}
