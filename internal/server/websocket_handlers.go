package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/shapedetect/internal/pdf"
	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketDetectRequest is a detection request sent as a text frame.
// Binary frames carry a raw encoded image and use server defaults.
type WebSocketDetectRequest struct {
	Type     string                 `json:"type"` // "image" or "pdf"
	Data     []byte                 `json:"data,omitempty"`
	Filename string                 `json:"filename,omitempty"`
	Pages    string                 `json:"pages,omitempty"`
	Password string                 `json:"password,omitempty"`
	Format   string                 `json:"format,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketDetectResponse is sent back for every request.
type WebSocketDetectResponse struct {
	Type      string            `json:"type"`
	Status    string            `json:"status"` // "processing", "completed", "error"
	Progress  float64           `json:"progress,omitempty"`
	Result    interface{}       `json:"result,omitempty"`
	Summary   *pipeline.Summary `json:"summary,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorType string            `json:"error_type,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// detectWebSocketHandler handles WebSocket connections for streaming detection.
func (s *Server) detectWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(r.Context(), conn)
}

// handleWebSocketConnection reads frames until the client disconnects.
func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(s.maxUploadMB << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go pingUntil(conn, done)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		websocketMessagesTotal.WithLabelValues("received").Inc()

		switch messageType {
		case websocket.TextMessage:
			s.handleWebSocketMessage(ctx, conn, data)
		case websocket.BinaryMessage:
			s.processWebSocketImage(ctx, conn, WebSocketDetectRequest{Type: "image", Data: data}, newRequestID())
		}
	}
}

// pingUntil sends keepalive pings until done is closed or a ping fails.
func pingUntil(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func newRequestID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}

// handleWebSocketMessage decodes a JSON request and dispatches it.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, data []byte) {
	var req WebSocketDetectRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}

	requestID := newRequestID()
	switch req.Type {
	case "image":
		s.processWebSocketImage(ctx, conn, req, requestID)
	case "pdf":
		s.processWebSocketPDF(ctx, conn, req, requestID)
	default:
		s.sendWebSocketError(conn, "invalid_request", "Unsupported request type: "+req.Type)
	}
}

// processWebSocketImage runs detection on one encoded image.
func (s *Server) processWebSocketImage(ctx context.Context, conn WebSocketConnWriter, req WebSocketDetectRequest, requestID string) {
	if len(req.Data) == 0 {
		s.sendWebSocketError(conn, "invalid_request", "No image data provided")
		return
	}
	format, ok := webSocketFormat(req.Format)
	if !ok {
		s.sendWebSocketError(conn, "invalid_request", "Unsupported format: "+req.Format)
		return
	}

	img, _, err := s.decodeUpload(bytes.NewReader(req.Data))
	if err != nil {
		recordFailure("websocket_image")
		s.sendWebSocketError(conn, "processing_error", fmt.Sprintf("Failed to decode image: %v", err))
		return
	}

	pl, err := s.webSocketPipeline(req.Options)
	if err != nil {
		s.sendWebSocketError(conn, "invalid_request", err.Error())
		return
	}

	s.sendWebSocketProcessing(conn, requestID, 0)

	ctx, cancel := s.timeoutContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := pl.ProcessImageContext(ctx, img)
	if err != nil {
		recordFailure("websocket_image")
		s.sendWebSocketError(conn, "processing_error", fmt.Sprintf("Detection failed: %v", err))
		return
	}
	res.Source = req.Filename
	recordDetection("websocket_image", time.Since(start).Seconds(), res)

	s.sendWebSocketResult(conn, requestID, format, res)
}

// processWebSocketPDF runs detection on an uploaded PDF document.
func (s *Server) processWebSocketPDF(ctx context.Context, conn WebSocketConnWriter, req WebSocketDetectRequest, requestID string) {
	if len(req.Data) == 0 {
		s.sendWebSocketError(conn, "invalid_request", "No PDF data provided")
		return
	}
	format, ok := webSocketFormat(req.Format)
	if !ok {
		s.sendWebSocketError(conn, "invalid_request", "Unsupported format: "+req.Format)
		return
	}

	pl, err := s.webSocketPipeline(req.Options)
	if err != nil {
		s.sendWebSocketError(conn, "invalid_request", err.Error())
		return
	}

	tmpPath, err := saveUpload(bytes.NewReader(req.Data))
	if err != nil {
		s.sendWebSocketError(conn, "processing_error", fmt.Sprintf("Failed to store upload: %v", err))
		return
	}
	defer func() { _ = os.Remove(tmpPath) }()

	s.sendWebSocketProcessing(conn, requestID, 0.2)

	ctx, cancel := s.timeoutContext(ctx)
	defer cancel()

	var creds *pdf.Credentials
	if req.Password != "" {
		creds = &pdf.Credentials{UserPassword: req.Password}
	}

	start := time.Now()
	res, err := pl.ProcessPDFContext(ctx, tmpPath, req.Pages, creds)
	if err != nil {
		recordFailure("websocket_pdf")
		s.sendWebSocketError(conn, "processing_error", fmt.Sprintf("PDF detection failed: %v", err))
		return
	}
	name := req.Filename
	if name == "" {
		name = "upload.pdf"
	}
	relabelPDF(res, name)
	recordDetection("websocket_pdf", time.Since(start).Seconds(), res.Images()...)

	if format == formatJSON {
		summary := pipeline.Summarize(res.Images()...)
		s.sendWebSocketResponse(conn, WebSocketDetectResponse{
			Type:      "detect_response",
			Status:    "completed",
			Progress:  1.0,
			Result:    res,
			Summary:   &summary,
			RequestID: requestID,
		})
		return
	}
	s.sendWebSocketResult(conn, requestID, format, res.Images()...)
}

// sendWebSocketResult sends the completed response. Non-JSON formats are
// rendered to a string result.
func (s *Server) sendWebSocketResult(conn WebSocketConnWriter, requestID, format string, results ...*pipeline.ImageResult) {
	summary := pipeline.Summarize(results...)
	response := WebSocketDetectResponse{
		Type:      "detect_response",
		Status:    "completed",
		Progress:  1.0,
		Summary:   &summary,
		RequestID: requestID,
	}

	switch {
	case format != formatJSON:
		out, err := pipeline.Format(format, s.precision, results...)
		if err != nil {
			s.sendWebSocketError(conn, "processing_error", err.Error())
			return
		}
		response.Result = out
	case len(results) == 1:
		response.Result = results[0]
	default:
		response.Result = results
	}
	s.sendWebSocketResponse(conn, response)
}

func webSocketFormat(format string) (string, bool) {
	switch format {
	case "":
		return formatJSON, true
	case "yml":
		return formatYAML, true
	case formatJSON, formatCSV, formatText, formatYAML:
		return format, true
	}
	return "", false
}

// webSocketPipeline resolves threshold and epsilon overrides from request options.
func (s *Server) webSocketPipeline(options map[string]interface{}) (detectionPipeline, error) {
	opts, err := parseDetectionOptions(func(key string) string {
		switch v := options[key].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case nil:
			return ""
		default:
			return fmt.Sprint(v)
		}
	})
	if err != nil {
		return nil, err
	}
	return s.pipelineFor(opts)
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketDetectResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

func (s *Server) sendWebSocketProcessing(conn WebSocketConnWriter, requestID string, progress float64) {
	s.sendWebSocketResponse(conn, WebSocketDetectResponse{
		Type:      "detect_response",
		Status:    "processing",
		Progress:  progress,
		RequestID: requestID,
	})
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketDetectResponse{
		Type:      "error",
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
	})
}
