package server

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
	"github.com/MeKo-Tech/shapedetect/internal/utils"
)

// detectImageHandler handles POST /detect/image with a multipart "image" field.
func (s *Server) detectImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.parseUpload(w, r) {
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	img, format, err := s.decodeUpload(file)
	if err != nil {
		recordFailure("image")
		s.writeErrorResponse(w, "Failed to decode image: "+err.Error(), decodeStatus(err))
		return
	}

	opts, err := parseDetectionOptions(r.FormValue)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	outFormat := requestFormat(r)
	if !validImageFormat(outFormat) {
		s.writeErrorResponse(w, "Unsupported format: "+outFormat, http.StatusBadRequest)
		return
	}
	if outFormat == formatOverlay && !s.overlayEnabled {
		s.writeErrorResponse(w, "Overlay rendering is disabled", http.StatusForbidden)
		return
	}

	pl, err := s.pipelineFor(opts)
	if err != nil {
		s.writeErrorResponse(w, "Invalid detection options: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	start := time.Now()
	res, err := pl.ProcessImageContext(ctx, img)
	if err != nil {
		recordFailure("image")
		slog.Error("Image detection failed", "file", header.Filename, "error", err)
		s.writeErrorResponse(w, "Detection failed: "+err.Error(), detectionStatus(err))
		return
	}
	res.Source = header.Filename
	recordDetection("image", time.Since(start).Seconds(), res)

	slog.Debug("Detected shapes",
		"file", header.Filename,
		"format", format,
		"shapes", len(res.Shapes),
		"duration_ms", res.ProcessingTimeMs())

	switch outFormat {
	case formatOverlay:
		s.writeOverlay(w, r, img, res)
	case formatJSON:
		summary := pipeline.Summarize(res)
		s.writeJSON(w, http.StatusOK, DetectResponse{Success: true, Result: res, Summary: &summary})
	default:
		s.writeFormatted(w, outFormat, res)
	}
}

func validImageFormat(format string) bool {
	switch format {
	case formatJSON, formatCSV, formatText, formatYAML, formatOverlay:
		return true
	}
	return false
}

// writeFormatted renders results with pipeline.Format and the matching content type.
func (s *Server) writeFormatted(w http.ResponseWriter, format string, results ...*pipeline.ImageResult) {
	out, err := pipeline.Format(format, s.precision, results...)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", contentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

func contentType(format string) string {
	switch format {
	case formatCSV:
		return "text/csv; charset=utf-8"
	case formatYAML:
		return "application/yaml"
	case formatOverlay:
		return "image/png"
	default:
		return "text/plain; charset=utf-8"
	}
}

// writeOverlay responds with a PNG of the image annotated with the detections.
// "box_color" and "marker_color" form values override the configured colors.
func (s *Server) writeOverlay(w http.ResponseWriter, r *http.Request, img image.Image, res *pipeline.ImageResult) {
	box, err := s.overlayColor(r.FormValue("box_color"), s.overlayBoxColor)
	if err != nil {
		s.writeErrorResponse(w, "Invalid box_color: "+err.Error(), http.StatusBadRequest)
		return
	}
	marker, err := s.overlayColor(r.FormValue("marker_color"), s.overlayMarkerColor)
	if err != nil {
		s.writeErrorResponse(w, "Invalid marker_color: "+err.Error(), http.StatusBadRequest)
		return
	}

	overlay := pipeline.RenderOverlay(img, res, box, marker)
	var buf bytes.Buffer
	if err := png.Encode(&buf, overlay); err != nil {
		s.writeErrorResponse(w, "Failed to encode overlay: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType(formatOverlay))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// overlayColor parses value, falling back to fallback and then to the
// renderer's default (nil).
func (s *Server) overlayColor(value, fallback string) (color.Color, error) {
	if value == "" {
		value = fallback
	}
	if value == "" {
		return nil, nil
	}
	return utils.ParseHexColor(value)
}
