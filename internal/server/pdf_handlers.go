package server

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/shapedetect/internal/pdf"
	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
)

// detectPDFHandler handles POST /detect/pdf with a multipart "pdf" field.
// Optional fields: pages, password, owner_password, threshold, epsilon, format.
func (s *Server) detectPDFHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.parseUpload(w, r) {
		return
	}

	file, header, err := r.FormFile("pdf")
	if err != nil {
		s.writeErrorResponse(w, "No PDF file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	opts, err := parseDetectionOptions(r.FormValue)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	outFormat := requestFormat(r)
	if !validPDFFormat(outFormat) {
		s.writeErrorResponse(w, "Unsupported format: "+outFormat, http.StatusBadRequest)
		return
	}

	tmpPath, err := saveUpload(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to store upload: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer func() { _ = os.Remove(tmpPath) }()

	pl, err := s.pipelineFor(opts)
	if err != nil {
		s.writeErrorResponse(w, "Invalid detection options: "+err.Error(), http.StatusBadRequest)
		return
	}

	creds := &pdf.Credentials{
		UserPassword:  r.FormValue("password"),
		OwnerPassword: r.FormValue("owner_password"),
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	start := time.Now()
	res, err := pl.ProcessPDFContext(ctx, tmpPath, r.FormValue("pages"), creds)
	if err != nil {
		recordFailure("pdf")
		slog.Error("PDF detection failed", "file", header.Filename, "error", err)
		s.writeErrorResponse(w, "Detection failed: "+err.Error(), pdfStatus(err))
		return
	}
	relabelPDF(res, header.Filename)
	recordDetection("pdf", time.Since(start).Seconds(), res.Images()...)

	switch outFormat {
	case formatJSON:
		summary := pipeline.Summarize(res.Images()...)
		s.writeJSON(w, http.StatusOK, PDFResponse{Success: true, Result: res, Summary: &summary})
	default:
		s.writeFormatted(w, outFormat, res.Images()...)
	}
}

func validPDFFormat(format string) bool {
	switch format {
	case formatJSON, formatCSV, formatText, formatYAML:
		return true
	}
	return false
}

func pdfStatus(err error) int {
	switch {
	case strings.Contains(err.Error(), "invalid page range"):
		return http.StatusBadRequest
	case pdf.IsPasswordError(err):
		return http.StatusUnauthorized
	default:
		return detectionStatus(err)
	}
}

// relabelPDF replaces the temporary file path with the upload name.
func relabelPDF(res *pipeline.PDFResult, name string) {
	res.Filename = name
	for _, img := range res.Images() {
		img.Source = name
	}
}

// saveUpload copies r to a temporary .pdf file and returns its path.
func saveUpload(r io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "shapedetect-upload-*.pdf")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return filepath.Clean(tmp.Name()), nil
}
