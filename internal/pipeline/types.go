package pipeline

import (
	"encoding/json"
	"time"

	"github.com/MeKo-Tech/shapedetect/internal/detector"
)

// ImageResult is the detection result for one image plus where it came from.
type ImageResult struct {
	detector.DetectionResult

	// Source is the file path or upload name, if known.
	Source string
	// Page is the 1-based PDF page number, 0 for plain images.
	Page int
	// ImageIndex is the position of the image on its PDF page.
	ImageIndex int
}

// imageResultDoc is the serialized form shared by JSON and YAML output.
type imageResultDoc struct {
	Source           string                   `json:"source,omitempty" yaml:"source,omitempty"`
	Page             int                      `json:"page,omitempty" yaml:"page,omitempty"`
	ImageIndex       int                      `json:"imageIndex,omitempty" yaml:"imageIndex,omitempty"`
	Width            int                      `json:"width" yaml:"width"`
	Height           int                      `json:"height" yaml:"height"`
	ProcessingTimeMs float64                  `json:"processingTimeMs" yaml:"processingTimeMs"`
	Shapes           []detector.DetectedShape `json:"shapes" yaml:"shapes"`
}

func (r *ImageResult) doc() imageResultDoc {
	shapes := r.Shapes
	if shapes == nil {
		shapes = []detector.DetectedShape{}
	}
	return imageResultDoc{
		Source:           r.Source,
		Page:             r.Page,
		ImageIndex:       r.ImageIndex,
		Width:            r.Width,
		Height:           r.Height,
		ProcessingTimeMs: r.ProcessingTimeMs(),
		Shapes:           shapes,
	}
}

// MarshalJSON flattens the embedded detection result next to the metadata.
func (r ImageResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.doc())
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *ImageResult) UnmarshalJSON(data []byte) error {
	var aux imageResultDoc
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Source = aux.Source
	r.Page = aux.Page
	r.ImageIndex = aux.ImageIndex
	r.Width = aux.Width
	r.Height = aux.Height
	r.Shapes = aux.Shapes
	r.ProcessingTime = time.Duration(aux.ProcessingTimeMs * float64(time.Millisecond))
	return nil
}

// MarshalYAML uses the same field layout as the JSON encoding.
func (r ImageResult) MarshalYAML() (interface{}, error) {
	return r.doc(), nil
}

// PDFPageResult groups the results of all images embedded on one page.
type PDFPageResult struct {
	PageNumber int            `json:"pageNumber" yaml:"pageNumber"`
	Images     []*ImageResult `json:"images" yaml:"images"`
	ShapeCount int            `json:"shapeCount" yaml:"shapeCount"`
}

// PDFResult is the outcome of processing a PDF document.
type PDFResult struct {
	Filename     string          `json:"filename" yaml:"filename"`
	TotalPages   int             `json:"totalPages" yaml:"totalPages"`
	Pages        []PDFPageResult `json:"pages" yaml:"pages"`
	ExtractionMs float64         `json:"extractionMs" yaml:"extractionMs"`
	TotalMs      float64         `json:"totalMs" yaml:"totalMs"`
}

// Images flattens every per-image result in page order.
func (r *PDFResult) Images() []*ImageResult {
	if r == nil {
		return nil
	}
	var out []*ImageResult
	for _, p := range r.Pages {
		out = append(out, p.Images...)
	}
	return out
}

// Summary aggregates shape counts over a set of results.
type Summary struct {
	Images            int            `json:"images" yaml:"images"`
	Shapes            int            `json:"shapes" yaml:"shapes"`
	ByType            map[string]int `json:"byType" yaml:"byType"`
	AverageConfidence float64        `json:"averageConfidence" yaml:"averageConfidence"`
	TotalProcessingMs float64        `json:"totalProcessingMs" yaml:"totalProcessingMs"`
}
