package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// ToJSON serializes results to pretty JSON. A single result is written as an
// object, several as an array.
func ToJSON(results ...*ImageResult) (string, error) {
	var v interface{} = results
	if len(results) == 1 {
		if results[0] == nil {
			return "", errors.New("nil result")
		}
		v = results[0]
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToYAML serializes results to YAML with the same layout as ToJSON.
func ToYAML(results ...*ImageResult) (string, error) {
	var v interface{} = results
	if len(results) == 1 {
		if results[0] == nil {
			return "", errors.New("nil result")
		}
		v = results[0]
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// csvHeader is the column layout written by ToCSV.
var csvHeader = []string{
	"source", "page", "type", "confidence", "x", "y", "width", "height", "center_x", "center_y", "area",
}

// ToCSV writes one row per detected shape with a header. precision controls
// the number of decimals for confidence and coordinates.
func ToCSV(precision int, results ...*ImageResult) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return "", err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', precision, 64) }
	for _, res := range results {
		if res == nil {
			return "", errors.New("nil result")
		}
		for _, s := range res.Shapes {
			row := []string{
				res.Source,
				strconv.Itoa(res.Page),
				string(s.Type),
				f(s.Confidence),
				strconv.Itoa(s.BoundingBox.X),
				strconv.Itoa(s.BoundingBox.Y),
				strconv.Itoa(s.BoundingBox.Width),
				strconv.Itoa(s.BoundingBox.Height),
				f(s.Center.X),
				f(s.Center.Y),
				strconv.FormatFloat(s.Area, 'f', 0, 64),
			}
			if err := w.Write(row); err != nil {
				return "", err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ToPlainText renders a human-readable report, one line per shape.
func ToPlainText(precision int, results ...*ImageResult) (string, error) {
	title := cases.Title(language.English)
	var sb strings.Builder
	for i, res := range results {
		if res == nil {
			return "", errors.New("nil result")
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		header := res.Source
		if header == "" {
			header = "image"
		}
		if res.Page > 0 {
			header = fmt.Sprintf("%s (page %d)", header, res.Page)
		}
		fmt.Fprintf(&sb, "%s: %dx%d, %d shapes in %.2fms\n",
			header, res.Width, res.Height, len(res.Shapes), res.ProcessingTimeMs())
		for j, s := range res.Shapes {
			fmt.Fprintf(&sb, "  %d. %-9s confidence %.*f at (%.*f, %.*f) box %dx%d+%d+%d area %.0f\n",
				j+1, title.String(string(s.Type)),
				precision, s.Confidence,
				precision, s.Center.X, precision, s.Center.Y,
				s.BoundingBox.Width, s.BoundingBox.Height, s.BoundingBox.X, s.BoundingBox.Y,
				s.Area)
		}
	}
	return sb.String(), nil
}

// Format renders results in one of the supported output formats:
// json, yaml, csv or text.
func Format(format string, precision int, results ...*ImageResult) (string, error) {
	switch strings.ToLower(format) {
	case "json":
		return ToJSON(results...)
	case "yaml", "yml":
		return ToYAML(results...)
	case "csv":
		return ToCSV(precision, results...)
	case "text", "":
		return ToPlainText(precision, results...)
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

// SortShapesTopLeft sorts shapes by bounding box top (y, then x).
func SortShapesTopLeft(res *ImageResult) {
	if res == nil {
		return
	}
	sort.SliceStable(res.Shapes, func(i, j int) bool {
		a, b := res.Shapes[i].BoundingBox, res.Shapes[j].BoundingBox
		if a.Y == b.Y {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
}

// ValidateImageResult checks the invariants every detection result holds:
// boxes inside the image, confidence in [0.5, 1] and centers inside their box.
func ValidateImageResult(res *ImageResult) error {
	if res == nil {
		return errors.New("nil result")
	}
	if res.Width <= 0 || res.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", res.Width, res.Height)
	}
	for i, s := range res.Shapes {
		b := s.BoundingBox
		if b.Width <= 0 || b.Height <= 0 {
			return fmt.Errorf("shape %d has non-positive size", i)
		}
		if b.X < 0 || b.Y < 0 || b.X+b.Width > res.Width || b.Y+b.Height > res.Height {
			return fmt.Errorf("shape %d bounding box outside image", i)
		}
		if s.Confidence < 0.5 || s.Confidence > 1 {
			return fmt.Errorf("shape %d confidence %.3f out of range", i, s.Confidence)
		}
		if s.Center.X < float64(b.X) || s.Center.X > float64(b.X+b.Width-1) ||
			s.Center.Y < float64(b.Y) || s.Center.Y > float64(b.Y+b.Height-1) {
			return fmt.Errorf("shape %d center outside its bounding box", i)
		}
	}
	return nil
}

// Summarize counts shapes by type and averages their confidence.
func Summarize(results ...*ImageResult) Summary {
	s := Summary{ByType: make(map[string]int)}
	var confSum float64
	for _, res := range results {
		if res == nil {
			continue
		}
		s.Images++
		s.TotalProcessingMs += res.ProcessingTimeMs()
		for _, shape := range res.Shapes {
			s.Shapes++
			s.ByType[string(shape.Type)]++
			confSum += shape.Confidence
		}
	}
	if s.Shapes > 0 {
		s.AverageConfidence = confSum / float64(s.Shapes)
	}
	return s
}
