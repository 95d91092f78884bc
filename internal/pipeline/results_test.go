package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/shapedetect/internal/detector"
)

func sampleResult() *ImageResult {
	return &ImageResult{
		DetectionResult: detector.DetectionResult{
			Width:          200,
			Height:         100,
			ProcessingTime: 1500 * time.Microsecond,
			Shapes: []detector.DetectedShape{
				{
					Type:        detector.ShapeCircle,
					Confidence:  0.934,
					BoundingBox: detector.BoundingBox{X: 120, Y: 10, Width: 61, Height: 61},
					Center:      detector.Center{X: 150, Y: 40},
					Area:        2821,
				},
				{
					Type:        detector.ShapeRectangle,
					Confidence:  0.9,
					BoundingBox: detector.BoundingBox{X: 10, Y: 10, Width: 60, Height: 40},
					Center:      detector.Center{X: 39.5, Y: 29.5},
					Area:        2400,
				},
			},
		},
		Source: "scene.png",
	}
}

func TestToJSON_Single(t *testing.T) {
	out, err := ToJSON(sampleResult())
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &raw))
	assert.Equal(t, "scene.png", raw["source"])
	assert.InDelta(t, 1.5, raw["processingTimeMs"], 1e-9)
	assert.NotContains(t, raw, "page", "zero page is omitted")
	shapes, ok := raw["shapes"].([]interface{})
	require.True(t, ok)
	assert.Len(t, shapes, 2)
	first, ok := shapes[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "circle", first["type"])
	assert.Contains(t, first, "boundingBox")
}

func TestToJSON_RoundTrip(t *testing.T) {
	in := sampleResult()
	in.Page = 3
	in.ImageIndex = 1
	out, err := ToJSON(in)
	require.NoError(t, err)

	var back ImageResult
	require.NoError(t, json.Unmarshal([]byte(out), &back))
	assert.Equal(t, in.Source, back.Source)
	assert.Equal(t, 3, back.Page)
	assert.Equal(t, 1, back.ImageIndex)
	assert.Equal(t, in.Shapes, back.Shapes)
	assert.Equal(t, in.ProcessingTime, back.ProcessingTime)
}

func TestToJSON_Multiple(t *testing.T) {
	empty := &ImageResult{DetectionResult: detector.DetectionResult{Width: 5, Height: 5}}
	out, err := ToJSON(sampleResult(), empty)
	require.NoError(t, err)

	var raw []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &raw))
	require.Len(t, raw, 2)
	assert.Equal(t, []interface{}{}, raw[1]["shapes"], "nil shapes encode as an empty list")
}

func TestToJSON_Nil(t *testing.T) {
	_, err := ToJSON(nil)
	require.Error(t, err)
}

func TestToYAML(t *testing.T) {
	out, err := ToYAML(sampleResult())
	require.NoError(t, err)
	assert.Contains(t, out, "source: scene.png")
	assert.Contains(t, out, "processingTimeMs: 1.5")
	assert.Contains(t, out, "type: circle")
	assert.Contains(t, out, "boundingBox:")

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	shapes, ok := doc["shapes"].([]interface{})
	require.True(t, ok)
	assert.Len(t, shapes, 2)

	multi, err := ToYAML(sampleResult(), sampleResult())
	require.NoError(t, err)
	var docs []map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(multi), &docs))
	assert.Len(t, docs, 2)
}

func TestToCSV(t *testing.T) {
	res := sampleResult()
	res.Page = 2
	out, err := ToCSV(2, res)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		"scene.png", "2", "circle", "0.93", "120", "10", "61", "61", "150.00", "40.00", "2821",
	}, rows[1])
	assert.Equal(t, "rectangle", rows[2][2])
	assert.Equal(t, "39.50", rows[2][8])
}

func TestToCSV_HeaderOnlyForNoShapes(t *testing.T) {
	out, err := ToCSV(2, &ImageResult{})
	require.NoError(t, err)
	assert.Equal(t, strings.Join(csvHeader, ",")+"\n", out)
}

func TestToPlainText(t *testing.T) {
	res := sampleResult()
	res.Page = 4
	out, err := ToPlainText(1, res)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "scene.png (page 4): 200x100, 2 shapes in 1.50ms", lines[0])
	assert.Contains(t, lines[1], "1. Circle")
	assert.Contains(t, lines[1], "confidence 0.9")
	assert.Contains(t, lines[1], "at (150.0, 40.0)")
	assert.Contains(t, lines[1], "box 61x61+120+10")
	assert.Contains(t, lines[2], "2. Rectangle")
}

func TestToPlainText_UnnamedImage(t *testing.T) {
	out, err := ToPlainText(2, &ImageResult{DetectionResult: detector.DetectionResult{Width: 3, Height: 4}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "image: 3x4, 0 shapes"))
}

func TestFormat(t *testing.T) {
	res := sampleResult()
	for _, f := range []string{"json", "JSON", "yaml", "yml", "csv", "text", ""} {
		out, err := Format(f, 2, res)
		require.NoError(t, err, f)
		assert.NotEmpty(t, out, f)
	}
	_, err := Format("xml", 2, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestSortShapesTopLeft(t *testing.T) {
	res := sampleResult()
	res.Shapes = append(res.Shapes, detector.DetectedShape{
		Type:        detector.ShapeStar,
		BoundingBox: detector.BoundingBox{X: 5, Y: 50, Width: 10, Height: 10},
	})
	SortShapesTopLeft(res)
	assert.Equal(t, detector.ShapeRectangle, res.Shapes[0].Type)
	assert.Equal(t, detector.ShapeCircle, res.Shapes[1].Type)
	assert.Equal(t, detector.ShapeStar, res.Shapes[2].Type)

	assert.NotPanics(t, func() { SortShapesTopLeft(nil) })
}

func TestValidateImageResult(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *ImageResult)
		wantErr string
	}{
		{"valid", func(*ImageResult) {}, ""},
		{"zero size", func(r *ImageResult) { r.Width = 0 }, "invalid image size"},
		{"empty box", func(r *ImageResult) { r.Shapes[0].BoundingBox.Width = 0 }, "non-positive size"},
		{"box outside", func(r *ImageResult) { r.Shapes[0].BoundingBox.X = 190 }, "outside image"},
		{"low confidence", func(r *ImageResult) { r.Shapes[1].Confidence = 0.2 }, "confidence"},
		{"high confidence", func(r *ImageResult) { r.Shapes[1].Confidence = 1.2 }, "confidence"},
		{"center outside box", func(r *ImageResult) { r.Shapes[1].Center.X = 5 }, "center outside"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := sampleResult()
			tt.mutate(res)
			err := ValidateImageResult(res)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
	require.Error(t, ValidateImageResult(nil))
}

func TestSummarize(t *testing.T) {
	a := sampleResult()
	b := sampleResult()
	b.Shapes = b.Shapes[:1]

	s := Summarize(a, nil, b)
	assert.Equal(t, 2, s.Images)
	assert.Equal(t, 3, s.Shapes)
	assert.Equal(t, map[string]int{"circle": 2, "rectangle": 1}, s.ByType)
	assert.InDelta(t, (0.934*2+0.9)/3, s.AverageConfidence, 1e-9)
	assert.InDelta(t, 3.0, s.TotalProcessingMs, 1e-9)

	empty := Summarize()
	assert.Zero(t, empty.Shapes)
	assert.Zero(t, empty.AverageConfidence)
	assert.NotNil(t, empty.ByType)
}

func TestPDFResult_Images(t *testing.T) {
	var nilRes *PDFResult
	assert.Nil(t, nilRes.Images())

	r := &PDFResult{Pages: []PDFPageResult{
		{PageNumber: 1, Images: []*ImageResult{{Page: 1}}},
		{PageNumber: 3, Images: []*ImageResult{{Page: 3, ImageIndex: 0}, {Page: 3, ImageIndex: 1}}},
	}}
	imgs := r.Images()
	require.Len(t, imgs, 3)
	assert.Equal(t, 3, imgs[2].Page)
	assert.Equal(t, 1, imgs[2].ImageIndex)
}
