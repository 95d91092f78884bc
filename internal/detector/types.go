package detector

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
)

// ShapeType tags the geometric class assigned to a blob.
type ShapeType string

// Supported shape types.
const (
	ShapeCircle    ShapeType = "circle"
	ShapeTriangle  ShapeType = "triangle"
	ShapeRectangle ShapeType = "rectangle"
	ShapePentagon  ShapeType = "pentagon"
	ShapeStar      ShapeType = "star"
)

// AllShapeTypes lists the shape types in classification priority order.
var AllShapeTypes = []ShapeType{ShapeCircle, ShapeTriangle, ShapeRectangle, ShapePentagon, ShapeStar}

// ErrInvalidBuffer is returned when a pixel buffer's dimensions do not match its data.
var ErrInvalidBuffer = errors.New("invalid pixel buffer")

// PixelBuffer is a row-major RGBA image, 4 bytes per pixel.
// The detector only reads it.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewPixelBuffer validates the dimensions against the data length.
func NewPixelBuffer(width, height int, pix []uint8) (*PixelBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: non-positive size %dx%d", ErrInvalidBuffer, width, height)
	}
	if len(pix) != width*height*4 {
		return nil, fmt.Errorf("%w: expected %d bytes for %dx%d, got %d",
			ErrInvalidBuffer, width*height*4, width, height, len(pix))
	}
	return &PixelBuffer{Width: width, Height: height, Pix: pix}, nil
}

// FromImage converts any image into a non-premultiplied RGBA buffer.
func FromImage(img image.Image) *PixelBuffer {
	if img == nil {
		return nil
	}
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	return &PixelBuffer{Width: b.Dx(), Height: b.Dy(), Pix: nrgba.Pix}
}

// RGBA returns the channels of the pixel at (x, y).
func (p *PixelBuffer) RGBA(x, y int) (r, g, b, a uint8) {
	i := (y*p.Width + x) * 4
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2], p.Pix[i+3]
}

// BinaryGrid marks foreground pixels in row-major order.
type BinaryGrid struct {
	Width  int
	Height int
	Cells  []bool
}

// At reports whether (x, y) is an in-bounds foreground pixel.
func (g *BinaryGrid) At(x, y int) bool {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return false
	}
	return g.Cells[y*g.Width+x]
}

// BoundingBox is an axis-aligned box in pixel units.
type BoundingBox struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Rect converts the box into an image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Center is a sub-pixel coordinate.
type Center struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Blob is one 8-connected foreground component.
type Blob struct {
	ID       int
	Pixels   []image.Point
	Area     int
	Bounds   BoundingBox
	Centroid Center
}

// DetectedShape is the classification record for a single blob.
type DetectedShape struct {
	Type        ShapeType   `json:"type" yaml:"type"`
	Confidence  float64     `json:"confidence" yaml:"confidence"`
	BoundingBox BoundingBox `json:"boundingBox" yaml:"boundingBox"`
	Center      Center      `json:"center" yaml:"center"`
	Area        float64     `json:"area" yaml:"area"`
}

// DetectionResult is the output of one detection call.
type DetectionResult struct {
	Shapes         []DetectedShape `json:"shapes" yaml:"shapes"`
	ProcessingTime time.Duration   `json:"-" yaml:"-"`
	Width          int             `json:"width" yaml:"width"`
	Height         int             `json:"height" yaml:"height"`
}

// ProcessingTimeMs returns the elapsed time in milliseconds.
func (r DetectionResult) ProcessingTimeMs() float64 {
	return float64(r.ProcessingTime) / float64(time.Millisecond)
}

type detectionResultJSON struct {
	Shapes           []DetectedShape `json:"shapes"`
	ProcessingTimeMs float64         `json:"processingTimeMs"`
	Width            int             `json:"width"`
	Height           int             `json:"height"`
}

// MarshalJSON encodes the processing time as fractional milliseconds.
func (r DetectionResult) MarshalJSON() ([]byte, error) {
	shapes := r.Shapes
	if shapes == nil {
		shapes = []DetectedShape{}
	}
	return json.Marshal(detectionResultJSON{
		Shapes:           shapes,
		ProcessingTimeMs: r.ProcessingTimeMs(),
		Width:            r.Width,
		Height:           r.Height,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *DetectionResult) UnmarshalJSON(data []byte) error {
	var aux detectionResultJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Shapes = aux.Shapes
	r.ProcessingTime = time.Duration(aux.ProcessingTimeMs * float64(time.Millisecond))
	r.Width = aux.Width
	r.Height = aux.Height
	return nil
}
