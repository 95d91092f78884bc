package detector

import (
	"math"
	"sort"

	"github.com/MeKo-Tech/shapedetect/internal/utils"
)

// Fixed per-type confidences for polygon matches.
const (
	triangleConfidence  = 0.9
	rectangleConfidence = 0.9
	pentagonConfidence  = 0.85
	starConfidence      = 0.9

	minConfidence = 0.5
	maxConfidence = 1.0

	starPoints = 5
)

// Circularity is the Polsby-Popper compactness 4π·area/perimeter².
// It returns 0 for a zero perimeter.
func Circularity(area int, perimeter float64) float64 {
	if perimeter <= 0 {
		return 0
	}
	return 4 * math.Pi * float64(area) / (perimeter * perimeter)
}

// IsStar reports whether a 10-vertex outline has a pronounced gap between its
// five inner and five outer radii, measured from the blob centroid.
func IsStar(vertices []utils.Point, centroid Center, maxRatio float64) bool {
	if len(vertices) < 2*starPoints {
		return false
	}
	c := utils.Point{X: centroid.X, Y: centroid.Y}
	dists := make([]float64, len(vertices))
	for i, v := range vertices {
		dists[i] = utils.Distance(v, c)
	}
	sort.Float64s(dists)

	inner := mean(dists[:starPoints])
	outer := mean(dists[len(dists)-starPoints:])
	if outer == 0 {
		return false
	}
	return inner/outer < maxRatio
}

// Classify assigns a shape type to a blob from its simplified vertices and
// traced contour. Rules are tried in priority order and the first match wins:
// circle, triangle, rectangle, pentagon, star. The boolean is false when no
// rule matches.
func Classify(vertices, contour []utils.Point, blob Blob, cfg Config) (DetectedShape, bool) {
	circularity := Circularity(blob.Area, utils.ClosedPerimeter(contour))

	var (
		shape      ShapeType
		confidence float64
	)
	switch n := len(vertices); {
	case circularity > cfg.CircularityThreshold:
		shape, confidence = ShapeCircle, circularity
	case n == 3:
		shape, confidence = ShapeTriangle, triangleConfidence
	case n == 4:
		shape, confidence = ShapeRectangle, rectangleConfidence
	case n == 5:
		shape, confidence = ShapePentagon, pentagonConfidence
	case n == 2*starPoints && IsStar(vertices, blob.Centroid, cfg.StarRatio):
		shape, confidence = ShapeStar, starConfidence
	default:
		return DetectedShape{}, false
	}

	return DetectedShape{
		Type:        shape,
		Confidence:  clamp(confidence, minConfidence, maxConfidence),
		BoundingBox: blob.Bounds,
		Center:      blob.Centroid,
		Area:        float64(blob.Area),
	}, true
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
