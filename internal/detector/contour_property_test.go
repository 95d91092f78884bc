package detector

import (
	"image"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/MeKo-Tech/shapedetect/internal/utils"
)

func chebyshev(a, b utils.Point) float64 {
	return math.Max(math.Abs(a.X-b.X), math.Abs(a.Y-b.Y))
}

func TestTraceContour_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("consecutive contour points are 8-neighbors inside the blob", prop.ForAll(
		func(g *BinaryGrid) bool {
			for _, b := range ExtractBlobs(g) {
				members := make(map[image.Point]bool, len(b.Pixels))
				for _, p := range b.Pixels {
					members[p] = true
				}
				pts, closed := traceContour(b, g)
				if len(pts) == 0 {
					return false
				}
				sx, sy := findStartPixel(b)
				if pts[0] != (utils.Point{X: float64(sx), Y: float64(sy)}) {
					return false
				}
				for i, p := range pts {
					if !members[image.Pt(int(p.X), int(p.Y))] {
						return false
					}
					if i > 0 && chebyshev(pts[i-1], p) != 1 {
						return false
					}
				}
				if closed && len(pts) > 1 && chebyshev(pts[len(pts)-1], pts[0]) != 1 {
					return false
				}
				if b.Area > 1 && len(pts) < 2 {
					return false
				}
			}
			return true
		},
		genGrid(),
	))

	properties.Property("solid rectangles trace their full perimeter", prop.ForAll(
		func(w, h int) bool {
			grid := rectGrid(w+2, h+2, image.Rect(1, 1, 1+w, 1+h))
			blobs := ExtractBlobs(grid)
			if len(blobs) != 1 {
				return false
			}
			pts, closed := traceContour(blobs[0], grid)
			return closed && len(pts) == 2*(w+h)-4
		},
		gen.IntRange(2, 30),
		gen.IntRange(2, 30),
	))

	properties.TestingRun(t)
}
