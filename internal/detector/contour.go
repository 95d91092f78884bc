package detector

import "github.com/MeKo-Tech/shapedetect/internal/utils"

// Compass directions indexed clockwise from north: N, NE, E, SE, S, SW, W, NW.
var (
	dirDX = [8]int{0, 1, 1, 1, 0, -1, -1, -1}
	dirDY = [8]int{-1, -1, 0, 1, 1, 1, 0, -1}
)

// TraceContour follows the outer boundary of blob in grid using Moore-neighbor
// tracing and returns the visited boundary pixels in walk order. The start
// pixel is not repeated at the end.
func TraceContour(blob Blob, grid *BinaryGrid) []utils.Point {
	pts, _ := traceContour(blob, grid)
	return pts
}

// traceContour additionally reports whether the walk returned to its start.
// Degenerate blobs with no foreground neighbor stop after the first pixel.
func traceContour(blob Blob, grid *BinaryGrid) ([]utils.Point, bool) {
	if len(blob.Pixels) == 0 {
		return nil, false
	}
	sx, sy := findStartPixel(blob)
	pts := make([]utils.Point, 0, 4*(blob.Bounds.Width+blob.Bounds.Height))
	pts = append(pts, utils.Point{X: float64(sx), Y: float64(sy)})

	// Each boundary pixel is entered at most once per incoming direction.
	maxSteps := 8*blob.Area + 8
	x, y, dir := sx, sy, 0
	for range maxSteps {
		next, ok := nextBoundaryDirection(grid, x, y, dir)
		if !ok {
			return pts, false
		}
		x += dirDX[next]
		y += dirDY[next]
		dir = next
		if x == sx && y == sy {
			return pts, true
		}
		pts = append(pts, utils.Point{X: float64(x), Y: float64(y)})
	}
	return pts, false
}

// findStartPixel returns the topmost, then leftmost, pixel of the blob.
func findStartPixel(blob Blob) (int, int) {
	best := blob.Pixels[0]
	for _, p := range blob.Pixels[1:] {
		if p.Y < best.Y || (p.Y == best.Y && p.X < best.X) {
			best = p
		}
	}
	return best.X, best.Y
}

// nextBoundaryDirection scans clockwise starting two steps counter-clockwise
// of the last move and returns the first direction leading to foreground.
func nextBoundaryDirection(grid *BinaryGrid, x, y, lastDir int) (int, bool) {
	start := (lastDir + 6) % 8
	for k := range 8 {
		d := (start + k) % 8
		if grid.At(x+dirDX[d], y+dirDY[d]) {
			return d, true
		}
	}
	return 0, false
}
