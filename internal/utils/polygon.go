package utils

import "math"

// SimplifyPolygon reduces a point sequence with the Ramer–Douglas–Peucker
// algorithm. Interior points farther than epsilon from the segment joining
// the current endpoints are kept as split points; everything else collapses.
// Sequences with fewer than 3 points are returned unchanged.
func SimplifyPolygon(pts []Point, epsilon float64) []Point {
	if len(pts) < 3 {
		return append([]Point(nil), pts...)
	}
	keep := make([]bool, len(pts))
	keep[0] = true
	keep[len(pts)-1] = true
	dpSimplify(pts, 0, len(pts)-1, epsilon, keep)

	out := make([]Point, 0, len(pts))
	for i, k := range keep {
		if k {
			out = append(out, pts[i])
		}
	}
	return out
}

func dpSimplify(pts []Point, start, end int, eps float64, keep []bool) {
	if end <= start+1 {
		return
	}
	maxDist := -1.0
	index := -1
	a := pts[start]
	b := pts[end]
	for i := start + 1; i < end; i++ {
		d := PerpendicularDistance(pts[i], a, b)
		if d > maxDist {
			maxDist = d
			index = i
		}
	}
	if maxDist > eps {
		keep[index] = true
		dpSimplify(pts, start, index, eps, keep)
		dpSimplify(pts, index, end, eps, keep)
	}
}

// PerpendicularDistance returns the distance from p to the segment ab.
// The projection is clamped to the segment, and a zero-length segment
// degrades to the point distance.
func PerpendicularDistance(p, a, b Point) float64 {
	vx, vy := b.X-a.X, b.Y-a.Y
	lenSq := vx*vx + vy*vy
	if lenSq == 0 {
		return Distance(p, a)
	}
	t := ((p.X-a.X)*vx + (p.Y-a.Y)*vy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return Distance(p, Point{X: a.X + t*vx, Y: a.Y + t*vy})
}

// Distance is the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// ClosedPerimeter sums the edge lengths of pts treated as a closed loop.
func ClosedPerimeter(pts []Point) float64 {
	if len(pts) < 2 {
		return 0
	}
	var sum float64
	for i := range pts {
		sum += Distance(pts[i], pts[(i+1)%len(pts)])
	}
	return sum
}
