package detector

import "github.com/MeKo-Tech/shapedetect/internal/utils"

// SimplifyClosedContour reduces a traced contour to its polygon vertices.
// A closed loop simplifies with both ends near the start pixel; when more
// than two vertices remain and the last lies within closureDist of the first,
// the trailing duplicate is dropped.
func SimplifyClosedContour(contour []utils.Point, epsilon, closureDist float64) []utils.Point {
	v := utils.SimplifyPolygon(contour, epsilon)
	if len(v) > 2 && utils.Distance(v[0], v[len(v)-1]) < closureDist {
		v = v[:len(v)-1]
	}
	return v
}
