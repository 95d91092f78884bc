package detector

import (
	"image"

	"github.com/MeKo-Tech/shapedetect/internal/mempool"
)

// neighbors8 lists the 8-connected neighbor offsets.
var neighbors8 = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// blobStats accumulates per-component statistics during traversal.
type blobStats struct {
	count      int
	sumX, sumY int
	minX, minY int
	maxX, maxY int
}

func (st *blobStats) add(x, y int) {
	st.count++
	st.sumX += x
	st.sumY += y
	if x < st.minX {
		st.minX = x
	}
	if y < st.minY {
		st.minY = y
	}
	if x > st.maxX {
		st.maxX = x
	}
	if y > st.maxY {
		st.maxY = y
	}
}

// ExtractBlobs labels 8-connected foreground components in raster order.
// IDs start at 1 and follow the order in which each component's first pixel
// is met scanning top-to-bottom, left-to-right.
func ExtractBlobs(grid *BinaryGrid) []Blob {
	w, h := grid.Width, grid.Height
	labels := mempool.GetInt32(w * h)
	defer mempool.PutInt32(labels)

	var blobs []Blob
	var queue []int
	label := int32(1)

	for y := range h {
		for x := range w {
			idx := y*w + x
			if !grid.Cells[idx] || labels[idx] != 0 {
				continue
			}
			var blob Blob
			blob, queue = floodComponent(grid, labels, queue[:0], x, y, label)
			blobs = append(blobs, blob)
			label++
		}
	}
	return blobs
}

// floodComponent runs a breadth-first traversal from (startX, startY) and
// returns the resulting blob. The queue slice is reused between calls.
func floodComponent(grid *BinaryGrid, labels []int32, queue []int, startX, startY int, label int32) (Blob, []int) {
	w, h := grid.Width, grid.Height
	start := startY*w + startX
	labels[start] = label
	queue = append(queue, start)

	st := blobStats{minX: startX, minY: startY, maxX: startX, maxY: startY}
	var pixels []image.Point

	for head := 0; head < len(queue); head++ {
		ci := queue[head]
		cx, cy := ci%w, ci/w
		st.add(cx, cy)
		pixels = append(pixels, image.Pt(cx, cy))

		for _, d := range neighbors8 {
			nx, ny := cx+d[0], cy+d[1]
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			ni := ny*w + nx
			if grid.Cells[ni] && labels[ni] == 0 {
				labels[ni] = label
				queue = append(queue, ni)
			}
		}
	}

	return Blob{
		ID:     int(label),
		Pixels: pixels,
		Area:   st.count,
		Bounds: BoundingBox{
			X:      st.minX,
			Y:      st.minY,
			Width:  st.maxX - st.minX + 1,
			Height: st.maxY - st.minY + 1,
		},
		Centroid: Center{
			X: float64(st.sumX) / float64(st.count),
			Y: float64(st.sumY) / float64(st.count),
		},
	}, queue
}
