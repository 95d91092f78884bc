package detector

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"
)

// gridFromRows builds a grid where '#' marks foreground.
func gridFromRows(t *testing.T, rows ...string) *BinaryGrid {
	t.Helper()
	require.NotEmpty(t, rows)

	w, h := len(rows[0]), len(rows)
	cells := make([]bool, w*h)
	for y, row := range rows {
		require.Len(t, row, w, "row %d has inconsistent width", y)
		for x, c := range row {
			cells[y*w+x] = c == '#'
		}
	}
	return &BinaryGrid{Width: w, Height: h, Cells: cells}
}

// rectGrid returns a w×h grid with a solid rectangle filled in.
func rectGrid(w, h int, r image.Rectangle) *BinaryGrid {
	cells := make([]bool, w*h)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cells[y*w+x] = true
		}
	}
	return &BinaryGrid{Width: w, Height: h, Cells: cells}
}

func onlyBlob(t *testing.T, grid *BinaryGrid) Blob {
	t.Helper()
	blobs := ExtractBlobs(grid)
	require.Len(t, blobs, 1)
	return blobs[0]
}
