package detector

import "github.com/MeKo-Tech/shapedetect/internal/mempool"

// alphaCutoff is the minimum alpha for a pixel to count as foreground.
const alphaCutoff = 128

// Luminance returns the weighted grayscale value of an RGB triple.
func Luminance(r, g, b uint8) float64 {
	return 0.21*float64(r) + 0.72*float64(g) + 0.07*float64(b)
}

// Binarize marks dark, sufficiently opaque pixels as foreground.
// The cells come from the bool pool; release them with ReleaseGrid.
func Binarize(buf *PixelBuffer, threshold int) *BinaryGrid {
	n := buf.Width * buf.Height
	cells := mempool.GetBool(n)
	t := float64(threshold)
	for i := range n {
		p := buf.Pix[i*4 : i*4+4 : i*4+4]
		cells[i] = Luminance(p[0], p[1], p[2]) < t && p[3] > alphaCutoff
	}
	return &BinaryGrid{Width: buf.Width, Height: buf.Height, Cells: cells}
}

// ReleaseGrid returns the grid's storage to the pool. The grid must not be used afterwards.
func ReleaseGrid(g *BinaryGrid) {
	if g == nil {
		return
	}
	mempool.PutBool(g.Cells)
	g.Cells = nil
}
