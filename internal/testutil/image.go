package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/shapedetect/internal/utils"
)

// Ink is the foreground color used for synthetic shapes.
var Ink = color.NRGBA{R: 0, G: 0, B: 0, A: 255}

// NewCanvas returns a white opaque canvas of the given size.
func NewCanvas(width, height int) *image.NRGBA {
	return imaging.New(width, height, color.White)
}

// FillRect paints an axis-aligned rectangle of w×h pixels with its top-left corner at (x, y).
func FillRect(img draw.Image, x, y, w, h int, col color.Color) {
	draw.Draw(img, image.Rect(x, y, x+w, y+h), &image.Uniform{C: col}, image.Point{}, draw.Src)
}

// FillDisk paints every pixel whose center lies within r of (cx, cy).
func FillDisk(img draw.Image, cx, cy, r float64, col color.Color) {
	b := img.Bounds()
	r2 := r * r
	for y := max(b.Min.Y, int(math.Floor(cy-r))); y <= min(b.Max.Y-1, int(math.Ceil(cy+r))); y++ {
		for x := max(b.Min.X, int(math.Floor(cx-r))); x <= min(b.Max.X-1, int(math.Ceil(cx+r))); x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			if dx*dx+dy*dy <= r2 {
				img.Set(x, y, col)
			}
		}
	}
}

// FillPolygon paints the pixels inside pts using the even-odd rule.
func FillPolygon(img draw.Image, pts []utils.Point, col color.Color) {
	if len(pts) < 3 {
		return
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	b := img.Bounds()
	for y := max(b.Min.Y, int(math.Floor(minY))); y <= min(b.Max.Y-1, int(math.Ceil(maxY))); y++ {
		for x := max(b.Min.X, int(math.Floor(minX))); x <= min(b.Max.X-1, int(math.Ceil(maxX))); x++ {
			if pointInPolygon(float64(x), float64(y), pts) {
				img.Set(x, y, col)
			}
		}
	}
}

func pointInPolygon(px, py float64, pts []utils.Point) bool {
	inside := false
	j := len(pts) - 1
	for i := range pts {
		pi, pj := pts[i], pts[j]
		if (pi.Y > py) != (pj.Y > py) {
			xint := pi.X + (py-pi.Y)*(pj.X-pi.X)/(pj.Y-pi.Y)
			if px < xint {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// RegularPolygon returns the vertices of a regular n-gon of circumradius r
// with one vertex pointing straight up.
func RegularPolygon(cx, cy, r float64, n int) []utils.Point {
	pts := make([]utils.Point, n)
	for k := range n {
		a := -math.Pi/2 + 2*math.Pi*float64(k)/float64(n)
		pts[k] = utils.Point{X: cx + r*math.Cos(a), Y: cy + r*math.Sin(a)}
	}
	return pts
}

// StarPolygon returns the outline of a star with the given number of tips,
// alternating between the outer and inner radius, first tip pointing up.
func StarPolygon(cx, cy, outer, inner float64, tips int) []utils.Point {
	pts := make([]utils.Point, 0, 2*tips)
	step := math.Pi / float64(tips)
	for k := range 2 * tips {
		r := outer
		if k%2 == 1 {
			r = inner
		}
		a := -math.Pi/2 + step*float64(k)
		pts = append(pts, utils.Point{X: cx + r*math.Cos(a), Y: cy + r*math.Sin(a)})
	}
	return pts
}

// EncodePNG returns the PNG encoding of img.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img), "Failed to encode PNG image")
	return buf.Bytes()
}

// SaveImage saves an image as PNG to the specified path.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	dir := filepath.Dir(path)
	require.NoError(t, EnsureDir(dir), "Failed to create directory %s", dir)

	err := os.WriteFile(path, EncodePNG(t, img), 0o600)
	require.NoError(t, err, "Failed to write file %s", path)
}

// LoadImage loads an image from the specified path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()

	file, err := os.Open(path) //nolint:gosec // G304: Test file reading with controlled path
	require.NoError(t, err, "Failed to open image file %s", path)
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	require.NoError(t, err, "Failed to decode image")

	return img
}

// CountInk returns the number of pixels in img equal to col.
func CountInk(img image.Image, col color.Color) int {
	want := color.NRGBAModel.Convert(col)
	b := img.Bounds()
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if color.NRGBAModel.Convert(img.At(x, y)) == want {
				n++
			}
		}
	}
	return n
}

// DescribeImage is a short debug string used in assertion messages.
func DescribeImage(img image.Image) string {
	b := img.Bounds()
	return fmt.Sprintf("%dx%d image, %d ink pixels", b.Dx(), b.Dy(), CountInk(img, Ink))
}
