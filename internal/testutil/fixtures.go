package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// ShapeSpec is one synthetic shape painted onto a scene.
type ShapeSpec struct {
	Type string
	Draw func(img draw.Image)
}

// Scene is a synthetic test image with the shape types it should yield,
// listed in raster discovery order of their topmost pixel.
type Scene struct {
	Name   string
	Width  int
	Height int
	Shapes []ShapeSpec
}

// Render paints the scene onto a fresh white canvas.
func (s Scene) Render() *image.NRGBA {
	img := NewCanvas(s.Width, s.Height)
	for _, sh := range s.Shapes {
		sh.Draw(img)
	}
	return img
}

// ExpectedTypes returns the shape types in expected output order.
func (s Scene) ExpectedTypes() []string {
	out := make([]string, len(s.Shapes))
	for i, sh := range s.Shapes {
		out[i] = sh.Type
	}
	return out
}

// Write renders the scene as PNG into dir and returns the file path.
func (s Scene) Write(t *testing.T, dir string) string {
	t.Helper()

	path, err := s.WriteFile(dir)
	require.NoError(t, err, "Failed to write scene %s", s.Name)
	return path
}

// WriteFile is Write for callers without a *testing.T.
func (s Scene) WriteFile(dir string) (string, error) {
	if err := EnsureDir(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, s.Name+".png")
	var buf bytes.Buffer
	if err := png.Encode(&buf, s.Render()); err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", s.Name, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// Rectangle returns a filled w×h rectangle at (x, y).
func Rectangle(x, y, w, h int) ShapeSpec {
	return ShapeSpec{Type: "rectangle", Draw: func(img draw.Image) { FillRect(img, x, y, w, h, Ink) }}
}

// Circle returns a filled disk.
func Circle(cx, cy, r float64) ShapeSpec {
	return ShapeSpec{Type: "circle", Draw: func(img draw.Image) { FillDisk(img, cx, cy, r, Ink) }}
}

// Triangle returns a filled equilateral triangle pointing up.
func Triangle(cx, cy, r float64) ShapeSpec {
	return ShapeSpec{Type: "triangle", Draw: func(img draw.Image) {
		FillPolygon(img, RegularPolygon(cx, cy, r, 3), Ink)
	}}
}

// Pentagon returns a filled regular pentagon pointing up.
func Pentagon(cx, cy, r float64) ShapeSpec {
	return ShapeSpec{Type: "pentagon", Draw: func(img draw.Image) {
		FillPolygon(img, RegularPolygon(cx, cy, r, 5), Ink)
	}}
}

// Star returns a filled five-pointed star.
func Star(cx, cy, outer, inner float64) ShapeSpec {
	return ShapeSpec{Type: "star", Draw: func(img draw.Image) {
		FillPolygon(img, StarPolygon(cx, cy, outer, inner, 5), Ink)
	}}
}

// MixedScene contains one shape of every supported type.
func MixedScene() Scene {
	return Scene{
		Name:   "mixed",
		Width:  400,
		Height: 300,
		Shapes: []ShapeSpec{
			Rectangle(20, 20, 60, 40),
			Circle(200, 60, 30),
			Triangle(330, 80, 45),
			Star(260, 210, 70, 28),
			Pentagon(80, 210, 45),
		},
	}
}

// SingleShapeScenes returns one 200×200 scene per shape type, each shape centered.
func SingleShapeScenes() []Scene {
	single := func(name string, s ShapeSpec) Scene {
		return Scene{Name: name, Width: 200, Height: 200, Shapes: []ShapeSpec{s}}
	}
	return []Scene{
		single("rectangle", Rectangle(60, 70, 80, 60)),
		single("circle", Circle(100, 100, 40)),
		single("triangle", Triangle(100, 110, 60)),
		single("pentagon", Pentagon(100, 100, 50)),
		single("star", Star(100, 105, 70, 28)),
	}
}

// BlankScene has no foreground at all.
func BlankScene() Scene {
	return Scene{Name: "blank", Width: 64, Height: 48}
}
