package batch

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/shapedetect/internal/detector"
	"github.com/MeKo-Tech/shapedetect/internal/testutil"
)

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	path := testutil.MixedScene().Write(t, dir)

	img, err := loadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())

	txt := testutil.WriteFile(t, dir, "notes.txt", []byte("hello"))
	_, err = loadImage(txt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported image format")

	bad := testutil.WriteFile(t, dir, "broken.png", []byte("not a png"))
	_, err = loadImage(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load")
}

func TestLoadImages(t *testing.T) {
	dir := t.TempDir()
	good := testutil.BlankScene().Write(t, dir)
	bad := testutil.WriteFile(t, dir, "broken.png", []byte("not a png"))
	paths := []string{bad, good}

	files := make([]FileResult, len(paths))
	_, err := loadImages(paths, files, false)
	require.Error(t, err)

	files = make([]FileResult, len(paths))
	loaded, err := loadImages(paths, files, true)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 1, loaded[0].fileIndex)
	require.Error(t, files[0].Error)
	assert.NoError(t, files[1].Error)
}

func TestApplyConfidenceFilter(t *testing.T) {
	res := mockImageResult("x.png",
		mockShape(detector.ShapeCircle, 0.95, 0, 0),
		mockShape(detector.ShapePentagon, 0.85, 30, 0),
		mockShape(detector.ShapeRectangle, 0.9, 60, 0),
	)

	applyConfidenceFilter(res, 0)
	assert.Len(t, res.Shapes, 3, "zero disables filtering")

	applyConfidenceFilter(res, 0.9)
	require.Len(t, res.Shapes, 2)
	assert.Equal(t, detector.ShapeCircle, res.Shapes[0].Type)
	assert.Equal(t, detector.ShapeRectangle, res.Shapes[1].Type)

	applyConfidenceFilter(res, 0.99)
	assert.Empty(t, res.Shapes)

	assert.NotPanics(t, func() { applyConfidenceFilter(nil, 0.5) })
}

func TestNewOverlayStyle(t *testing.T) {
	style, err := newOverlayStyle(&Config{})
	require.NoError(t, err)
	assert.Nil(t, style, "no overlay directory means no overlays")

	style, err = newOverlayStyle(&Config{OverlayDir: "ov", BoxColor: "#0000FF", MarkerColor: "#FFFF00"})
	require.NoError(t, err)
	require.NotNil(t, style)
	assert.Equal(t, "ov", style.dir)
	r, g, b, _ := style.box.RGBA()
	assert.Equal(t, [3]uint32{0, 0, 0xffff}, [3]uint32{r, g, b})
	assert.NotNil(t, style.marker)

	_, err = newOverlayStyle(&Config{OverlayDir: "ov", BoxColor: "blue"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid overlay box color")

	_, err = newOverlayStyle(&Config{OverlayDir: "ov", MarkerColor: "#12"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid overlay marker color")
}

func TestOverlayPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "scan_overlay.png"), overlayPath("out", "/data/images/scan.jpg"))
	assert.Equal(t, filepath.Join("out", "a.b_overlay.png"), overlayPath("out", "a.b.png"))
}

func TestSaveOverlay(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "overlays")
	img := testutil.NewCanvas(200, 200)
	res := mockImageResult("/images/shapes.png", mockShape(detector.ShapeRectangle, 0.9, 40, 40))
	box := color.NRGBA{B: 255, A: 255}

	out, err := saveOverlay(img, res, &overlayStyle{dir: dir, box: box})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "shapes_overlay.png"), out)

	written := testutil.LoadImage(t, out)
	assert.Positive(t, testutil.CountInk(written, box))

	_, err = saveOverlay(nil, res, &overlayStyle{dir: dir})
	require.Error(t, err)
}

func TestFinishResult(t *testing.T) {
	dir := t.TempDir()
	img := testutil.NewCanvas(200, 200)
	res := mockImageResult("",
		mockShape(detector.ShapeStar, 0.9, 100, 100),
		mockShape(detector.ShapePentagon, 0.85, 10, 10),
	)
	cfg := &Config{MinConfidence: 0.5, SortShapes: true}

	finishResult(res, img, filepath.Join(dir, "in.png"), cfg, &overlayStyle{dir: dir})

	assert.Equal(t, filepath.Join(dir, "in.png"), res.Source)
	require.Len(t, res.Shapes, 2)
	assert.Equal(t, detector.ShapePentagon, res.Shapes[0].Type, "sorted top-left first")
	assert.True(t, testutil.FileExists(filepath.Join(dir, "in_overlay.png")))
}

func TestFinishResult_OverlayFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	blocker := testutil.WriteFile(t, dir, "blocker", nil)
	res := mockImageResult("", mockShape(detector.ShapeCircle, 0.9, 0, 0))

	assert.NotPanics(t, func() {
		finishResult(res, testutil.NewCanvas(50, 50), "x.png", &Config{}, &overlayStyle{dir: blocker})
	})
	assert.Len(t, res.Shapes, 1)
}
