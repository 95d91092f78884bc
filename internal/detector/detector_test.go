package detector

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/shapedetect/internal/testutil"
)

func detectImage(t *testing.T, img image.Image, cfg Config) DetectionResult {
	t.Helper()
	buf := FromImage(img)
	require.NotNil(t, buf)
	return Detect(buf, cfg)
}

func shapeTypes(res DetectionResult) []string {
	out := make([]string, len(res.Shapes))
	for i, s := range res.Shapes {
		out[i] = string(s.Type)
	}
	return out
}

func TestNew(t *testing.T) {
	d, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), d.Config())

	bad := DefaultConfig()
	bad.StarRatio = 0
	_, err = New(bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestDetect_BlankImage(t *testing.T) {
	scene := testutil.BlankScene()
	res := detectImage(t, scene.Render(), DefaultConfig())

	assert.NotNil(t, res.Shapes)
	assert.Empty(t, res.Shapes)
	assert.Equal(t, scene.Width, res.Width)
	assert.Equal(t, scene.Height, res.Height)
	assert.GreaterOrEqual(t, res.ProcessingTimeMs(), 0.0)
}

func TestDetect_SingleShapes(t *testing.T) {
	for _, scene := range testutil.SingleShapeScenes() {
		t.Run(scene.Name, func(t *testing.T) {
			res := detectImage(t, scene.Render(), DefaultConfig())
			require.Len(t, res.Shapes, 1, "shapes: %v", shapeTypes(res))

			s := res.Shapes[0]
			assert.Equal(t, ShapeType(scene.Name), s.Type)
			assert.GreaterOrEqual(t, s.Confidence, 0.5)
			assert.LessOrEqual(t, s.Confidence, 1.0)
			assert.Greater(t, s.Area, float64(DefaultMinBlobArea))
			assert.True(t, image.Pt(int(s.Center.X), int(s.Center.Y)).In(s.BoundingBox.Rect()))
		})
	}
}

func TestDetect_Rectangle(t *testing.T) {
	img := testutil.NewCanvas(100, 80)
	testutil.FillRect(img, 20, 15, 40, 30, testutil.Ink)

	res := detectImage(t, img, DefaultConfig())
	require.Len(t, res.Shapes, 1)

	s := res.Shapes[0]
	assert.Equal(t, ShapeRectangle, s.Type)
	assert.InDelta(t, 0.9, s.Confidence, 1e-9)
	assert.Equal(t, BoundingBox{X: 20, Y: 15, Width: 40, Height: 30}, s.BoundingBox)
	assert.InDelta(t, 39.5, s.Center.X, 1e-9)
	assert.InDelta(t, 29.5, s.Center.Y, 1e-9)
	assert.InDelta(t, 1200.0, s.Area, 1e-9)
}

func TestDetect_CircleConfidenceIsCircularity(t *testing.T) {
	img := testutil.NewCanvas(120, 120)
	testutil.FillDisk(img, 60, 60, 35, testutil.Ink)

	res := detectImage(t, img, DefaultConfig())
	require.Len(t, res.Shapes, 1)
	assert.Equal(t, ShapeCircle, res.Shapes[0].Type)
	assert.Greater(t, res.Shapes[0].Confidence, DefaultCircularityThreshold)
	assert.InDelta(t, 60.0, res.Shapes[0].Center.X, 1e-9)
	assert.InDelta(t, 60.0, res.Shapes[0].Center.Y, 1e-9)
}

func TestDetect_MixedSceneKeepsDiscoveryOrder(t *testing.T) {
	scene := testutil.MixedScene()
	res := detectImage(t, scene.Render(), DefaultConfig())
	assert.Equal(t, scene.ExpectedTypes(), shapeTypes(res))
}

func TestDetect_ParallelMatchesSequential(t *testing.T) {
	img := testutil.MixedScene().Render()

	seq := detectImage(t, img, DefaultConfig())
	cfg := DefaultConfig()
	cfg.Workers = 4
	par := detectImage(t, img, cfg)

	assert.Equal(t, seq.Shapes, par.Shapes)
}

func TestDetect_SmallBlobsAreIgnored(t *testing.T) {
	img := testutil.NewCanvas(400, 100)
	testutil.FillRect(img, 10, 10, 15, 15, testutil.Ink) // 225 px
	testutil.FillRect(img, 50, 60, 300, 1, testutil.Ink) // thin 300 px line

	res := detectImage(t, img, DefaultConfig())
	assert.Empty(t, res.Shapes)

	cfg := DefaultConfig()
	cfg.MinBlobArea = 200
	res = detectImage(t, img, cfg)
	require.Len(t, res.Shapes, 1, "the line has no corners and stays unclassified")
	assert.Equal(t, BoundingBox{X: 10, Y: 10, Width: 15, Height: 15}, res.Shapes[0].BoundingBox)
}

func TestDetect_ShortContoursAreIgnored(t *testing.T) {
	img := testutil.NewCanvas(100, 100)
	testutil.FillRect(img, 10, 10, 40, 40, testutil.Ink)

	cfg := DefaultConfig()
	cfg.MinContourLength = 1000
	assert.Empty(t, detectImage(t, img, cfg).Shapes)
}

func TestDetect_UnrecognizedOutlineIsSkipped(t *testing.T) {
	img := testutil.NewCanvas(120, 120)
	testutil.FillRect(img, 20, 20, 20, 80, testutil.Ink)
	testutil.FillRect(img, 20, 80, 80, 20, testutil.Ink)

	assert.Empty(t, detectImage(t, img, DefaultConfig()).Shapes)
}

func TestDetect_TransparentAndLightPixelsAreBackground(t *testing.T) {
	img := testutil.NewCanvas(100, 100)
	testutil.FillRect(img, 10, 10, 40, 40, color.NRGBA{A: 0})
	testutil.FillRect(img, 55, 55, 40, 40, color.NRGBA{R: 200, G: 200, B: 200, A: 255})

	assert.Empty(t, detectImage(t, img, DefaultConfig()).Shapes)
}

func TestDetect_ThresholdControlsForeground(t *testing.T) {
	img := testutil.NewCanvas(100, 100)
	testutil.FillRect(img, 20, 20, 40, 40, color.NRGBA{R: 100, G: 100, B: 100, A: 255})

	assert.Len(t, detectImage(t, img, DefaultConfig()).Shapes, 1)

	cfg := DefaultConfig()
	cfg.Threshold = 64
	assert.Empty(t, detectImage(t, img, cfg).Shapes)
}

func TestDetect_TranslationInvariant(t *testing.T) {
	draw := func(dx, dy int) image.Image {
		img := testutil.NewCanvas(300, 300)
		testutil.FillRect(img, 20+dx, 20+dy, 50, 40, testutil.Ink)
		testutil.FillDisk(img, float64(150+dx), float64(60+dy), 30, testutil.Ink)
		return img
	}

	base := detectImage(t, draw(0, 0), DefaultConfig())
	moved := detectImage(t, draw(37, 113), DefaultConfig())
	require.Len(t, base.Shapes, 2)
	require.Len(t, moved.Shapes, len(base.Shapes))

	for i := range base.Shapes {
		a, b := base.Shapes[i], moved.Shapes[i]
		assert.Equal(t, a.Type, b.Type)
		assert.InDelta(t, a.Confidence, b.Confidence, 1e-9)
		assert.InDelta(t, a.Area, b.Area, 1e-9)
		assert.Equal(t, a.BoundingBox.X+37, b.BoundingBox.X)
		assert.Equal(t, a.BoundingBox.Y+113, b.BoundingBox.Y)
		assert.Equal(t, a.BoundingBox.Width, b.BoundingBox.Width)
		assert.InDelta(t, a.Center.X+37, b.Center.X, 1e-9)
		assert.InDelta(t, a.Center.Y+113, b.Center.Y, 1e-9)
	}
}

func TestDetector_Detect(t *testing.T) {
	d, err := New(DefaultConfig())
	require.NoError(t, err)

	img := testutil.MixedScene().Render()
	res := d.Detect(FromImage(img))
	assert.Len(t, res.Shapes, 5)
	assert.Equal(t, 400, res.Width)
	assert.Equal(t, 300, res.Height)
}
