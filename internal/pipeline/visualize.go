package pipeline

import (
	"image"
	"image/color"

	"github.com/MeKo-Tech/shapedetect/internal/utils"
)

// OverlayOptions controls overlay rendering.
type OverlayOptions struct {
	BoxColor    color.Color
	MarkerColor color.Color
	Thickness   int
	MarkerArm   int
}

// DefaultOverlayOptions draws red boxes and green centroid crosses.
func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{
		BoxColor:    color.RGBA{R: 255, A: 255},
		MarkerColor: color.RGBA{G: 255, A: 255},
		Thickness:   2,
		MarkerArm:   5,
	}
}

// RenderOverlay draws each shape's bounding box and a cross at its center
// over a copy of img. The input image is not modified.
func RenderOverlay(img image.Image, res *ImageResult, boxColor, markerColor color.Color) *image.NRGBA {
	opts := DefaultOverlayOptions()
	if boxColor != nil {
		opts.BoxColor = boxColor
	}
	if markerColor != nil {
		opts.MarkerColor = markerColor
	}
	return RenderOverlayWithOptions(img, res, opts)
}

// RenderOverlayWithOptions is RenderOverlay with full control over styling.
func RenderOverlayWithOptions(img image.Image, res *ImageResult, opts OverlayOptions) *image.NRGBA {
	if img == nil {
		return nil
	}
	dst := utils.CloneImage(img)
	if res == nil {
		return dst
	}
	for _, s := range res.Shapes {
		b := s.BoundingBox
		utils.DrawRect(dst, b.Rect(), opts.BoxColor, opts.Thickness)
		utils.DrawCross(dst, utils.Point{X: s.Center.X, Y: s.Center.Y}, opts.MarkerArm, opts.MarkerColor)
	}
	return dst
}
