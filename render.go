package lbledit

// Rendering annotation overlays onto images for visual export.

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// borderWidth is the width of the annotation outlines in pixels.
const borderWidth = 2

// RenderAnnotations draws the annotation boxes and their class labels onto a
// copy of img. Colors and label names come from classes; unregistered ids get
// the registry's fallback presentation.
func RenderAnnotations(img image.Image, set AnnotationSet, classes *ClassRegistry) *image.NRGBA {
	dst := imaging.Clone(img)

	for _, a := range set {
		rgb := classes.Color(a.ClassID)
		col := color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}
		drawBorder(dst, a, col)
		drawLabel(dst, a, classes.Label(a.ClassID), col)
	}

	return dst
}

// drawBorder outlines a's rectangle with a borderWidth-thick frame, clipped
// to the image bounds.
func drawBorder(dst *image.NRGBA, a Annotation, col color.NRGBA) {
	x0 := int(math.Round(a.X))
	y0 := int(math.Round(a.Y))
	x1 := int(math.Round(a.Right()))
	y1 := int(math.Round(a.Bottom()))

	bounds := dst.Bounds()
	sides := [4]image.Rectangle{
		image.Rect(x0, y0, x1, y0+borderWidth), // Top.
		image.Rect(x0, y1-borderWidth, x1, y1), // Bottom.
		image.Rect(x0, y0, x0+borderWidth, y1), // Left.
		image.Rect(x1-borderWidth, y0, x1, y1), // Right.
	}
	for _, r := range sides {
		draw.Draw(dst, r.Intersect(bounds), &image.Uniform{C: col}, image.Point{}, draw.Src)
	}
}

// drawLabel draws the class label on a filled tag above the box's top-left
// corner, or just inside it when there is no room above.
func drawLabel(dst *image.NRGBA, a Annotation, label string, col color.NRGBA) {
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, label).Ceil()
	textHeight := face.Metrics().Height.Ceil()

	x := int(math.Round(a.X))
	y := int(math.Round(a.Y)) - textHeight
	if y < dst.Bounds().Min.Y {
		y = int(math.Round(a.Y))
	}

	tag := image.Rect(x, y, x+textWidth+4, y+textHeight)
	draw.Draw(dst, tag.Intersect(dst.Bounds()), &image.Uniform{C: col}, image.Point{}, draw.Src)

	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: face,
		Dot:  fixed.P(x+2, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(label)
}

// SaveAnnotated renders the annotations onto the image at srcPath and saves
// the result to dstPath.
func SaveAnnotated(srcPath, dstPath string, set AnnotationSet, classes *ClassRegistry,
		jpegQuality int) error {

	img, _, err := loadImage(srcPath)
	if err != nil {
		return err
	}

	return saveImage(dstPath, RenderAnnotations(img, set, classes), jpegQuality)
}
