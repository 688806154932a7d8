package lbledit

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	// Register decoders for the remaining supported input formats.
	_ "image/gif"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// thumbnailImage returns img scaled down to fit within maxWidth x maxHeight,
// preserving the aspect ratio. Images already within the bounds are returned
// rescaled 1:1.
func thumbnailImage(img image.Image, maxWidth, maxHeight int) image.Image {
	return imaging.Fit(img, maxWidth, maxHeight, imaging.Linear)
}

// letterboxImage fits img onto a size x size canvas, preserving the aspect
// ratio and padding the remainder with black.
func letterboxImage(img image.Image, size int) *image.NRGBA {
	fitted := imaging.Fit(img, size, size, imaging.Linear)
	canvas := imaging.New(size, size, color.NRGBA{A: 255})

	return imaging.PasteCenter(canvas, fitted)
}

// decodeImageConfig opens the file at path and returns the results of
// image.DecodeConfig.
func decodeImageConfig(path string) (config image.Config, format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// loadImage reads and decodes the image at path and returns the results of
// image.Decode.
func loadImage(path string) (img image.Image, format string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	return image.Decode(f)
}

// Saves the image to path, encoding it as PNG or JPG, depending on the file
// extension of path.
func saveImage(path string, img image.Image, jpegQuality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(f, img)
	default:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality})
	}
	return err
}
