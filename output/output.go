// Package output encodes finished pixel buffers to image files.
package output

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"

	fractal "github.com/marben/distfrac"
)

const jpegQuality = 95

// Image copies px into an opaque RGBA image.
func Image(px []fractal.ARGB, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, c := range px[:w*h] {
		o := i * 4
		img.Pix[o+0] = c.R()
		img.Pix[o+1] = c.G()
		img.Pix[o+2] = c.B()
		img.Pix[o+3] = 0xff
	}
	return img
}

// Encode writes px in the named format: tiff, png, jpeg or bmp.
func Encode(dst io.Writer, format string, px []fractal.ARGB, w, h int) error {
	switch format {
	case "tiff":
		return WriteTIFF(dst, px, w, h)
	case "png":
		return png.Encode(dst, Image(px, w, h))
	case "jpeg":
		return jpeg.Encode(dst, Image(px, w, h), &jpeg.Options{Quality: jpegQuality})
	case "bmp":
		return bmp.Encode(dst, Image(px, w, h))
	}
	return fmt.Errorf("unsupported image format %q", format)
}

// FormatOf derives the format from a file name's extension.
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return "tiff", nil
	case ".png":
		return "png", nil
	case ".jpg", ".jpeg":
		return "jpeg", nil
	case ".bmp":
		return "bmp", nil
	}
	return "", fmt.Errorf("%s: unknown image extension", path)
}

// Save writes px to path in the format given by its extension.
func Save(path string, px []fractal.ARGB, w, h int) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, format, px, w, h); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
