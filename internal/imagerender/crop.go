package imagerender

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/local/cbzbinder/internal/imposition"
)

// CropHalf returns one pixel half of a spread image as a new RGBA image
// anchored at the origin. The left half covers [0, w/2) and the right half
// [w/2, 2*(w/2)); on odd widths the last column is dropped.
func CropHalf(img image.Image, role imposition.Role) (*image.RGBA, error) {
	b := img.Bounds()
	half := b.Dx() / 2
	if half == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("image %dx%d is too small to split", b.Dx(), b.Dy())
	}

	var src image.Rectangle
	switch role {
	case imposition.RoleLeft:
		src = image.Rect(b.Min.X, b.Min.Y, b.Min.X+half, b.Max.Y)
	case imposition.RoleRight:
		src = image.Rect(b.Min.X+half, b.Min.Y, b.Min.X+2*half, b.Max.Y)
	default:
		return nil, fmt.Errorf("cannot crop a %s page", role)
	}

	dst := image.NewRGBA(image.Rect(0, 0, half, b.Dy()))
	draw.Copy(dst, image.Point{}, img, src, draw.Src, nil)
	return dst, nil
}

// Encode writes img as JPEG at quality, or as PNG for any other format.
// It returns the bytes and the matching file extension.
func Encode(img image.Image, format string, quality int) ([]byte, string, error) {
	var buf bytes.Buffer
	if format == "jpeg" || format == "jpg" {
		if quality <= 0 || quality > 100 {
			quality = 100
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", fmt.Errorf("failed to encode JPEG: %w", err)
		}
		return buf.Bytes(), ".jpg", nil
	}
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), ".png", nil
}
