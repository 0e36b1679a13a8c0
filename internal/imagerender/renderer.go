package imagerender

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// Preview is one rasterised page of a rendered booklet.
type Preview struct {
	JPEG   []byte
	Width  int
	Height int
	Pages  int
}

// RenderPageToJPEG rasterises page pageNum (1-based) of a booklet PDF through
// MuPDF for proofing.
func RenderPageToJPEG(pdfPath string, pageNum, dpi, quality int, mode ColorMode) (*Preview, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pageNum < 1 || pageNum > pages {
		return nil, fmt.Errorf("page %d out of range 1..%d", pageNum, pages)
	}

	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(pageNum-1, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", pageNum, err)
	}
	bounds := img.Bounds()

	var out image.Image = img
	if mode == ColorGray {
		gray := image.NewGray(bounds)
		draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
		out = gray
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	log.Debug().
		Int("page", pageNum).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Str("color", string(mode)).
		Int("jpeg_size", buf.Len()).
		Msg("rendered booklet page")

	return &Preview{JPEG: buf.Bytes(), Width: bounds.Dx(), Height: bounds.Dy(), Pages: pages}, nil
}
