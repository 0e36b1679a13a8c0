// Package cbztest builds small comic archives for tests.
package cbztest

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"testing"

	"github.com/klauspost/compress/zip"
)

// Page is one entry of a generated archive.
type Page struct {
	Name   string
	Width  int
	Height int
	PNG    bool   // encode as PNG instead of JPEG
	Raw    []byte // written verbatim when set
}

// Tall is a portrait page.
func Tall(name string) Page { return Page{Name: name, Width: 20, Height: 30} }

// Wide is a landscape page that classifies as a spread.
func Wide(name string) Page { return Page{Name: name, Width: 40, Height: 30} }

// Image returns a two-tone image: red on the left half, blue on the right.
func Image(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 220, A: 255}
			if x >= w/2 {
				c = color.RGBA{B: 220, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// Encode renders p's image bytes.
func Encode(t testing.TB, p Page) []byte {
	t.Helper()
	if p.Raw != nil {
		return p.Raw
	}
	var buf bytes.Buffer
	img := Image(p.Width, p.Height)
	var err error
	if p.PNG {
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		t.Fatalf("encode %s: %v", p.Name, err)
	}
	return buf.Bytes()
}

// Write creates a zip archive at path holding pages in the given order.
func Write(t testing.TB, path string, pages ...Page) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	zw := zip.NewWriter(f)
	for _, p := range pages {
		w, err := zw.Create(p.Name)
		if err != nil {
			t.Fatalf("zip entry %s: %v", p.Name, err)
		}
		if _, err := w.Write(Encode(t, p)); err != nil {
			t.Fatalf("zip write %s: %v", p.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

// Entries lists the entry names of the archive at path.
func Entries(t testing.TB, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer zr.Close()
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}
