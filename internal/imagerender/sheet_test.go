package imagerender

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/local/cbzbinder/internal/imposition"
)

// spread returns a 5x2 image whose left columns are red and right columns blue.
func spread() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 5, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 5; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= 2 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestCropHalf(t *testing.T) {
	left, err := CropHalf(spread(), imposition.RoleLeft)
	if err != nil {
		t.Fatalf("CropHalf left: %v", err)
	}
	if left.Bounds() != image.Rect(0, 0, 2, 2) {
		t.Fatalf("left bounds = %v", left.Bounds())
	}
	if c := left.RGBAAt(1, 1); c.R != 255 || c.B != 0 {
		t.Fatalf("left half pixel = %v, want red", c)
	}

	right, err := CropHalf(spread(), imposition.RoleRight)
	if err != nil {
		t.Fatalf("CropHalf right: %v", err)
	}
	if right.Bounds() != image.Rect(0, 0, 2, 2) {
		t.Fatalf("right bounds = %v", right.Bounds())
	}
	if c := right.RGBAAt(0, 0); c.B != 255 || c.R != 0 {
		t.Fatalf("right half pixel = %v, want blue", c)
	}

	if _, err := CropHalf(spread(), imposition.RoleNone); err == nil {
		t.Fatalf("expected error cropping a single page")
	}
	if _, err := CropHalf(image.NewRGBA(image.Rect(0, 0, 1, 4)), imposition.RoleLeft); err == nil {
		t.Fatalf("expected error for a one pixel wide image")
	}
}

func TestEncode(t *testing.T) {
	data, ext, err := Encode(spread(), "jpeg", 100)
	if err != nil {
		t.Fatalf("Encode jpeg: %v", err)
	}
	if ext != ".jpg" {
		t.Fatalf("ext = %q", ext)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width != 5 || cfg.Height != 2 {
		t.Fatalf("decoded config = %+v, %v", cfg, err)
	}

	if _, ext, err = Encode(spread(), "webp", 0); err != nil || ext != ".png" {
		t.Fatalf("non-jpeg formats should fall back to PNG, got %q, %v", ext, err)
	}
}

func TestSheetSize(t *testing.T) {
	w, h, err := SheetSize("a4", 100)
	if err != nil {
		t.Fatalf("SheetSize: %v", err)
	}
	if w != 1169 || h != 827 {
		t.Fatalf("A4 at 100dpi = %dx%d, want 1169x827", w, h)
	}
	if _, _, err := SheetSize("B7", 100); err == nil {
		t.Fatalf("expected unknown paper error")
	}
	if _, _, err := SheetSize("A4", 0); err == nil {
		t.Fatalf("expected dpi error")
	}
}

func TestFitRect(t *testing.T) {
	area := image.Rect(0, 0, 100, 100)
	cases := []struct {
		name     string
		src      image.Point
		hug      bool
		leftSide bool
		want     image.Rectangle
	}{
		{"tall centred", image.Pt(50, 100), false, true, image.Rect(25, 0, 75, 100)},
		{"tall hugging fold on left", image.Pt(50, 100), true, true, image.Rect(50, 0, 100, 100)},
		{"tall hugging fold on right", image.Pt(50, 100), true, false, image.Rect(0, 0, 50, 100)},
		{"wide centred vertically", image.Pt(200, 100), false, true, image.Rect(0, 25, 100, 75)},
		{"empty source", image.Pt(0, 10), false, true, image.Rectangle{}},
	}
	for _, tc := range cases {
		if got := FitRect(tc.src, area, tc.hug, tc.leftSide); got != tc.want {
			t.Fatalf("%s: FitRect = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestComposeSheet(t *testing.T) {
	opts := SheetOptions{PaperSize: "A5", DPI: 20, GuideLine: true}
	red := image.NewRGBA(image.Rect(0, 0, 10, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 10; x++ {
			red.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	sheet, err := ComposeSheet(opts, Facing{Image: red, Role: imposition.RoleRight}, Facing{})
	if err != nil {
		t.Fatalf("ComposeSheet: %v", err)
	}
	w, h, _ := SheetSize("A5", 20)
	if sheet.Bounds() != image.Rect(0, 0, w, h) {
		t.Fatalf("bounds = %v, want %dx%d", sheet.Bounds(), w, h)
	}
	fold := w / 2
	if c := sheet.RGBAAt(fold, h/2); c != GuideColor {
		t.Fatalf("fold pixel = %v, want guide colour", c)
	}
	// The spread half hugs the fold on the left side of the sheet.
	if c := sheet.RGBAAt(fold-2, h/2); c.R < 240 || c.G > 16 {
		t.Fatalf("pixel next to fold = %v, want red", c)
	}
	if c := sheet.RGBAAt(1, h/2); c != (color.RGBA{255, 255, 255, 255}) {
		t.Fatalf("outer edge pixel = %v, want white", c)
	}
	// The blank right half stays white.
	if c := sheet.RGBAAt(w-fold/2, h/2); c != (color.RGBA{255, 255, 255, 255}) {
		t.Fatalf("blank half pixel = %v, want white", c)
	}
}
