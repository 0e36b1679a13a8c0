package imagerender

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"golang.org/x/image/draw"

	"github.com/local/cbzbinder/internal/imposition"
)

// paper sizes in millimetres, long edge first
var paperSizes = map[string][2]float64{
	"A3":     {420, 297},
	"A4":     {297, 210},
	"A5":     {210, 148},
	"LETTER": {279.4, 215.9},
	"LEGAL":  {355.6, 215.9},
}

// GuideColor is the colour of the fold line.
var GuideColor = color.RGBA{R: 0xB4, G: 0xB4, B: 0xB4, A: 0xFF}

// SheetOptions describe one landscape sheet face.
type SheetOptions struct {
	PaperSize string
	DPI       int
	GuideLine bool
}

// SheetSize returns the pixel size of a landscape sheet face.
func SheetSize(paper string, dpi int) (int, int, error) {
	mm, ok := paperSizes[strings.ToUpper(paper)]
	if !ok {
		return 0, 0, fmt.Errorf("unknown paper size %q", paper)
	}
	if dpi <= 0 {
		return 0, 0, fmt.Errorf("invalid dpi %d", dpi)
	}
	px := func(v float64) int { return int(math.Round(v / 25.4 * float64(dpi))) }
	return px(mm[0]), px(mm[1]), nil
}

// PaperSizes lists the supported paper names.
func PaperSizes() []string {
	return []string{"A3", "A4", "A5", "Letter", "Legal"}
}

// CanonicalPaper returns the canonical spelling of a paper name, e.g.
// "letter" becomes "Letter".
func CanonicalPaper(name string) (string, bool) {
	for _, p := range PaperSizes() {
		if strings.EqualFold(p, name) {
			return p, true
		}
	}
	return "", false
}

// Facing is the content of one half of a sheet face. A nil Image leaves the
// half blank.
type Facing struct {
	Image image.Image
	Role  imposition.Role
}

// ComposeSheet draws two pages side by side on a white landscape sheet.
// Pages are scaled to fit their half. Spread halves are pushed against the
// fold so the artwork meets across the gutter; single pages are centred.
func ComposeSheet(opts SheetOptions, left, right Facing) (*image.RGBA, error) {
	w, h, err := SheetSize(opts.PaperSize, opts.DPI)
	if err != nil {
		return nil, err
	}
	sheet := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(sheet, sheet.Bounds(), image.White, image.Point{}, draw.Src)

	fold := w / 2
	placeHalf(sheet, image.Rect(0, 0, fold, h), left, true)
	placeHalf(sheet, image.Rect(fold, 0, w, h), right, false)

	if opts.GuideLine {
		for y := 0; y < h; y++ {
			sheet.SetRGBA(fold, y, GuideColor)
		}
	}
	return sheet, nil
}

func placeHalf(dst *image.RGBA, area image.Rectangle, f Facing, leftOfFold bool) {
	if f.Image == nil {
		return
	}
	half := f.Role == imposition.RoleLeft || f.Role == imposition.RoleRight
	r := FitRect(f.Image.Bounds().Size(), area, half, leftOfFold)
	if r.Empty() {
		return
	}
	draw.CatmullRom.Scale(dst, r, f.Image, f.Image.Bounds(), draw.Over, nil)
}

// FitRect scales src to fit inside area keeping its aspect ratio. The result
// is centred vertically. Horizontally it is centred, or pushed against the
// fold when hugFold is set.
func FitRect(src image.Point, area image.Rectangle, hugFold, leftOfFold bool) image.Rectangle {
	if src.X <= 0 || src.Y <= 0 || area.Empty() {
		return image.Rectangle{}
	}
	aw, ah := float64(area.Dx()), float64(area.Dy())
	scale := math.Min(aw/float64(src.X), ah/float64(src.Y))
	dw := int(math.Round(float64(src.X) * scale))
	dh := int(math.Round(float64(src.Y) * scale))
	if dw > area.Dx() {
		dw = area.Dx()
	}
	if dh > area.Dy() {
		dh = area.Dy()
	}

	y := area.Min.Y + (area.Dy()-dh)/2
	var x int
	switch {
	case hugFold && leftOfFold:
		x = area.Max.X - dw
	case hugFold:
		x = area.Min.X
	default:
		x = area.Min.X + (area.Dx()-dw)/2
	}
	return image.Rect(x, y, x+dw, y+dh)
}
