// Package pdfout renders a print order into a booklet PDF: one landscape
// page per sheet face, two booklet pages side by side on each.
package pdfout

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/cbzbinder/internal/imagerender"
	"github.com/local/cbzbinder/internal/imposition"
)

// ErrEmpty is returned when there is nothing to print.
var ErrEmpty = errors.New("print order is empty")

// Options control sheet rendering.
type Options struct {
	PaperSize string
	DPI       int
	Quality   int // JPEG quality of the sheet images
	GuideLine bool
}

// ImageSource decodes the pixels of a page.
type ImageSource interface {
	Image(p imposition.Page) (image.Image, error)
}

// Renderer turns print orders into PDFs.
type Renderer struct {
	opts  Options
	paper string
}

// New validates opts and returns a renderer.
func New(opts Options) (*Renderer, error) {
	paper, ok := imagerender.CanonicalPaper(opts.PaperSize)
	if !ok {
		return nil, fmt.Errorf("unsupported paper size %q (want one of %v)", opts.PaperSize, imagerender.PaperSizes())
	}
	if opts.DPI <= 0 {
		return nil, fmt.Errorf("invalid dpi %d", opts.DPI)
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 90
	}
	opts.PaperSize = paper
	return &Renderer{opts: opts, paper: paper}, nil
}

// ImportDescription is the pdfcpu import descriptor used for sheet images:
// a landscape page of the configured paper, fully covered by the image.
func (r *Renderer) ImportDescription() string {
	return fmt.Sprintf("f:%sL, pos:full", r.paper)
}

// Render composes every sheet face of po and writes the PDF to outPath. The
// file only appears once it is complete. progress, if set, is called after
// each face. It returns the number of PDF pages written.
func (r *Renderer) Render(ctx context.Context, po *imposition.PrintOrder, src ImageSource, outPath string, progress func()) (int, error) {
	sides := po.Sides()
	if len(sides) == 0 {
		return 0, ErrEmpty
	}

	tmpDir, err := os.MkdirTemp("", "cbzbinder-sheets-*")
	if err != nil {
		return 0, fmt.Errorf("create sheet dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	files := make([]string, 0, len(sides))
	for i, side := range sides {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		path, err := r.renderSide(tmpDir, i, po, side, src)
		if err != nil {
			return 0, err
		}
		files = append(files, path)
		if progress != nil {
			progress()
		}
	}

	imp, err := pdfcpu.ParseImportDetails(r.ImportDescription(), types.POINTS)
	if err != nil {
		return 0, fmt.Errorf("import details: %w", err)
	}

	// ImportImagesFile appends to an existing file, so build into a fresh temp.
	partial := filepath.Join(tmpDir, "booklet.pdf")
	if err := api.ImportImagesFile(files, partial, imp, model.NewDefaultConfiguration()); err != nil {
		return 0, fmt.Errorf("assemble pdf: %w", err)
	}
	n, err := api.PageCountFile(partial)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	if n != len(sides) {
		return 0, fmt.Errorf("pdf has %d pages, want %d", n, len(sides))
	}
	if err := moveFile(partial, outPath); err != nil {
		return 0, err
	}

	log.Info().Str("pdf", outPath).Int("pages", n).Int("sheets", po.Sheets()).Str("paper", r.paper).Msg("booklet pdf written")
	return n, nil
}

func (r *Renderer) renderSide(dir string, i int, po *imposition.PrintOrder, side imposition.Side, src ImageSource) (string, error) {
	left, err := facing(po, side.Left, src)
	if err != nil {
		return "", err
	}
	right, err := facing(po, side.Right, src)
	if err != nil {
		return "", err
	}
	sheet, err := imagerender.ComposeSheet(imagerender.SheetOptions{
		PaperSize: r.paper,
		DPI:       r.opts.DPI,
		GuideLine: r.opts.GuideLine,
	}, left, right)
	if err != nil {
		return "", err
	}
	data, _, err := imagerender.Encode(sheet, "jpeg", r.opts.Quality)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("side-%05d.jpg", i))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write sheet image: %w", err)
	}
	log.Trace().Int("sheet", side.Sheet).Bool("back", side.Back).Str("file", filepath.Base(path)).Msg("sheet face rendered")
	return path, nil
}

func facing(po *imposition.PrintOrder, s imposition.Slot, src ImageSource) (imagerender.Facing, error) {
	p, ok := po.Page(s)
	if !ok {
		return imagerender.Facing{}, nil
	}
	img, err := src.Image(p)
	if err != nil {
		return imagerender.Facing{}, err
	}
	return imagerender.Facing{Image: img, Role: p.Role}, nil
}

// moveFile renames src onto dst, copying when they sit on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	tmp := dst + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", dst, err)
	}
	return nil
}
