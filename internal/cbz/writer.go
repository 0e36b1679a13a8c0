package cbz

import (
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"

	"github.com/local/cbzbinder/internal/imposition"
)

// PageSource yields the stored form of a page.
type PageSource interface {
	Bytes(p imposition.Page) ([]byte, string, error)
}

// EntryName is the archive entry name of a page: its id zero padded to five
// digits plus the extension.
func EntryName(p imposition.Page, ext string) string {
	return fmt.Sprintf("%05d%s", p.ID, ext)
}

// WriteArchive writes every occupied slot of ro, in reading order, to w as a
// zip archive. Blank slots are skipped. Images are stored without
// recompression. progress, if set, is called after each page.
func WriteArchive(ctx context.Context, w io.Writer, ro *imposition.ReadingOrder, src PageSource, progress func()) (int, error) {
	zw := zip.NewWriter(w)
	written := 0
	for _, s := range ro.Slots {
		p, ok := ro.Page(s)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return written, err
		}
		data, ext, err := src.Bytes(p)
		if err != nil {
			return written, err
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: EntryName(p, ext), Method: zip.Store})
		if err != nil {
			return written, fmt.Errorf("create entry for page %d: %w", p.ID, err)
		}
		if _, err := fw.Write(data); err != nil {
			return written, fmt.Errorf("write page %d: %w", p.ID, err)
		}
		written++
		if progress != nil {
			progress()
		}
	}
	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("finish archive: %w", err)
	}
	log.Debug().Int("entries", written).Msg("archive written")
	return written, nil
}
