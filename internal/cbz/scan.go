// Package cbz reads page images out of comic archives and writes the merged
// archive.
package cbz

import (
	"bufio"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"

	"github.com/local/cbzbinder/internal/discovery"
	"github.com/local/cbzbinder/internal/filetype"
	"github.com/local/cbzbinder/internal/imposition"
)

// sniffLen is how much of an entry is peeked for type detection.
const sniffLen = 3072

// Entry is one page image found in an archive.
type Entry struct {
	Name   string
	MIME   string
	Ext    string
	Width  int
	Height int
}

// ScanArchive lists the decodable page images of the archive at path in
// natural name order. Directories, metadata files and images with a zero
// dimension are skipped.
func ScanArchive(path string, det *filetype.Detector) ([]Entry, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer zr.Close()

	var entries []Entry
	for _, f := range zr.File {
		if skipEntry(f) {
			continue
		}
		e, ok, err := probe(f, det)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if ok {
			entries = append(entries, e)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return discovery.NaturalLess(entries[i].Name, entries[j].Name)
	})

	log.Debug().Str("archive", path).Int("pages", len(entries)).Msg("archive scanned")
	return entries, nil
}

// Pages turns scanned entries into classified page descriptors. Ids continue
// from firstID.
func Pages(archive string, entries []Entry, firstID uint32) []imposition.Page {
	pages := make([]imposition.Page, len(entries))
	for i, e := range entries {
		w, h := uint32(e.Width), uint32(e.Height)
		pages[i] = imposition.Page{
			ID:     firstID + uint32(i),
			Width:  w,
			Height: h,
			Role:   imposition.Classify(w, h),
			Provenance: imposition.Provenance{
				Archive: archive,
				Name:    e.Name,
				Ext:     e.Ext,
			},
		}
	}
	return pages
}

func skipEntry(f *zip.File) bool {
	if f.FileInfo().IsDir() {
		return true
	}
	name := f.Name
	if strings.HasPrefix(name, "__MACOSX/") || strings.Contains(name, "/__MACOSX/") {
		return true
	}
	return strings.HasPrefix(path.Base(name), ".")
}

func probe(f *zip.File, det *filetype.Detector) (Entry, bool, error) {
	rc, err := f.Open()
	if err != nil {
		return Entry{}, false, fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	br := bufio.NewReaderSize(rc, sniffLen)
	head, _ := br.Peek(sniffLen)
	info := det.DetectBytes(head, f.Name)
	if !info.IsImage() {
		log.Debug().Str("entry", f.Name).Str("mime", info.MIMEType).Msg("skipping non-image entry")
		return Entry{}, false, nil
	}

	cfg, _, err := image.DecodeConfig(br)
	if err != nil {
		log.Warn().Err(err).Str("entry", f.Name).Msg("skipping undecodable image")
		return Entry{}, false, nil
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		log.Warn().Str("entry", f.Name).Int("width", cfg.Width).Int("height", cfg.Height).Msg("skipping zero sized image")
		return Entry{}, false, nil
	}
	return Entry{Name: f.Name, MIME: info.MIMEType, Ext: info.Extension, Width: cfg.Width, Height: cfg.Height}, true, nil
}
