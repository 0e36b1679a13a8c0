package cbz

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/klauspost/compress/zip"

	"github.com/local/cbzbinder/internal/imagerender"
	"github.com/local/cbzbinder/internal/imposition"
)

// Library resolves pages to pixels. It keeps each source archive open until
// Close and is safe for concurrent use.
type Library struct {
	// HalfQuality is the JPEG quality used when re-encoding split halves.
	HalfQuality int

	mu       sync.Mutex
	archives map[string]*openArchive
	closed   bool
}

type openArchive struct {
	rc    *zip.ReadCloser
	files map[string]*zip.File
}

// NewLibrary returns an empty library.
func NewLibrary(halfQuality int) *Library {
	return &Library{HalfQuality: halfQuality, archives: make(map[string]*openArchive)}
}

func (l *Library) archive(path string) (*openArchive, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errors.New("library is closed")
	}
	if a, ok := l.archives[path]; ok {
		return a, nil
	}
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	a := &openArchive{rc: rc, files: make(map[string]*zip.File, len(rc.File))}
	for _, f := range rc.File {
		a.files[f.Name] = f
	}
	l.archives[path] = a
	return a, nil
}

// Raw returns the stored bytes of the page's source entry.
func (l *Library) Raw(p imposition.Page) ([]byte, error) {
	a, err := l.archive(p.Provenance.Archive)
	if err != nil {
		return nil, err
	}
	f, ok := a.files[p.Provenance.Name]
	if !ok {
		return nil, fmt.Errorf("page %d: entry %s not found in %s", p.ID, p.Provenance.Name, p.Provenance.Archive)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("page %d: open entry: %w", p.ID, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("page %d: read entry: %w", p.ID, err)
	}
	return data, nil
}

// Image decodes the page. Halves of a spread are cropped from the source.
func (l *Library) Image(p imposition.Page) (image.Image, error) {
	data, err := l.Raw(p)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("page %d: decode %s: %w", p.ID, p.Provenance.Name, err)
	}
	if !p.IsHalf() {
		return img, nil
	}
	half, err := imagerender.CropHalf(img, p.Role)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", p.ID, err)
	}
	return half, nil
}

// Bytes returns the encoded page as it should be stored in the merged
// archive, with its extension. Single pages are passed through untouched;
// JPEG halves are re-encoded as JPEG and every other half as PNG.
func (l *Library) Bytes(p imposition.Page) ([]byte, string, error) {
	if !p.IsHalf() {
		data, err := l.Raw(p)
		return data, p.Provenance.Ext, err
	}
	img, err := l.Image(p)
	if err != nil {
		return nil, "", err
	}
	format := "png"
	if p.Provenance.Ext == ".jpg" {
		format = "jpeg"
	}
	data, ext, err := imagerender.Encode(img, format, l.HalfQuality)
	if err != nil {
		return nil, "", fmt.Errorf("page %d: %w", p.ID, err)
	}
	return data, ext, nil
}

// Close closes every open archive.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	var errs []error
	for path, a := range l.archives {
		if err := a.rc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
	}
	l.archives = map[string]*openArchive{}
	return errors.Join(errs...)
}
