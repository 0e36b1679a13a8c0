package cbz_test

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/local/cbzbinder/internal/cbz"
	"github.com/local/cbzbinder/internal/cbz/cbztest"
	"github.com/local/cbzbinder/internal/filetype"
	"github.com/local/cbzbinder/internal/imposition"
)

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "[1]_sample.cbz")
	png := cbztest.Wide("p2.jpg")
	png.PNG = true // named .jpg, stored as PNG
	cbztest.Write(t, path,
		cbztest.Tall("p10.jpg"),
		png,
		cbztest.Tall("p1.jpg"),
		cbztest.Page{Name: "ComicInfo.xml", Raw: []byte("<ComicInfo/>")},
		cbztest.Tall("__MACOSX/._p1.jpg"),
		cbztest.Page{Name: "broken.jpg", Raw: []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0}},
	)
	return path
}

func TestScanArchive(t *testing.T) {
	path := writeSample(t)
	entries, err := cbz.ScanArchive(path, filetype.New())
	if err != nil {
		t.Fatalf("ScanArchive: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	if want := []string{"p1.jpg", "p2.jpg", "p10.jpg"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
	if e := entries[1]; e.Width != 40 || e.Height != 30 || e.Ext != ".png" || e.MIME != "image/png" {
		t.Fatalf("p2 entry = %+v", e)
	}

	pages := cbz.Pages(path, entries, 5)
	if pages[0].ID != 5 || pages[2].ID != 7 {
		t.Fatalf("ids = %d..%d, want 5..7", pages[0].ID, pages[2].ID)
	}
	if pages[1].Role != imposition.RoleSpread || pages[0].Role != imposition.RoleNone {
		t.Fatalf("roles = %v %v", pages[0].Role, pages[1].Role)
	}
	if pages[1].Provenance.Archive != path || pages[1].Provenance.Name != "p2.jpg" {
		t.Fatalf("provenance = %+v", pages[1].Provenance)
	}
}

func TestScanArchiveNotZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "[1]_bad.cbz")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := cbz.ScanArchive(path, filetype.New()); err == nil {
		t.Fatalf("expected error for a non-zip archive")
	}
}

func TestLibraryAndWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "[1]_book.cbz")
	cbztest.Write(t, path, cbztest.Tall("a.jpg"), cbztest.Wide("b.jpg"))

	entries, err := cbz.ScanArchive(path, filetype.New())
	if err != nil {
		t.Fatalf("ScanArchive: %v", err)
	}
	ro, _, err := imposition.Plan(cbz.Pages(path, entries, 1), nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got := ro.String(); got != "[1, 3R, 2L, N]" {
		t.Fatalf("reading order = %s", got)
	}

	lib := cbz.NewLibrary(100)
	defer lib.Close()

	right, _ := ro.Page(ro.Slots[1])
	img, err := lib.Image(right)
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 20, 30) {
		t.Fatalf("half bounds = %v", img.Bounds())
	}
	data, ext, err := lib.Bytes(right)
	if err != nil || ext != ".jpg" {
		t.Fatalf("Bytes = %q, %v", ext, err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width != 20 {
		t.Fatalf("half config = %+v, %v", cfg, err)
	}

	out := filepath.Join(t.TempDir(), "out.cbz")
	f, err := os.Create(out)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	calls := 0
	n, err := cbz.WriteArchive(context.Background(), f, ro, lib, func() { calls++ })
	if err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n != 3 || calls != 3 {
		t.Fatalf("wrote %d entries with %d progress calls, want 3", n, calls)
	}
	want := []string{"00001.jpg", "00003.jpg", "00002.jpg"}
	if got := cbztest.Entries(t, out); !reflect.DeepEqual(got, want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
}

func TestWriteArchiveCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "[1]_book.cbz")
	cbztest.Write(t, path, cbztest.Tall("a.jpg"))
	entries, err := cbz.ScanArchive(path, filetype.New())
	if err != nil {
		t.Fatalf("ScanArchive: %v", err)
	}
	ro, err := imposition.Assemble(cbz.Pages(path, entries, 1))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	lib := cbz.NewLibrary(100)
	defer lib.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	if _, err := cbz.WriteArchive(ctx, &buf, ro, lib, nil); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
