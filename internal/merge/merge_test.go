package merge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"github.com/local/cbzbinder/internal/cbz/cbztest"
	"github.com/local/cbzbinder/internal/discovery"
	"github.com/local/cbzbinder/internal/imposition"
)

func sources(t *testing.T, dir string) []discovery.Source {
	t.Helper()
	a := filepath.Join(dir, "[1]_first.cbz")
	b := filepath.Join(dir, "[2]_second.cbz")
	cbztest.Write(t, a, cbztest.Tall("01.jpg"), cbztest.Wide("02.jpg"))
	cbztest.Write(t, b, cbztest.Tall("01.jpg"), cbztest.Tall("02.jpg"))
	res := discovery.FromDirs([]string{dir})
	if len(res.Sources) != 2 {
		t.Fatalf("sources = %+v", res)
	}
	return res.Sources
}

type countingProgress struct {
	stages []string
	steps  int
}

func (p *countingProgress) Begin(stage string, _ int) { p.stages = append(p.stages, stage) }
func (p *countingProgress) Advance()                  { p.steps++ }
func (p *countingProgress) End()                      {}

func TestRunWritesArchive(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "out", "combined_output.cbz")
	prog := &countingProgress{}
	r := NewRunner(&Resolver{})
	res, err := r.Run(context.Background(), Options{
		Sources:  sources(t, dir),
		Output:   out,
		Formats:  []string{FormatCBZ},
		Progress: prog,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := res.Reading.String(), "[1, 3R, 2L, 4, 5, N, N, N]"; got != want {
		t.Fatalf("reading order = %s, want %s", got, want)
	}
	if res.Stats.Pages != 5 || res.Stats.Sheets != 2 || res.Stats.Pads != 3 {
		t.Fatalf("stats = %+v", res.Stats)
	}
	if res.CBZPath != out || res.PDFPath != "" {
		t.Fatalf("paths = %q %q", res.CBZPath, res.PDFPath)
	}

	want := []string{"00001.jpg", "00003.jpg", "00002.jpg", "00004.jpg", "00005.jpg"}
	if got := cbztest.Entries(t, out); !reflect.DeepEqual(got, want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	for _, leftover := range []string{out + ".part", out + ".lock"} {
		if _, err := os.Stat(leftover); !os.IsNotExist(err) {
			t.Fatalf("%s should not remain: %v", leftover, err)
		}
	}
	if want := []string{"scan", "archive"}; !reflect.DeepEqual(prog.stages, want) {
		t.Fatalf("stages = %v, want %v", prog.stages, want)
	}
	if prog.steps != 2+5 {
		t.Fatalf("progress steps = %d, want 7", prog.steps)
	}
}

func TestRunOverrides(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "merged.cbz")
	ov := imposition.Overrides{}
	ov.Set(imposition.OverrideSingle, 2)
	res, err := NewRunner(nil).Run(context.Background(), Options{
		Sources:   sources(t, dir),
		Output:    out,
		Formats:   []string{FormatCBZ},
		Overrides: ov,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := res.Reading.String(), "[1, 2, 3, 4]"; got != want {
		t.Fatalf("reading order = %s, want %s", got, want)
	}

	ov = imposition.Overrides{}
	ov.Set(imposition.OverrideSpread, 42)
	_, err = NewRunner(nil).Run(context.Background(), Options{
		Sources:   sources(t, t.TempDir()),
		Output:    out,
		Formats:   []string{FormatCBZ},
		Overrides: ov,
	})
	var oe *imposition.OverrideError
	if !errors.As(err, &oe) || !errors.Is(err, imposition.ErrUnknownPage) {
		t.Fatalf("err = %v, want unknown page", err)
	}

	// A range past the last page fails on its first missing id without
	// expanding the rest.
	rs, err := ParseOverrides([]string{"3-4294967295"}, nil)
	if err != nil {
		t.Fatalf("ParseOverrides: %v", err)
	}
	_, err = NewRunner(nil).Run(context.Background(), Options{
		Sources: sources(t, t.TempDir()),
		Output:  out,
		Formats: []string{FormatCBZ},
		Ranges:  rs,
	})
	if !errors.As(err, &oe) || !reflect.DeepEqual(oe.IDs, []uint32{5}) {
		t.Fatalf("err = %v, want unknown page 5", err)
	}
}

func TestRunFailures(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "merged.cbz")
	r := NewRunner(nil)

	if _, err := r.Run(context.Background(), Options{Output: out, Formats: []string{FormatCBZ}}); !errors.Is(err, ErrNoSources) {
		t.Fatalf("no sources: err = %v", err)
	}
	if _, err := r.Run(context.Background(), Options{Output: out, Formats: []string{"epub"}}); err == nil {
		t.Fatalf("expected unknown format error")
	}

	empty := filepath.Join(dir, "[1]_empty.cbz")
	cbztest.Write(t, empty, cbztest.Page{Name: "notes.txt", Raw: []byte("nothing here")})
	_, err := r.Run(context.Background(), Options{
		Sources: []discovery.Source{{Number: 1, Ref: empty}},
		Output:  out,
		Formats: []string{FormatCBZ},
	})
	if !errors.Is(err, ErrNoPages) {
		t.Fatalf("empty archive: err = %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatalf("failed run left an output behind")
	}

	_, err = r.Run(context.Background(), Options{
		Sources: []discovery.Source{{Number: 1, Ref: filepath.Join(dir, "[9]_missing.cbz")}},
		Output:  out,
		Formats: []string{FormatCBZ},
	})
	if err == nil {
		t.Fatalf("expected error for a missing archive")
	}
}

func TestRunRejectsLockedOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "merged.cbz")
	held := flock.New(out + ".lock")
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer held.Unlock()

	_, err := NewRunner(nil).Run(context.Background(), Options{
		Sources: sources(t, dir),
		Output:  out,
		Formats: []string{FormatCBZ},
	})
	if !errors.Is(err, ErrOutputLocked) {
		t.Fatalf("err = %v, want ErrOutputLocked", err)
	}
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := filepath.Join(dir, "merged.cbz")
	_, err := NewRunner(nil).Run(ctx, Options{Sources: sources(t, dir), Output: out, Formats: []string{FormatCBZ}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatalf("cancelled run left an output behind")
	}
}

func TestResolverHTTP(t *testing.T) {
	src := filepath.Join(t.TempDir(), "[1]_remote.cbz")
	cbztest.Write(t, src, cbztest.Tall("01.jpg"))
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.HasSuffix(req.URL.Path, "missing.cbz") {
			http.NotFound(w, req)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	r := &Resolver{HTTP: srv.Client()}
	dir := t.TempDir()
	local, err := r.Fetch(context.Background(), srv.URL+"/books/[1]_remote.cbz?sig=abc", dir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if filepath.Base(local) != "[1]_remote.cbz" {
		t.Fatalf("local name = %q", filepath.Base(local))
	}
	if got, _ := os.ReadFile(local); len(got) != len(data) {
		t.Fatalf("downloaded %d bytes, want %d", len(got), len(data))
	}

	_, err = r.Fetch(context.Background(), srv.URL+"/missing.cbz", dir)
	var se *HTTPStatusError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 status error", err)
	}

	if _, err := r.Fetch(context.Background(), "s3://bucket/[1].cbz", dir); err == nil {
		t.Fatalf("expected error without s3 storage")
	}
	if got, _ := r.Fetch(context.Background(), "file:///tmp/[1].cbz", dir); got != "/tmp/[1].cbz" {
		t.Fatalf("file ref = %q", got)
	}
}

func TestParseOverrides(t *testing.T) {
	rs, err := ParseOverrides([]string{"3,7-9"}, []string{" 12 "})
	if err != nil {
		t.Fatalf("ParseOverrides: %v", err)
	}
	want := imposition.Overrides{
		3: imposition.OverrideSpread, 7: imposition.OverrideSpread, 8: imposition.OverrideSpread,
		9: imposition.OverrideSpread, 12: imposition.OverrideSingle,
	}
	if got := rs.Expand(20); !reflect.DeepEqual(got, want) {
		t.Fatalf("overrides = %v, want %v", got, want)
	}
	for _, bad := range [][2][]string{
		{{"0"}, nil},
		{{"5-2"}, nil},
		{{"x"}, nil},
		{{"4"}, {"4"}},
		{{"1-10"}, {"6"}},
		{{"8"}, {"2-9"}},
	} {
		if _, err := ParseOverrides(bad[0], bad[1]); err == nil {
			t.Fatalf("ParseOverrides(%v, %v) should fail", bad[0], bad[1])
		}
	}
}

func TestOverrideRangesExpandIsBounded(t *testing.T) {
	rs, err := ParseOverrides([]string{"1-4294967295"}, []string{"900"})
	if err != nil {
		t.Fatalf("ParseOverrides: %v", err)
	}
	got := rs.Expand(5)
	want := imposition.Overrides{}
	want.Set(imposition.OverrideSpread, 1, 2, 3, 4, 5, 6)
	want.Set(imposition.OverrideSingle, 900)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expand(5) = %v, want %v", got, want)
	}
}
