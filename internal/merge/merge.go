// Package merge runs one merge: scan the source archives, lay the pages out
// and write the merged archive and booklet PDF.
package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/local/cbzbinder/internal/cbz"
	"github.com/local/cbzbinder/internal/discovery"
	"github.com/local/cbzbinder/internal/filetype"
	"github.com/local/cbzbinder/internal/imposition"
	"github.com/local/cbzbinder/internal/metrics"
	"github.com/local/cbzbinder/internal/pdfout"
)

const (
	FormatCBZ = "cbz"
	FormatPDF = "pdf"
)

var (
	// ErrNoSources is returned when a run has no archives to merge.
	ErrNoSources = errors.New("no source archives")
	// ErrNoPages is returned when the archives hold no usable page images.
	ErrNoPages = errors.New("no page images found")
	// ErrOutputLocked is returned when another run is writing the same output.
	ErrOutputLocked = errors.New("output is locked by another run")
)

// Options describe a merge run.
type Options struct {
	Sources     []discovery.Source
	Output      string   // merged archive path; the PDF goes to Output+".pdf"
	Formats     []string // any of "cbz", "pdf"
	Overrides   imposition.Overrides
	// Ranges are parsed id lists, expanded once the page count is known and
	// applied over Overrides.
	Ranges      OverrideRanges
	HalfQuality int
	ScanWorkers int
	Render      pdfout.Options
	Progress    Progress
}

// Progress receives stage updates. All methods may be called from the
// running goroutine only.
type Progress interface {
	Begin(stage string, total int)
	Advance()
	End()
}

// Result summarises a finished run.
type Result struct {
	Reading  *imposition.ReadingOrder
	Print    *imposition.PrintOrder
	Stats    imposition.Stats
	CBZPath  string
	PDFPath  string
	Duration time.Duration
}

// Runner executes merges.
type Runner struct {
	Resolver *Resolver
	Detector *filetype.Detector
}

// NewRunner returns a runner fetching remote sources through res.
func NewRunner(res *Resolver) *Runner {
	return &Runner{Resolver: res, Detector: filetype.New()}
}

// PDFPath is where the booklet for output is written.
func PDFPath(output string) string { return output + ".pdf" }

// ValidateFormats checks a format list.
func ValidateFormats(formats []string) error {
	if len(formats) == 0 {
		return errors.New("no output format selected")
	}
	for _, f := range formats {
		if f != FormatCBZ && f != FormatPDF {
			return fmt.Errorf("unknown output format %q", f)
		}
	}
	return nil
}

func wants(formats []string, f string) bool {
	for _, v := range formats {
		if v == f {
			return true
		}
	}
	return false
}

// Run performs the whole merge. Outputs are written to temporary files and
// moved into place only when complete.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	res, err := r.run(ctx, opts)
	result := "success"
	switch {
	case errors.Is(err, context.Canceled):
		result = "cancelled"
	case err != nil:
		result = "failed"
	}
	metrics.ObserveMerge(result, time.Since(start))
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

func (r *Runner) run(ctx context.Context, opts Options) (*Result, error) {
	if err := ValidateFormats(opts.Formats); err != nil {
		return nil, err
	}
	if opts.Output == "" {
		return nil, errors.New("output path is empty")
	}
	var renderer *pdfout.Renderer
	if wants(opts.Formats, FormatPDF) {
		var err error
		if renderer, err = pdfout.New(opts.Render); err != nil {
			return nil, err
		}
	}

	if dir := filepath.Dir(opts.Output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	lock := flock.New(opts.Output + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock output: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrOutputLocked, opts.Output)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}()

	sc, err := r.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer sc.Close()

	res, err := sc.Plan(sc.Overrides(opts.Overrides, opts.Ranges))
	if err != nil {
		return nil, err
	}
	metrics.ObserveLayout(res.Stats)

	prog := progressOrNop(opts.Progress)
	if wants(opts.Formats, FormatCBZ) {
		prog.Begin("archive", res.Stats.Pages)
		err := writeAtomic(opts.Output, func(f *os.File) error {
			_, err := cbz.WriteArchive(ctx, f, res.Reading, sc.Library, prog.Advance)
			return err
		})
		prog.End()
		if err != nil {
			return nil, err
		}
		res.CBZPath = opts.Output
	}
	if renderer != nil {
		prog.Begin("booklet", len(res.Print.Slots)/2)
		_, err := renderer.Render(ctx, res.Print, sc.Library, PDFPath(opts.Output), prog.Advance)
		prog.End()
		if err != nil {
			return nil, err
		}
		res.PDFPath = PDFPath(opts.Output)
	}

	log.Info().
		Str("output", opts.Output).
		Int("pages", res.Stats.Pages).
		Int("spreads", res.Stats.Spreads).
		Int("gaps", res.Stats.Gaps).
		Int("pads", res.Stats.Pads).
		Int("sheets", res.Stats.Sheets).
		Msg("merge complete")
	return res, nil
}

// Scanned holds the pages of a run and the open archives behind them.
type Scanned struct {
	Pages   []imposition.Page
	Library *cbz.Library
	workDir string
}

// Plan lays the scanned pages out.
func (s *Scanned) Plan(ov imposition.Overrides) (*Result, error) {
	ro, po, err := imposition.Plan(s.Pages, ov)
	if err != nil {
		return nil, err
	}
	return &Result{Reading: ro, Print: po, Stats: ro.Stats()}, nil
}

// MaxID is the highest page id of the scan.
func (s *Scanned) MaxID() uint32 {
	var m uint32
	for _, p := range s.Pages {
		m = max(m, p.ID)
	}
	return m
}

// Overrides combines explicit overrides with ranges bounded by the scan.
func (s *Scanned) Overrides(base imposition.Overrides, ranges OverrideRanges) imposition.Overrides {
	if len(ranges) == 0 {
		return base
	}
	ov := ranges.Expand(s.MaxID())
	for id, o := range base {
		if _, ok := ov[id]; !ok {
			ov[id] = o
		}
	}
	return ov
}

// Close releases archives and removes downloaded sources.
func (s *Scanned) Close() error {
	err := s.Library.Close()
	if s.workDir != "" {
		os.RemoveAll(s.workDir)
	}
	return err
}

// Scan fetches and inspects every source archive. Archives are scanned in
// parallel; page ids follow source order starting at 1.
func (r *Runner) Scan(ctx context.Context, opts Options) (*Scanned, error) {
	if len(opts.Sources) == 0 {
		return nil, ErrNoSources
	}
	workDir, err := os.MkdirTemp("", "cbzbinder-src-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	type scanned struct {
		local   string
		entries []cbz.Entry
	}
	results := make([]scanned, len(opts.Sources))
	prog := progressOrNop(opts.Progress)
	prog.Begin("scan", len(opts.Sources))

	g, gctx := errgroup.WithContext(ctx)
	workers := opts.ScanWorkers
	if workers <= 0 {
		workers = 4
	}
	g.SetLimit(workers)
	done := make(chan struct{}, len(opts.Sources))
	for i, src := range opts.Sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dir := filepath.Join(workDir, strconv.Itoa(i))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			local, err := r.Resolver.Fetch(gctx, src.Ref, dir)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", src.Ref, err)
			}
			entries, err := cbz.ScanArchive(local, r.Detector)
			if err != nil {
				return err
			}
			results[i] = scanned{local: local, entries: entries}
			done <- struct{}{}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(done)
	}()
	for range done {
		prog.Advance()
	}
	err = g.Wait()
	prog.End()
	if err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}

	var pages []imposition.Page
	next := uint32(1)
	for i, sc := range results {
		if len(sc.entries) == 0 {
			log.Warn().Str("archive", opts.Sources[i].Ref).Msg("archive has no page images")
		}
		pages = append(pages, cbz.Pages(sc.local, sc.entries, next)...)
		next += uint32(len(sc.entries))
	}
	if len(pages) == 0 {
		os.RemoveAll(workDir)
		return nil, ErrNoPages
	}
	log.Debug().Int("archives", len(results)).Int("pages", len(pages)).Msg("sources scanned")
	return &Scanned{Pages: pages, Library: cbz.NewLibrary(opts.HalfQuality), workDir: workDir}, nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

type nopProgress struct{}

func (nopProgress) Begin(string, int) {}
func (nopProgress) Advance()          {}
func (nopProgress) End()              {}

func progressOrNop(p Progress) Progress {
	if p == nil {
		return nopProgress{}
	}
	return p
}
