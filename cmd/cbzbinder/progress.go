package main

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// barProgress draws one progress bar per merge stage.
type barProgress struct {
	out   io.Writer
	color bool
	bar   *progressbar.ProgressBar
}

var stageTitles = map[string]string{
	"scan":    "Scanning archives",
	"archive": "Writing archive",
	"booklet": "Rendering booklet",
}

// newBarProgress returns nil when out is not a terminal.
func newBarProgress(out *os.File, color bool) *barProgress {
	fd := out.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return nil
	}
	return &barProgress{out: out, color: color}
}

func (p *barProgress) Begin(stage string, total int) {
	title := stageTitles[stage]
	if title == "" {
		title = stage
	}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription(title),
		progressbar.OptionEnableColorCodes(p.color),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *barProgress) Advance() {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

func (p *barProgress) End() {
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}
