package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.Merge.Output != "combined_output.cbz" {
		t.Fatalf("Output = %q", cfg.Merge.Output)
	}
	if cfg.Merge.HalfQuality != 100 {
		t.Fatalf("HalfQuality = %d, want 100", cfg.Merge.HalfQuality)
	}
	if len(cfg.Merge.Formats) != 2 {
		t.Fatalf("Formats = %v", cfg.Merge.Formats)
	}
	if cfg.Worker.RetryBaseDelay.D() != 2*time.Second {
		t.Fatalf("RetryBaseDelay = %v", cfg.Worker.RetryBaseDelay)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MERGE_FORMATS", "PDF")
	t.Setenv("MERGE_DPI", "300")
	t.Setenv("MERGE_GUIDE_LINE", "false")
	t.Setenv("JOB_TIMEOUT", "90s")
	t.Setenv("AXIOM_DATASET", "prod")
	t.Setenv("MERGE_SCAN_WORKERS", "not-a-number")

	cfg := FromEnv()
	if len(cfg.Merge.Formats) != 1 || cfg.Merge.Formats[0] != "pdf" {
		t.Fatalf("Formats = %v", cfg.Merge.Formats)
	}
	if cfg.Merge.DPI != 300 {
		t.Fatalf("DPI = %d", cfg.Merge.DPI)
	}
	if cfg.Merge.GuideLine {
		t.Fatalf("GuideLine should be disabled")
	}
	if cfg.Worker.JobTimeout.D() != 90*time.Second {
		t.Fatalf("JobTimeout = %v", cfg.Worker.JobTimeout)
	}
	if cfg.Axiom.Dataset != "prod_cbzbinder" {
		t.Fatalf("Dataset = %q", cfg.Axiom.Dataset)
	}
	if cfg.Merge.ScanWorkers != 4 {
		t.Fatalf("invalid int should keep default, got %d", cfg.Merge.ScanWorkers)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cbzbinder.toml")
	body := `
[merge]
output = "book.cbz"
paper_size = "A3"
formats = ["cbz"]

[worker]
job_timeout = "30m"
concurrency = 6
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WORKER_CONCURRENCY", "9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Merge.Output != "book.cbz" || cfg.Merge.PaperSize != "A3" {
		t.Fatalf("file values not applied: %+v", cfg.Merge)
	}
	if cfg.Merge.DPI != 150 {
		t.Fatalf("unset keys should keep defaults, DPI = %d", cfg.Merge.DPI)
	}
	if cfg.Worker.JobTimeout.D() != 30*time.Minute {
		t.Fatalf("JobTimeout = %v", cfg.Worker.JobTimeout)
	}
	if cfg.Worker.Concurrency != 9 {
		t.Fatalf("env should win over file, Concurrency = %d", cfg.Worker.Concurrency)
	}
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[worker]\njob_timeout = \"soon\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected read error")
	}
}
