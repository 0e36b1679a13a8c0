package dispatcher

import (
    "os"
    "path/filepath"
    "strings"
    "time"
)

// CleanupResults removes job result directories under dir whose last change
// is older than maxAge.
func CleanupResults(dir string, maxAge time.Duration) {
    entries, err := os.ReadDir(dir)
    if err != nil { return }
    now := time.Now()
    for _, e := range entries {
        if !e.IsDir() { continue }
        info, err := e.Info()
        if err != nil { continue }
        if now.Sub(info.ModTime()) >= maxAge {
            _ = os.RemoveAll(filepath.Join(dir, e.Name()))
        }
    }
}

// CleanupTemps removes source work dirs left behind by interrupted merges
// (cbzbinder-src-*) older than the provided age threshold.
func CleanupTemps(maxAge time.Duration) {
    dir := os.TempDir()
    entries, err := os.ReadDir(dir)
    if err != nil { return }
    now := time.Now()
    for _, e := range entries {
        if !e.IsDir() || !strings.HasPrefix(e.Name(), "cbzbinder-") { continue }
        info, err := e.Info()
        if err != nil { continue }
        if now.Sub(info.ModTime()) >= maxAge {
            _ = os.RemoveAll(filepath.Join(dir, e.Name()))
        }
    }
}
