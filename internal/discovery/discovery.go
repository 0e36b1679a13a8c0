// Package discovery finds and orders the source archives of a merge run.
//
// Archive order comes from a "[N]" marker in the file name, e.g.
// "[12]_chapter.cbz". Files without a marker are skipped and the first file
// seen for a number wins.
package discovery

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Source is one numbered archive.
type Source struct {
	Number int
	Ref    string // local path or s3:// / http(s):// reference
}

// Skipped records an input that did not become a Source.
type Skipped struct {
	Ref    string
	Reason string
}

// Result is the ordered set of sources plus what was left out.
type Result struct {
	Sources []Source
	Skipped []Skipped
}

var numberRe = regexp.MustCompile(`\[(\d+)\]`)

// ParseNumber extracts the "[N]" archive number from a file name.
func ParseNumber(name string) (int, bool) {
	m := numberRe.FindStringSubmatch(baseName(name))
	if m == nil {
		return -1, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1, false
	}
	return n, true
}

// IsRemote reports whether ref points at object storage or a URL.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "s3://") || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// FromFiles orders explicitly named archives. Local paths must exist and be
// regular files; remote refs are taken as given.
func FromFiles(refs []string) Result {
	var b builder
	for _, ref := range refs {
		if !IsRemote(ref) {
			fi, err := os.Stat(ref)
			if err != nil || !fi.Mode().IsRegular() {
				b.skip(ref, "not a regular file")
				continue
			}
		}
		b.add(ref)
	}
	return b.result()
}

// FromDirs orders every numbered archive found directly inside dirs.
// Directories that cannot be read are reported as skipped.
func FromDirs(dirs []string) Result {
	var b builder
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			b.skip(dir, fmt.Sprintf("read directory: %v", err))
			continue
		}
		for _, e := range entries {
			ref := filepath.Join(dir, e.Name())
			if !e.Type().IsRegular() {
				continue
			}
			b.add(ref)
		}
	}
	return b.result()
}

type builder struct {
	seen    map[int]string
	sources []Source
	skipped []Skipped
}

func (b *builder) add(ref string) {
	n, ok := ParseNumber(ref)
	if !ok {
		b.skip(ref, "no [N] number in name")
		return
	}
	if b.seen == nil {
		b.seen = make(map[int]string)
	}
	if first, dup := b.seen[n]; dup {
		b.skip(ref, fmt.Sprintf("duplicate number %d, keeping %s", n, first))
		return
	}
	b.seen[n] = ref
	b.sources = append(b.sources, Source{Number: n, Ref: ref})
	log.Debug().Int("number", n).Str("archive", ref).Msg("archive accepted")
}

func (b *builder) skip(ref, reason string) {
	b.skipped = append(b.skipped, Skipped{Ref: ref, Reason: reason})
	log.Warn().Str("archive", ref).Str("reason", reason).Msg("archive skipped")
}

func (b *builder) result() Result {
	sort.SliceStable(b.sources, func(i, j int) bool { return b.sources[i].Number < b.sources[j].Number })
	return Result{Sources: b.sources, Skipped: b.skipped}
}

func baseName(ref string) string {
	if IsRemote(ref) {
		if i := strings.IndexAny(ref, "?#"); i >= 0 {
			ref = ref[:i]
		}
		return path.Base(ref)
	}
	return filepath.Base(ref)
}
