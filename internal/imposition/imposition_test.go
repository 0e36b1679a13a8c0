package imposition_test

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/local/cbzbinder/internal/imposition"
)

// pagesFrom builds already-split pages from a trace such as "1 2 3L 3R".
// The spread number is kept in Provenance.Name so layouts render with the
// labels used in the traces.
func pagesFrom(t *testing.T, trace string) []imposition.Page {
	t.Helper()
	fields := strings.Fields(trace)
	pages := make([]imposition.Page, 0, len(fields))
	for i, f := range fields {
		p := imposition.Page{ID: uint32(i + 1), Width: 800, Height: 1200}
		switch {
		case strings.HasSuffix(f, "L"):
			p.Role = imposition.RoleLeft
			f = strings.TrimSuffix(f, "L")
		case strings.HasSuffix(f, "R"):
			p.Role = imposition.RoleRight
			f = strings.TrimSuffix(f, "R")
		}
		p.Provenance.Name = f
		pages = append(pages, p)
	}
	return pages
}

func traceLabel(p imposition.Page) string { return p.Provenance.Name + p.Role.Suffix() }

func TestAssembleAndImposeTraces(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		reading string
		print   string
	}{
		{
			name:    "scenario A",
			input:   "1 2 3L 3R 4L 4R 5 6 7L 7R",
			reading: "[1, X, 2, 3R, 3L, 4R, 4L, 5, 6, 7R, 7L, N]",
			print:   "[1, X, 7L, X, 2, 7R, 6, 3R, 3L, 5, 4L, 4R]",
		},
		{
			name:    "scenario B",
			input:   "1 2 3 4L 4R 5 6 7",
			reading: "[1, 2, 3, 4R, 4L, 5, 6, 7]",
			print:   "[1, 7, 6, 2, 3, 5, 4L, 4R]",
		},
		{
			name:    "scenario C",
			input:   "1 2L 2R 3L 3R",
			reading: "[1, 2R, 2L, 3R, 3L, N, N, N]",
			print:   "[1, X, X, 2R, 2L, X, 3L, 3R]",
		},
		{
			name:    "trailing single after spreads",
			input:   "1 2 3L 3R 4L 4R 5",
			reading: "[1, X, 2, 3R, 3L, 4R, 4L, 5]",
			print:   "[1, 5, 4L, X, 2, 4R, 3L, 3R]",
		},
		{
			name:    "single between spreads",
			input:   "1 2L 2R 3 4L 4R",
			reading: "[1, 2R, 2L, X, 3, 4R, 4L, N]",
			print:   "[1, X, 4L, 2R, 2L, 4R, 3, X]",
		},
		{
			name:    "leading spread",
			input:   "1L 1R 2 3L 3R",
			reading: "[X, 1R, 1L, X, 2, 3R, 3L, N]",
			print:   "[X, X, 3L, 1R, 1L, 3R, 2, X]",
		},
		{
			name:    "leading spread with trailing single",
			input:   "1L 1R 2 3L 3R 4",
			reading: "[X, 1R, 1L, X, 2, 3R, 3L, 4]",
			print:   "[X, 4, 3L, 1R, 1L, 3R, 2, X]",
		},
		{
			name:    "leading spread then singles",
			input:   "1L 1R 2 3 4L 4R 5 6",
			reading: "[X, 1R, 1L, 2, 3, 4R, 4L, 5, 6, N, N, N]",
			print:   "[X, X, X, 1R, 1L, X, 6, 2, 3, 5, 4L, 4R]",
		},
		{
			name:    "trailing spread",
			input:   "1 2 3L 3R 4 5 6L 6R",
			reading: "[1, X, 2, 3R, 3L, 4, 5, 6R, 6L, N, N, N]",
			print:   "[1, X, X, X, 2, X, 6L, 3R, 3L, 6R, 5, 4]",
		},
		{
			name:    "singles only",
			input:   "1 2 3 4 5",
			reading: "[1, 2, 3, 4, 5, N, N, N]",
			print:   "[1, X, X, 2, 3, X, 5, 4]",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ro, err := imposition.Assemble(pagesFrom(t, tc.input))
			if err != nil {
				t.Fatalf("Assemble: %v", err)
			}
			if got := ro.Format(traceLabel); got != tc.reading {
				t.Fatalf("reading order\n got %s\nwant %s", got, tc.reading)
			}
			po, err := imposition.Impose(ro)
			if err != nil {
				t.Fatalf("Impose: %v", err)
			}
			if got := po.Format(traceLabel); got != tc.print {
				t.Fatalf("print order\n got %s\nwant %s", got, tc.print)
			}
		})
	}
}

func TestAssembleEmpty(t *testing.T) {
	ro, err := imposition.Assemble(nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(ro.Slots) != 0 || ro.Content != 0 {
		t.Fatalf("expected empty layout, got %v", ro)
	}
	po, err := imposition.Impose(ro)
	if err != nil {
		t.Fatalf("Impose: %v", err)
	}
	if len(po.Slots) != 0 || len(po.Sides()) != 0 {
		t.Fatalf("expected empty print order, got %v", po)
	}
}

func TestAssembleContentBoundary(t *testing.T) {
	ro, err := imposition.Assemble(pagesFrom(t, "1 2L 2R 3L 3R"))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if ro.Content != 5 {
		t.Fatalf("Content = %d, want 5", ro.Content)
	}
	for i := ro.Content; i < len(ro.Slots); i++ {
		if ro.Slots[i].Kind != imposition.SlotPad {
			t.Fatalf("slot %d kind = %v, want pad", i, ro.Slots[i].Kind)
		}
	}
}

func TestAssembleBrokenSpread(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		pageID uint32
	}{
		{"left at end", "1 2 3L", 3},
		{"left followed by single", "1 2L 3", 2},
		{"lone right", "1 2R 3", 2},
		{"lone right first", "1R 2", 1},
		{"leading left alone", "1L", 1},
		{"left followed by left", "1 2L 3L 3R", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ro, err := imposition.Assemble(pagesFrom(t, tc.input))
			if err == nil {
				t.Fatalf("expected error, got layout %v", ro)
			}
			if ro != nil {
				t.Fatalf("expected no partial layout, got %v", ro)
			}
			if !errors.Is(err, imposition.ErrBrokenSpread) {
				t.Fatalf("error %v is not ErrBrokenSpread", err)
			}
			var se *imposition.SpreadError
			if !errors.As(err, &se) {
				t.Fatalf("error %T is not *SpreadError", err)
			}
			if se.PageID != tc.pageID {
				t.Fatalf("PageID = %d, want %d", se.PageID, tc.pageID)
			}
		})
	}
}

func TestAssembleRejectsUnsplitSpread(t *testing.T) {
	pages := []imposition.Page{
		{ID: 1, Width: 800, Height: 1200},
		{ID: 2, Width: 1600, Height: 1200, Role: imposition.RoleSpread},
	}
	_, err := imposition.Assemble(pages)
	if !errors.Is(err, imposition.ErrUnsplitSpread) {
		t.Fatalf("expected ErrUnsplitSpread, got %v", err)
	}
}

func TestImposeSlotsRejectsPartialSheets(t *testing.T) {
	slots := []imposition.Slot{imposition.Occupied(0), imposition.Gap(), imposition.Occupied(1)}
	if _, err := imposition.ImposeSlots(slots); !errors.Is(err, imposition.ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}

// randomSplitPages produces a page run that respects spread pairing.
func randomSplitPages(r *rand.Rand, n int) []imposition.Page {
	pages := make([]imposition.Page, 0, n)
	for len(pages) < n {
		id := uint32(len(pages) + 1)
		if r.Intn(3) == 0 {
			pages = append(pages,
				imposition.Page{ID: id, Width: 800, Height: 1200, Role: imposition.RoleLeft},
				imposition.Page{ID: id + 1, Width: 800, Height: 1200, Role: imposition.RoleRight},
			)
			continue
		}
		pages = append(pages, imposition.Page{ID: id, Width: 800, Height: 1200})
	}
	return pages
}

func TestAssembleProperties(t *testing.T) {
	r := rand.New(rand.NewSource(20240611))
	for iter := 0; iter < 500; iter++ {
		pages := randomSplitPages(r, r.Intn(60))
		ro, err := imposition.Assemble(pages)
		if err != nil {
			t.Fatalf("iteration %d: Assemble: %v", iter, err)
		}
		if len(ro.Slots)%4 != 0 {
			t.Fatalf("iteration %d: length %d is not a multiple of 4", iter, len(ro.Slots))
		}

		pos := make(map[int]int, len(pages))
		var order []int
		for k, s := range ro.Slots {
			if s.Blank() {
				continue
			}
			pos[s.Index] = k
			order = append(order, s.Index)
		}
		if len(pos) != len(pages) {
			t.Fatalf("iteration %d: %d pages placed, want %d", iter, len(pos), len(pages))
		}

		for idx, p := range pages {
			if p.Role != imposition.RoleLeft {
				continue
			}
			l, rgt := pos[idx], pos[idx+1]
			if l%2 != 0 {
				t.Fatalf("iteration %d: left half of page %d at odd slot %d", iter, p.ID, l)
			}
			if rgt != l-1 {
				t.Fatalf("iteration %d: right half at %d, left half at %d", iter, rgt, l)
			}
		}

		// Reading order keeps every single page in input order.
		last := -1
		for _, idx := range order {
			if pages[idx].Role == imposition.RoleRight {
				continue
			}
			if idx < last {
				t.Fatalf("iteration %d: page %d placed out of order", iter, pages[idx].ID)
			}
			last = idx
		}
	}
}

func TestImposePairingLaw(t *testing.T) {
	for _, n := range []int{0, 4, 8, 12, 16, 64} {
		in := make([]imposition.Slot, n)
		for i := range in {
			in[i] = imposition.Occupied(i)
		}
		out, err := imposition.ImposeSlots(in)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if len(out) != n {
			t.Fatalf("n=%d: output length %d", n, len(out))
		}
		for m := 0; m < n/2; m++ {
			a, b := out[2*m].Index, out[2*m+1].Index
			lo, hi := m, n-1-m
			if m%2 == 0 {
				if a != lo || b != hi {
					t.Fatalf("n=%d step %d: got (%d,%d) want (%d,%d)", n, m, a, b, lo, hi)
				}
			} else if a != hi || b != lo {
				t.Fatalf("n=%d step %d: got (%d,%d) want (%d,%d)", n, m, a, b, hi, lo)
			}
		}
	}
}

func TestPrintOrderSides(t *testing.T) {
	ro, err := imposition.Assemble(pagesFrom(t, "1 2 3 4L 4R 5 6 7"))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	po, err := imposition.Impose(ro)
	if err != nil {
		t.Fatalf("Impose: %v", err)
	}
	sides := po.Sides()
	if len(sides) != 4 || po.Sheets() != 2 {
		t.Fatalf("got %d sides on %d sheets", len(sides), po.Sheets())
	}
	want := []struct {
		sheet       int
		back        bool
		left, right string
	}{
		{0, false, "1", "7"},
		{0, true, "6", "2"},
		{1, false, "3", "5"},
		{1, true, "4L", "4R"},
	}
	for i, w := range want {
		s := sides[i]
		l := imposition.SlotLabel(po.Pages, s.Left, traceLabel, "X")
		r := imposition.SlotLabel(po.Pages, s.Right, traceLabel, "X")
		if s.Sheet != w.sheet || s.Back != w.back || l != w.left || r != w.right {
			t.Fatalf("side %d = {%d %v %s %s}, want %+v", i, s.Sheet, s.Back, l, r, w)
		}
	}
}

func TestReadingOrderStats(t *testing.T) {
	ro, err := imposition.Assemble(pagesFrom(t, "1 2 3L 3R 4L 4R 5 6 7L 7R"))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	got := ro.Stats()
	want := imposition.Stats{Pages: 10, Singles: 4, Spreads: 3, Gaps: 1, Pads: 1, Sheets: 3}
	if got != want {
		t.Fatalf("Stats = %+v, want %+v", got, want)
	}
}

func TestReadingOrderValidate(t *testing.T) {
	pages := pagesFrom(t, "1 2L 2R")
	cases := []struct {
		name    string
		slots   []imposition.Slot
		content int
		ok      bool
	}{
		{"valid", []imposition.Slot{imposition.Occupied(0), imposition.Occupied(2), imposition.Occupied(1), imposition.Pad()}, 3, true},
		{"partial sheet", []imposition.Slot{imposition.Occupied(0), imposition.Occupied(2), imposition.Occupied(1)}, 3, false},
		{"right on even slot", []imposition.Slot{imposition.Occupied(0), imposition.Gap(), imposition.Occupied(2), imposition.Occupied(1)}, 4, false},
		{"halves apart", []imposition.Slot{imposition.Occupied(0), imposition.Occupied(2), imposition.Gap(), imposition.Occupied(1)}, 4, false},
		{"pad inside content", []imposition.Slot{imposition.Occupied(0), imposition.Occupied(2), imposition.Occupied(1), imposition.Pad()}, 4, false},
		{"missing page", []imposition.Slot{imposition.Occupied(0), imposition.Occupied(2), imposition.Occupied(1), imposition.Occupied(9)}, 4, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ro := &imposition.ReadingOrder{Pages: pages, Slots: tc.slots, Content: tc.content}
			err := ro.Validate()
			if tc.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tc.ok && !errors.Is(err, imposition.ErrInvariant) {
				t.Fatalf("expected ErrInvariant, got %v", err)
			}
		})
	}
}
