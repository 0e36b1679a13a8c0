package imposition

import "fmt"

// ReadingOrder is the page sequence as a reader flips through the booklet,
// blanks included. Slots index into Pages.
type ReadingOrder struct {
	Pages []Page
	Slots []Slot
	// Content is the number of slots before the trailing pad.
	Content int
}

// Page returns the page held by s.
func (ro *ReadingOrder) Page(s Slot) (Page, bool) {
	if s.Blank() || s.Index < 0 || s.Index >= len(ro.Pages) {
		return Page{}, false
	}
	return ro.Pages[s.Index], true
}

// Assemble places split pages so that both halves of every spread land on
// the two facing pages of an open booklet, then pads the sequence to a
// multiple of four.
//
// The pair is emitted right half first. The right half takes the odd slot and
// the left half the following even slot, which is the facing pair for a
// right-to-left book. A blank is inserted ahead of a pair whenever the next
// free slot would split it across a leaf.
//
// Any broken pairing fails the whole call; no partial layout is returned.
func Assemble(pages []Page) (*ReadingOrder, error) {
	n := len(pages)
	ro := &ReadingOrder{Pages: pages}
	if n == 0 {
		return ro, nil
	}

	out := make([]Slot, 0, n+n/2+4)
	i := 0
	switch first := pages[0]; first.Role {
	case RoleNone:
		out = append(out, Occupied(0))
		i = 1
	case RoleLeft:
		if n < 2 || pages[1].Role != RoleRight {
			return nil, brokenSpread(first, "left half is not followed by its right half")
		}
		// Slot 0 stays blank so the pair opens on slots 1 and 2.
		out = append(out, Gap(), Occupied(1), Occupied(0))
		i = 2
	default:
		return nil, roleError(first)
	}

	for i < n {
		p := pages[i]
		onRight := (len(out)-1)%2 == 0
		switch p.Role {
		case RoleNone:
			if onRight && i < n-1 && pages[i+1].Role != RoleNone {
				out = append(out, Gap())
			}
			out = append(out, Occupied(i))
			i++
		case RoleLeft:
			if i+1 >= n || pages[i+1].Role != RoleRight {
				return nil, brokenSpread(p, "left half is not followed by its right half")
			}
			if !onRight {
				out = append(out, Gap())
			}
			out = append(out, Occupied(i+1), Occupied(i))
			i += 2
		default:
			return nil, roleError(p)
		}
	}

	ro.Content = len(out)
	for len(out)%4 != 0 {
		out = append(out, Pad())
	}
	ro.Slots = out
	if err := ro.Validate(); err != nil {
		return nil, err
	}
	return ro, nil
}

// Validate checks the layout invariants: whole sheets, every Right half on
// an odd slot directly followed by its Left half, and pads only after the
// content.
func (ro *ReadingOrder) Validate() error {
	n := len(ro.Slots)
	if n%4 != 0 {
		return fmt.Errorf("%w: %d slots is not a multiple of four", ErrInvariant, n)
	}
	if ro.Content < 0 || ro.Content > n {
		return fmt.Errorf("%w: content length %d outside %d slots", ErrInvariant, ro.Content, n)
	}
	for k, s := range ro.Slots {
		if (s.Kind == SlotPad) != (k >= ro.Content) {
			return fmt.Errorf("%w: slot %d: pad and content boundary disagree", ErrInvariant, k)
		}
		p, ok := ro.Page(s)
		if !ok {
			if s.Kind == SlotPage {
				return fmt.Errorf("%w: slot %d refers to missing page %d", ErrInvariant, k, s.Index)
			}
			continue
		}
		switch p.Role {
		case RoleRight:
			if k%2 != 1 {
				return fmt.Errorf("%w: right half of page %d on even slot %d", ErrInvariant, p.ID, k)
			}
			if k+1 >= n {
				return fmt.Errorf("%w: right half of page %d has no facing left half", ErrInvariant, p.ID)
			}
			if l, ok := ro.Page(ro.Slots[k+1]); !ok || l.Role != RoleLeft {
				return fmt.Errorf("%w: right half of page %d has no facing left half", ErrInvariant, p.ID)
			}
		case RoleLeft:
			if k == 0 {
				return fmt.Errorf("%w: left half of page %d opens the book", ErrInvariant, p.ID)
			}
			if r, ok := ro.Page(ro.Slots[k-1]); !ok || r.Role != RoleRight {
				return fmt.Errorf("%w: left half of page %d does not face its right half", ErrInvariant, p.ID)
			}
		case RoleSpread:
			return fmt.Errorf("%w: unsplit spread %d in layout", ErrInvariant, p.ID)
		}
	}
	return nil
}

func roleError(p Page) error {
	if p.Role == RoleSpread {
		return &SpreadError{PageID: p.ID, Role: p.Role, Reason: "spread must be split before assembly", kind: ErrUnsplitSpread}
	}
	if p.Role == RoleRight {
		return brokenSpread(p, "right half without a preceding left half")
	}
	return &SpreadError{PageID: p.ID, Role: p.Role, Reason: "unknown role", kind: ErrInvariant}
}
