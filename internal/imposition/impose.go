package imposition

import "fmt"

// PrintOrder is the slot sequence in sheet order. Consecutive slot pairs are
// the two halves of one sheet side, front and back alternating.
type PrintOrder struct {
	Pages []Page
	Slots []Slot
}

// Side is one printed face of a sheet.
type Side struct {
	Sheet int  // zero-based sheet number
	Back  bool // false for the front face
	Left  Slot
	Right Slot
}

// Sides splits the print order into sheet faces.
func (po *PrintOrder) Sides() []Side {
	sides := make([]Side, 0, len(po.Slots)/2)
	for m := 0; m+1 < len(po.Slots); m += 2 {
		face := m / 2
		sides = append(sides, Side{
			Sheet: face / 2,
			Back:  face%2 == 1,
			Left:  po.Slots[m],
			Right: po.Slots[m+1],
		})
	}
	return sides
}

// Sheets is the number of physical sheets.
func (po *PrintOrder) Sheets() int { return len(po.Slots) / 4 }

// Page returns the page held by s.
func (po *PrintOrder) Page(s Slot) (Page, bool) {
	if s.Blank() || s.Index < 0 || s.Index >= len(po.Pages) {
		return Page{}, false
	}
	return po.Pages[s.Index], true
}

// ImposeSlots reorders a reading sequence into saddle-stitch print order by
// pairing the outermost remaining slots and walking inwards. Pairs at odd
// positions are flipped so the back of every sheet reads correctly once
// folded. The length must be a multiple of four.
func ImposeSlots(slots []Slot) ([]Slot, error) {
	n := len(slots)
	if n%4 != 0 {
		return nil, fmt.Errorf("%w: %d slots is not a multiple of four", ErrInvariant, n)
	}
	out := make([]Slot, 0, n)
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		if i%2 == 1 {
			out = append(out, slots[j], slots[i])
		} else {
			out = append(out, slots[i], slots[j])
		}
	}
	return out, nil
}

// Impose maps a reading order onto print order, sharing its page arena.
func Impose(ro *ReadingOrder) (*PrintOrder, error) {
	slots, err := ImposeSlots(ro.Slots)
	if err != nil {
		return nil, err
	}
	return &PrintOrder{Pages: ro.Pages, Slots: slots}, nil
}

// Plan runs the whole engine: overrides, split, assemble and impose.
func Plan(pages []Page, ov Overrides) (*ReadingOrder, *PrintOrder, error) {
	classified, err := ApplyOverrides(pages, ov)
	if err != nil {
		return nil, nil, err
	}
	ro, err := Assemble(Split(classified))
	if err != nil {
		return nil, nil, err
	}
	po, err := Impose(ro)
	if err != nil {
		return nil, nil, err
	}
	return ro, po, nil
}
