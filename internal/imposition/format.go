package imposition

import "strings"

// LabelFunc names a page in a rendered layout.
type LabelFunc func(Page) string

// Format renders the reading order as "[1, X, 2, 3R, 3L, ..., N]". Interior
// blanks print as X and trailing pad as N.
func (ro *ReadingOrder) Format(label LabelFunc) string {
	return formatSlots(ro.Pages, ro.Slots, label, "N")
}

func (ro *ReadingOrder) String() string { return ro.Format(nil) }

// Format renders the print order. Every blank prints as X.
func (po *PrintOrder) Format(label LabelFunc) string {
	return formatSlots(po.Pages, po.Slots, label, "X")
}

func (po *PrintOrder) String() string { return po.Format(nil) }

func formatSlots(pages []Page, slots []Slot, label LabelFunc, pad string) string {
	if label == nil {
		label = Page.Label
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, s := range slots {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(SlotLabel(pages, s, label, pad))
	}
	b.WriteByte(']')
	return b.String()
}

// SlotLabel renders a single slot. Gaps print as X, pads as padMark.
func SlotLabel(pages []Page, s Slot, label LabelFunc, padMark string) string {
	switch s.Kind {
	case SlotGap:
		return "X"
	case SlotPad:
		return padMark
	}
	if s.Index < 0 || s.Index >= len(pages) {
		return "?"
	}
	if label == nil {
		return pages[s.Index].Label()
	}
	return label(pages[s.Index])
}

// Stats summarises a reading order.
type Stats struct {
	Pages   int // occupied slots
	Singles int
	Spreads int // split spreads, each counted once
	Gaps    int
	Pads    int
	Sheets  int
}

func (ro *ReadingOrder) Stats() Stats {
	var st Stats
	for _, s := range ro.Slots {
		switch s.Kind {
		case SlotGap:
			st.Gaps++
		case SlotPad:
			st.Pads++
		case SlotPage:
			st.Pages++
			switch ro.Pages[s.Index].Role {
			case RoleNone:
				st.Singles++
			case RoleLeft:
				st.Spreads++
			}
		}
	}
	st.Sheets = len(ro.Slots) / 4
	return st
}
