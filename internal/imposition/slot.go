package imposition

// SlotKind distinguishes occupied slots from the two kinds of blank slot.
type SlotKind uint8

const (
	// SlotGap is a blank inserted so a spread lands on facing pages.
	SlotGap SlotKind = iota
	// SlotPad is a trailing blank that rounds the layout up to whole sheets.
	SlotPad
	// SlotPage holds a page.
	SlotPage
)

// Slot is one position of a layout. Occupied slots refer to a page by its
// index in the layout's page arena.
type Slot struct {
	Kind  SlotKind
	Index int
}

// Gap returns an interior blank slot.
func Gap() Slot { return Slot{Kind: SlotGap} }

// Pad returns a trailing blank slot.
func Pad() Slot { return Slot{Kind: SlotPad} }

// Occupied returns a slot holding the page at arena index i.
func Occupied(i int) Slot { return Slot{Kind: SlotPage, Index: i} }

// Blank reports whether the slot prints as an empty page.
func (s Slot) Blank() bool { return s.Kind != SlotPage }
