package imposition

import (
	"errors"
	"fmt"
)

var (
	// ErrBrokenSpread is returned when a Left half is not immediately followed
	// by its Right half, or a Right half appears on its own.
	ErrBrokenSpread = errors.New("broken spread pairing")
	// ErrUnsplitSpread is returned when a page still classified as a spread
	// reaches the assembler.
	ErrUnsplitSpread = errors.New("spread page was not split")
	// ErrInvariant signals an internal layout invariant violation.
	ErrInvariant = errors.New("layout invariant violated")
	// ErrUnknownPage is returned for overrides naming a page id that does not exist.
	ErrUnknownPage = errors.New("unknown page id")
)

// SpreadError identifies the page that broke spread pairing.
type SpreadError struct {
	PageID uint32
	Role   Role
	Reason string
	kind   error
}

func (e *SpreadError) Error() string {
	return fmt.Sprintf("page %d (%s): %s", e.PageID, e.Role, e.Reason)
}

func (e *SpreadError) Unwrap() error { return e.kind }

func brokenSpread(p Page, reason string) error {
	return &SpreadError{PageID: p.ID, Role: p.Role, Reason: reason, kind: ErrBrokenSpread}
}

// OverrideError lists override keys that matched no page.
type OverrideError struct {
	IDs []uint32
}

func (e *OverrideError) Error() string {
	return fmt.Sprintf("override for unknown page id(s) %v", e.IDs)
}

func (e *OverrideError) Unwrap() error { return ErrUnknownPage }
