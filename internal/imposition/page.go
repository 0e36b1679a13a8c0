// Package imposition resolves double-page spreads in a comic page sequence
// and lays the result out for saddle-stitch booklet printing.
//
// The package works purely on page descriptors. Pixels, archives and files
// are handled by the callers.
package imposition

import "strconv"

// Role tags a page's place in a spread.
type Role uint8

const (
	// RoleNone is an ordinary single page.
	RoleNone Role = iota
	// RoleLeft is the left pixel half of a split spread.
	RoleLeft
	// RoleRight is the right pixel half of a split spread.
	RoleRight
	// RoleSpread marks a page classified as a spread that has not been split yet.
	RoleSpread
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleLeft:
		return "left"
	case RoleRight:
		return "right"
	case RoleSpread:
		return "spread"
	default:
		return "role(" + strconv.Itoa(int(r)) + ")"
	}
}

// Suffix is the short marker used in layout renderings ("L", "R", "S" or "").
func (r Role) Suffix() string {
	switch r {
	case RoleLeft:
		return "L"
	case RoleRight:
		return "R"
	case RoleSpread:
		return "S"
	}
	return ""
}

// Provenance locates the pixels of a page. The engine carries it untouched.
type Provenance struct {
	Archive string // archive ref the page came from
	Name    string // entry name inside the archive
	Ext     string // output extension, e.g. ".jpg"
}

// Page describes one page image.
type Page struct {
	ID         uint32
	Width      uint32
	Height     uint32
	Role       Role
	Provenance Provenance
}

// Label is the default short form of a page: its id plus the role suffix.
func (p Page) Label() string {
	return strconv.FormatUint(uint64(p.ID), 10) + p.Role.Suffix()
}

// IsHalf reports whether p is one half of a split spread.
func (p Page) IsHalf() bool { return p.Role == RoleLeft || p.Role == RoleRight }
