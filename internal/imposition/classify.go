package imposition

import "sort"

// Classify tags a page as a pending spread when it is strictly wider than tall.
// Square pages are singles.
func Classify(width, height uint32) Role {
	if width > height {
		return RoleSpread
	}
	return RoleNone
}

// Override forces the classification of a single page.
type Override uint8

const (
	OverrideAuto Override = iota
	OverrideSingle
	OverrideSpread
)

func (o Override) String() string {
	switch o {
	case OverrideSingle:
		return "single"
	case OverrideSpread:
		return "spread"
	}
	return "auto"
}

// Overrides maps pre-split page ids to a forced classification.
type Overrides map[uint32]Override

// Set records o for every id.
func (ov Overrides) Set(o Override, ids ...uint32) {
	for _, id := range ids {
		ov[id] = o
	}
}

// ApplyOverrides returns a copy of pages with forced roles applied. It must
// run before Split, while ids still match discovery order. An override naming
// an unknown page fails the whole call.
func ApplyOverrides(pages []Page, ov Overrides) ([]Page, error) {
	out := make([]Page, len(pages))
	copy(out, pages)
	if len(ov) == 0 {
		return out, nil
	}

	seen := make(map[uint32]bool, len(ov))
	for i := range out {
		o, ok := ov[out[i].ID]
		if !ok {
			continue
		}
		seen[out[i].ID] = true
		switch o {
		case OverrideSingle:
			if out[i].Role == RoleSpread {
				out[i].Role = RoleNone
			}
		case OverrideSpread:
			if out[i].Role == RoleNone {
				out[i].Role = RoleSpread
			}
		}
	}

	var missing []uint32
	for id := range ov {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		return nil, &OverrideError{IDs: missing}
	}
	return out, nil
}
