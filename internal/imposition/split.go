package imposition

// Split expands every pending spread into a Left/Right pair.
//
// The original page keeps its (shifted) id and becomes the Left half. The
// Right half takes the next id and every later page moves up by one, so ids
// stay dense when the input ids were dense. Pages that are not pending
// spreads pass through with only their id shifted. Each half is w/2 pixels
// wide, matching the crop. The input is not modified.
func Split(pages []Page) []Page {
	out := make([]Page, 0, len(pages)+countSpreads(pages))
	var shift uint32
	for _, p := range pages {
		p.ID += shift
		if p.Role != RoleSpread {
			out = append(out, p)
			continue
		}
		left := p
		left.Role = RoleLeft
		left.Width = p.Width / 2
		right := left
		right.Role = RoleRight
		right.ID = left.ID + 1
		out = append(out, left, right)
		shift++
	}
	return out
}

func countSpreads(pages []Page) int {
	n := 0
	for _, p := range pages {
		if p.Role == RoleSpread {
			n++
		}
	}
	return n
}
