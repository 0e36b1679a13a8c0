package merge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/local/cbzbinder/internal/imposition"
)

type idRange struct {
	lo, hi uint32
	o      imposition.Override
}

// OverrideRanges hold --spread/--single id lists as ranges. They stay
// unexpanded until the page count is known, so "1-4294967295" costs nothing.
type OverrideRanges []idRange

// ParseOverrides parses id lists such as "3,7-9". Ids start at 1, and an id
// may not be forced both ways.
func ParseOverrides(spread, single []string) (OverrideRanges, error) {
	var rs OverrideRanges
	for _, set := range []struct {
		specs []string
		o     imposition.Override
	}{{spread, imposition.OverrideSpread}, {single, imposition.OverrideSingle}} {
		for _, spec := range set.specs {
			parsed, err := parseIDList(spec, set.o)
			if err != nil {
				return nil, err
			}
			for _, r := range parsed {
				for _, prev := range rs {
					if prev.o != r.o && prev.lo <= r.hi && r.lo <= prev.hi {
						return nil, fmt.Errorf("page %d is forced to both %s and %s", max(prev.lo, r.lo), prev.o, r.o)
					}
				}
				rs = append(rs, r)
			}
		}
	}
	return rs, nil
}

func parseIDList(spec string, o imposition.Override) ([]idRange, error) {
	var out []idRange
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := strconv.ParseUint(strings.TrimSpace(lo), 10, 32)
		if err != nil || a == 0 {
			return nil, fmt.Errorf("invalid page id %q", part)
		}
		b := a
		if isRange {
			if b, err = strconv.ParseUint(strings.TrimSpace(hi), 10, 32); err != nil || b < a {
				return nil, fmt.Errorf("invalid page range %q", part)
			}
		}
		out = append(out, idRange{lo: uint32(a), hi: uint32(b), o: o})
	}
	return out, nil
}

// Expand lists the ranges as per-page overrides for ids up to maxID. A range
// reaching past maxID keeps its first missing id, so the layout still
// rejects it as an unknown page.
func (rs OverrideRanges) Expand(maxID uint32) imposition.Overrides {
	ov := imposition.Overrides{}
	for _, r := range rs {
		if r.lo > maxID {
			ov.Set(r.o, r.lo)
			continue
		}
		for id := r.lo; id <= min(r.hi, maxID); id++ {
			ov.Set(r.o, id)
			if id == maxID {
				break
			}
		}
		if r.hi > maxID {
			ov.Set(r.o, maxID+1)
		}
	}
	return ov
}
