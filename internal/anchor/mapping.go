package anchor

import "editpool/api/internal/document"

// Map carries r through an edit. Text inserted exactly at either boundary stays
// outside the range; text inserted strictly inside extends it. A range whose
// contents are deleted collapses to the edit position. collapsed is true when a
// non-empty range became empty.
func Map(r Range, e document.Edit) (mapped Range, collapsed bool) {
	from := mapFrom(r.From, e)
	to := mapTo(r.To, e)
	if from > to {
		from, to = e.Pos, e.Pos
	}
	mapped = Range{From: from, To: to}
	return mapped, !r.Empty() && mapped.Empty()
}

// Intersects reports whether an edit touches text inside r. Inserting at a
// boundary does not count.
func Intersects(r Range, e document.Edit) bool {
	if e.Delete == 0 {
		return r.From < e.Pos && e.Pos < r.To
	}
	if r.Empty() {
		return e.Pos < r.From && r.From < e.End()
	}
	return e.Pos < r.To && r.From < e.End()
}

func mapFrom(pos int, e document.Edit) int {
	switch {
	case pos < e.Pos:
		return pos
	case pos >= e.End():
		return pos + e.Delta()
	default:
		return e.Pos + e.InsertLen()
	}
}

func mapTo(pos int, e document.Edit) int {
	switch {
	case pos <= e.Pos:
		return pos
	case pos >= e.End():
		return pos + e.Delta()
	default:
		return e.Pos
	}
}
