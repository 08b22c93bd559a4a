package anchor

import (
	"testing"

	"editpool/api/internal/document"
)

func TestMap(t *testing.T) {
	cases := []struct {
		name          string
		in            Range
		edit          document.Edit
		want          Range
		wantCollapsed bool
	}{
		{name: "edit after range", in: Range{2, 5}, edit: document.Edit{Pos: 7, Insert: "xx"}, want: Range{2, 5}},
		{name: "insert before range", in: Range{2, 5}, edit: document.Edit{Pos: 0, Insert: "abc"}, want: Range{5, 8}},
		{name: "delete before range", in: Range{4, 6}, edit: document.Edit{Pos: 0, Delete: 2}, want: Range{2, 4}},
		{name: "insert at from stays outside", in: Range{2, 5}, edit: document.Edit{Pos: 2, Insert: "x"}, want: Range{3, 6}},
		{name: "insert at to stays outside", in: Range{2, 5}, edit: document.Edit{Pos: 5, Insert: "x"}, want: Range{2, 5}},
		{name: "insert inside extends", in: Range{2, 5}, edit: document.Edit{Pos: 3, Insert: "xy"}, want: Range{2, 7}},
		{name: "delete inside shrinks", in: Range{2, 8}, edit: document.Edit{Pos: 3, Delete: 2}, want: Range{2, 6}},
		{name: "delete over start", in: Range{2, 8}, edit: document.Edit{Pos: 0, Delete: 4}, want: Range{0, 4}},
		{name: "delete over end", in: Range{2, 8}, edit: document.Edit{Pos: 6, Delete: 4}, want: Range{2, 6}},
		{name: "delete whole range collapses", in: Range{2, 5}, edit: document.Edit{Pos: 1, Delete: 6}, want: Range{1, 1}, wantCollapsed: true},
		{name: "replace whole range collapses", in: Range{2, 5}, edit: document.Edit{Pos: 1, Delete: 6, Insert: "zz"}, want: Range{1, 1}, wantCollapsed: true},
		{name: "exact delete collapses", in: Range{2, 5}, edit: document.Edit{Pos: 2, Delete: 3}, want: Range{2, 2}, wantCollapsed: true},
		{name: "empty range shifts", in: Range{4, 4}, edit: document.Edit{Pos: 1, Insert: "ab"}, want: Range{6, 6}},
		{name: "empty range at insertion stays", in: Range{4, 4}, edit: document.Edit{Pos: 4, Insert: "ab"}, want: Range{4, 4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, collapsed := Map(tc.in, tc.edit)
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			if collapsed != tc.wantCollapsed {
				t.Fatalf("expected collapsed=%v, got %v", tc.wantCollapsed, collapsed)
			}
		})
	}
}

func TestMapKeepsDisjointRangesDisjoint(t *testing.T) {
	ranges := []Range{{0, 3}, {3, 6}, {8, 10}, {12, 12}}
	edits := []document.Edit{
		{Pos: 3, Insert: "abc"},
		{Pos: 2, Delete: 5, Insert: "q"},
		{Pos: 9, Delete: 1},
		{Pos: 0, Delete: 12, Insert: "long replacement"},
		{Pos: 6, Delete: 2, Insert: "\n"},
	}
	for _, e := range edits {
		for i := range ranges {
			for j := i + 1; j < len(ranges); j++ {
				a, _ := Map(ranges[i], e)
				b, _ := Map(ranges[j], e)
				if !a.Empty() && !b.Empty() && a.Overlaps(b) {
					t.Fatalf("edit %+v made %v and %v overlap (%v, %v)", e, ranges[i], ranges[j], a, b)
				}
			}
		}
	}
}

func TestIntersects(t *testing.T) {
	r := Range{2, 5}
	cases := []struct {
		name string
		edit document.Edit
		want bool
	}{
		{name: "insert at from", edit: document.Edit{Pos: 2, Insert: "x"}, want: false},
		{name: "insert at to", edit: document.Edit{Pos: 5, Insert: "x"}, want: false},
		{name: "insert inside", edit: document.Edit{Pos: 3, Insert: "x"}, want: true},
		{name: "delete before", edit: document.Edit{Pos: 0, Delete: 2}, want: false},
		{name: "delete overlapping", edit: document.Edit{Pos: 1, Delete: 2}, want: true},
		{name: "delete after", edit: document.Edit{Pos: 5, Delete: 3}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Intersects(r, tc.edit); got != tc.want {
				t.Fatalf("Intersects = %v, want %v", got, tc.want)
			}
		})
	}
}
