// Package anchor models the spans of document text that annotations attach to.
package anchor

import (
	"errors"
	"fmt"
	"unicode"

	"editpool/api/internal/document"
)

var ErrInvalidRange = errors.New("invalid range")

// Range is a half-open span [From, To) of rune offsets into a document.
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// New validates 0 <= from <= to <= docLen.
func New(from, to, docLen int) (Range, error) {
	if from > to {
		return Range{}, fmt.Errorf("%w: from %d is after to %d", ErrInvalidRange, from, to)
	}
	if from < 0 || to > docLen {
		return Range{}, fmt.Errorf("%w: [%d,%d) outside document of length %d", ErrInvalidRange, from, to, docLen)
	}
	return Range{From: from, To: to}, nil
}

// Validate checks r against a document length.
func (r Range) Validate(docLen int) error {
	_, err := New(r.From, r.To, docLen)
	return err
}

func (r Range) Len() int {
	return r.To - r.From
}

func (r Range) Empty() bool {
	return r.From == r.To
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.From, r.To)
}

// Overlaps reports whether two ranges share text. An empty range overlaps a
// non-empty one only when it sits strictly inside it, and another empty range
// only at the same position.
func (r Range) Overlaps(o Range) bool {
	switch {
	case r.Empty() && o.Empty():
		return r.From == o.From
	case r.Empty():
		return o.From < r.From && r.From < o.To
	case o.Empty():
		return r.From < o.From && o.From < r.To
	default:
		return r.From < o.To && o.From < r.To
	}
}

// Contains reports whether pos lies inside the range.
func (r Range) Contains(pos int) bool {
	return r.From <= pos && pos < r.To
}

// TextBetween returns the text covered by r.
func TextBetween(doc *document.Document, r Range) (string, error) {
	if err := r.Validate(doc.Len()); err != nil {
		return "", err
	}
	return doc.Slice(r.From, r.To), nil
}

// Trim narrows a raw selection so it does not start or end on whitespace.
// A selection made only of whitespace collapses to its centre.
func Trim(doc *document.Document, r Range) (Range, error) {
	if err := r.Validate(doc.Len()); err != nil {
		return Range{}, err
	}
	from, to := r.From, r.To
	for from < to && unicode.IsSpace(doc.At(from)) {
		from++
	}
	if from == to {
		center := r.From + r.Len()/2
		return Range{From: center, To: center}, nil
	}
	for to > from && unicode.IsSpace(doc.At(to-1)) {
		to--
	}
	return Range{From: from, To: to}, nil
}

// SpansParagraphs reports whether the range covers a paragraph break.
func SpansParagraphs(doc *document.Document, r Range) bool {
	for i := r.From; i < r.To && i < doc.Len(); i++ {
		if doc.At(i) == document.ParagraphBreak {
			return true
		}
	}
	return false
}
