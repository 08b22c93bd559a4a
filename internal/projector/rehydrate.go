package projector

import (
	"fmt"

	"editpool/api/internal/annotation"
	"editpool/api/internal/document"
)

// Rehydrate parses markup and merges it with stored annotation metadata.
// Markers decide where an annotation sits; stored records supply text,
// author, timestamps and lifecycle state. A stored annotation without a marker
// keeps its stored range when that range still fits the document. Markers
// without a stored record come back with no text and no author.
// The result keeps the stored order, followed by marker-only anchors.
func Rehydrate(markup string, stored []annotation.Annotation) (*document.Document, []annotation.Annotation, error) {
	doc, anchors, err := Parse(markup)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]Anchor, len(anchors))
	for _, m := range anchors {
		byID[m.ID] = m
	}

	seen := make(map[string]bool, len(stored))
	out := make([]annotation.Annotation, 0, len(stored)+len(anchors))
	for _, s := range stored {
		if seen[s.ID] {
			return nil, nil, fmt.Errorf("%w: duplicate record %s", ErrDeserialization, s.ID)
		}
		seen[s.ID] = true

		m, ok := byID[s.ID]
		if !ok {
			if err := s.Range.Validate(doc.Len()); err != nil {
				return nil, nil, fmt.Errorf("%w: record %s: %v", ErrDeserialization, s.ID, err)
			}
			out = append(out, s)
			continue
		}
		a := s
		a.Range = m.Range
		if a.Kind == "" {
			a.Kind = m.Kind
		}
		if a.State == "" {
			a.State = m.State
		}
		if a.Kind == annotation.KindSuggestion {
			a.OriginalText = doc.Slice(m.Range.From, m.Range.To)
		}
		out = append(out, a)
	}

	for _, m := range anchors {
		if seen[m.ID] {
			continue
		}
		out = append(out, annotation.Annotation{
			ID:           m.ID,
			Kind:         m.Kind,
			State:        m.State,
			Range:        m.Range,
			Text:         m.Text,
			OriginalText: m.OriginalText,
		})
	}
	return doc, out, nil
}
