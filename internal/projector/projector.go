// Package projector renders a document and its annotations to markup and
// reads that markup back.
//
// The markup is a sequence of <p> elements, one per paragraph. Annotated text
// is wrapped in marker spans:
//
//	<span data-annotation-id="ann_1" data-kind="comment" data-state="posted" class="annotation comment posted">text</span>
//
// A paragraph is cut at every annotation boundary and each piece is wrapped
// in the markers covering it, outermost first in list order. Anchors that
// begin on a paragraph break, end right after one, or are empty also get a
// zero-width marker so that their exact range survives a round trip.
// Suggestions carry their original text in data-original and render a diff
// when the proposed text differs.
package projector

import (
	"html"
	"sort"
	"strings"

	"editpool/api/internal/annotation"
	"editpool/api/internal/document"
)

const (
	attrID       = "data-annotation-id"
	attrKind     = "data-kind"
	attrState    = "data-state"
	attrOriginal = "data-original"
	attrLegacyID = "data-comment-id"
)

type Projector struct {
	diff DiffMode
}

func New(mode DiffMode) *Projector {
	if mode == "" {
		mode = DiffLCS
	}
	return &Projector{diff: mode}
}

func (p *Projector) DiffMode() DiffMode {
	return p.diff
}

// Project renders doc with list applied. list is expected in display order.
func (p *Projector) Project(doc *document.Document, list []annotation.Annotation) string {
	runes := doc.Runes()
	var b strings.Builder
	start := 0
	for {
		end := start
		for end < len(runes) && runes[end] != document.ParagraphBreak {
			end++
		}
		p.paragraph(&b, runes, list, start, end)
		if end >= len(runes) {
			break
		}
		start = end + 1
	}
	return b.String()
}

func (p *Projector) paragraph(b *strings.Builder, runes []rune, list []annotation.Annotation, ps, pe int) {
	cuts := []int{ps, pe}
	for _, a := range list {
		r := a.Range
		if r.Empty() {
			if ps <= r.From && r.From <= pe {
				cuts = append(cuts, r.From)
			}
			continue
		}
		if ps < r.From && r.From < pe {
			cuts = append(cuts, r.From)
		}
		if ps < r.To && r.To < pe {
			cuts = append(cuts, r.To)
		}
	}
	sort.Ints(cuts)

	b.WriteString("<p>")
	for i, x := range cuts {
		if i > 0 && cuts[i-1] == x {
			continue
		}
		p.edges(b, runes, list, x, ps, pe)
		if next := nextCut(cuts, i); next > x {
			p.segment(b, runes, list, x, next)
		}
	}
	b.WriteString("</p>")
}

func nextCut(cuts []int, i int) int {
	for j := i + 1; j < len(cuts); j++ {
		if cuts[j] != cuts[i] {
			return cuts[j]
		}
	}
	return cuts[i]
}

// edges writes the zero-width markers that sit at position x.
func (p *Projector) edges(b *strings.Builder, runes []rune, list []annotation.Annotation, x, ps, pe int) {
	for _, a := range list {
		r := a.Range
		switch {
		case r.Empty() && r.From == x:
		case !r.Empty() && x == pe && r.From == pe:
		case !r.Empty() && x == ps && r.To == ps && ps > 0:
		default:
			continue
		}
		openMarker(b, a, "")
		if r.Empty() && a.Kind == annotation.KindSuggestion && a.Text != "" {
			renderDiff(b, Diff(p.diff, "", a.Text))
		}
		b.WriteString("</span>")
	}
}

func (p *Projector) segment(b *strings.Builder, runes []rune, list []annotation.Annotation, x, y int) {
	text := string(runes[x:y])
	var covering []annotation.Annotation
	for _, a := range list {
		if !a.Range.Empty() && a.Range.From <= x && y <= a.Range.To {
			covering = append(covering, a)
		}
	}
	var suggestion *annotation.Annotation
	for i, a := range covering {
		original := ""
		if a.Kind == annotation.KindSuggestion && a.Range.From == x && a.Range.To == y {
			suggestion = &covering[i]
			original = text
		}
		openMarker(b, a, original)
	}
	switch {
	case suggestion != nil && suggestion.Text != text:
		renderDiff(b, Diff(p.diff, text, suggestion.Text))
	default:
		b.WriteString(html.EscapeString(text))
	}
	for range covering {
		b.WriteString("</span>")
	}
}

func openMarker(b *strings.Builder, a annotation.Annotation, original string) {
	b.WriteString(`<span `)
	b.WriteString(attrID)
	b.WriteString(`="`)
	b.WriteString(html.EscapeString(a.ID))
	b.WriteString(`" `)
	b.WriteString(attrKind)
	b.WriteString(`="`)
	b.WriteString(string(a.Kind))
	b.WriteString(`" `)
	b.WriteString(attrState)
	b.WriteString(`="`)
	b.WriteString(string(a.State))
	b.WriteString(`"`)
	if a.Kind == annotation.KindSuggestion {
		b.WriteString(` `)
		b.WriteString(attrOriginal)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(original))
		b.WriteString(`"`)
	}
	b.WriteString(` class="annotation `)
	b.WriteString(string(a.Kind))
	b.WriteString(` `)
	b.WriteString(string(a.State))
	b.WriteString(`">`)
}
