package projector

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"editpool/api/internal/anchor"
	"editpool/api/internal/annotation"
	"editpool/api/internal/document"
)

var ErrDeserialization = errors.New("malformed annotation markup")

// Anchor is a marker recovered from markup. Text and OriginalText are only
// known for suggestions.
type Anchor struct {
	ID           string
	Kind         annotation.Kind
	State        annotation.State
	Range        anchor.Range
	Text         string
	OriginalText string
}

type parser struct {
	text    []rune
	open    bool
	closed  int
	anchors []*Anchor
	byID    map[string]*Anchor
}

// Parse reads markup produced by Project, or the older span[data-comment-id]
// form, back into a document and the anchors found in it. Anchors are returned
// in order of first appearance.
func Parse(markup string) (*document.Document, []Anchor, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	ps := &parser{byID: map[string]*Anchor{}}
	for _, n := range nodes {
		if err := ps.walk(n); err != nil {
			return nil, nil, err
		}
	}
	ps.closeParagraph()

	anchors := make([]Anchor, 0, len(ps.anchors))
	for _, a := range ps.anchors {
		anchors = append(anchors, *a)
	}
	return document.New(string(ps.text)), anchors, nil
}

func (ps *parser) openParagraph() {
	if ps.open {
		return
	}
	if ps.closed > 0 {
		ps.text = append(ps.text, document.ParagraphBreak)
	}
	ps.open = true
}

func (ps *parser) closeParagraph() {
	if !ps.open {
		return
	}
	ps.open = false
	ps.closed++
}

func (ps *parser) walk(n *html.Node) error {
	switch n.Type {
	case html.TextNode:
		if !ps.open && strings.TrimSpace(n.Data) == "" {
			return nil
		}
		ps.openParagraph()
		ps.text = append(ps.text, []rune(document.Normalize(n.Data))...)
		return nil
	case html.ElementNode:
	case html.DocumentNode:
		return ps.children(n)
	default:
		return nil
	}

	switch {
	case isMarker(n):
		return ps.marker(n)
	case n.DataAtom == atom.Br:
		ps.openParagraph()
		ps.closeParagraph()
		ps.openParagraph()
		return nil
	case n.DataAtom == atom.Script || n.DataAtom == atom.Style || n.DataAtom == atom.Template:
		return nil
	case isBlock(n):
		ps.closeParagraph()
		if !hasBlockChild(n) {
			ps.openParagraph()
		}
		if err := ps.children(n); err != nil {
			return err
		}
		ps.closeParagraph()
		return nil
	default:
		return ps.children(n)
	}
}

func (ps *parser) children(n *html.Node) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := ps.walk(c); err != nil {
			return err
		}
	}
	return nil
}

func (ps *parser) marker(n *html.Node) error {
	id, kind, state, err := markerAttrs(n)
	if err != nil {
		return err
	}
	ps.openParagraph()
	start := len(ps.text)

	var text, original string
	if kind == annotation.KindSuggestion {
		text = textContent(n, atom.Del)
		if v, ok := attr(n, attrOriginal); ok {
			original = document.Normalize(v)
			ps.text = append(ps.text, []rune(original)...)
		} else {
			original = document.Normalize(textContent(n, atom.Ins))
			ps.text = append(ps.text, []rune(original)...)
		}
	} else if err := ps.children(n); err != nil {
		return err
	}

	r := anchor.Range{From: start, To: len(ps.text)}
	if a, ok := ps.byID[id]; ok {
		if a.Kind != kind || a.State != state {
			return fmt.Errorf("%w: marker %s changes kind or state", ErrDeserialization, id)
		}
		a.Range.From = min(a.Range.From, r.From)
		a.Range.To = max(a.Range.To, r.To)
		a.Text += text
		a.OriginalText += original
		return nil
	}
	a := &Anchor{ID: id, Kind: kind, State: state, Range: r, Text: text, OriginalText: original}
	ps.byID[id] = a
	ps.anchors = append(ps.anchors, a)
	return nil
}

func markerAttrs(n *html.Node) (string, annotation.Kind, annotation.State, error) {
	if id, ok := attr(n, attrID); ok {
		if id == "" {
			return "", "", "", fmt.Errorf("%w: marker without id", ErrDeserialization)
		}
		kindAttr, _ := attr(n, attrKind)
		stateAttr, _ := attr(n, attrState)
		kind := annotation.Kind(kindAttr)
		state := annotation.State(stateAttr)
		if !kind.Valid() || !state.Valid() {
			return "", "", "", fmt.Errorf("%w: marker %s has kind %q state %q", ErrDeserialization, id, kindAttr, stateAttr)
		}
		return id, kind, state, nil
	}

	id, _ := attr(n, attrLegacyID)
	if id == "" {
		return "", "", "", fmt.Errorf("%w: marker without id", ErrDeserialization)
	}
	state := annotation.StateDraft
	class, _ := attr(n, "class")
	for _, c := range strings.Fields(class) {
		if c == "posted" {
			state = annotation.StatePosted
		}
	}
	return id, annotation.KindComment, state, nil
}

func isMarker(n *html.Node) bool {
	if n.DataAtom != atom.Span {
		return false
	}
	_, ok := attr(n, attrID)
	_, legacy := attr(n, attrLegacyID)
	return ok || legacy
}

func isBlock(n *html.Node) bool {
	switch n.DataAtom {
	case atom.P, atom.Div, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Li, atom.Blockquote, atom.Pre, atom.Ul, atom.Ol:
		return true
	}
	return false
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && isBlock(c) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// textContent concatenates the text below n, leaving out elements of type skip.
func textContent(n *html.Node, skip atom.Atom) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == skip {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visit(c)
	}
	return b.String()
}
