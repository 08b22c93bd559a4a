// Package editor defines what the annotation engine needs from a rich-text
// editing surface, plus a headless surface used by the server and tests.
package editor

import (
	"fmt"

	"editpool/api/internal/anchor"
	"editpool/api/internal/projector"
)

// Coords is a screen position in pixels relative to the editor origin.
type Coords struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
}

type Surface interface {
	HTML() string
	SetContent(markup string) error
	SetSelection(r anchor.Range) error
	Selection() anchor.Range
	CoordsAtPosition(pos int) (Coords, error)
}

const (
	DefaultCharWidth  = 8
	DefaultLineHeight = 20
)

// Headless lays text out on a monospace grid, one line per paragraph.
type Headless struct {
	markup     string
	text       []rune
	selection  anchor.Range
	charWidth  int
	lineHeight int
}

func NewHeadless() *Headless {
	return &Headless{charWidth: DefaultCharWidth, lineHeight: DefaultLineHeight}
}

func (h *Headless) HTML() string {
	return h.markup
}

func (h *Headless) SetContent(markup string) error {
	doc, _, err := projector.Parse(markup)
	if err != nil {
		return err
	}
	h.markup = markup
	h.text = doc.Runes()
	if h.selection.Validate(len(h.text)) != nil {
		h.selection = anchor.Range{}
	}
	return nil
}

func (h *Headless) SetSelection(r anchor.Range) error {
	if err := r.Validate(len(h.text)); err != nil {
		return err
	}
	h.selection = r
	return nil
}

func (h *Headless) Selection() anchor.Range {
	return h.selection
}

func (h *Headless) CoordsAtPosition(pos int) (Coords, error) {
	if pos < 0 || pos > len(h.text) {
		return Coords{}, fmt.Errorf("%w: position %d outside [0,%d]", anchor.ErrInvalidRange, pos, len(h.text))
	}
	line, col := 0, 0
	for _, r := range h.text[:pos] {
		if r == '\n' {
			line++
			col = 0
			continue
		}
		col++
	}
	top := line * h.lineHeight
	return Coords{Left: col * h.charWidth, Top: top, Bottom: top + h.lineHeight}, nil
}
