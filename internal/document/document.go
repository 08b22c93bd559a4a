// Package document holds the editable text of a session: a flat rune sequence
// whose paragraphs are separated by a newline.
package document

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ParagraphBreak separates paragraphs in the flat text.
const ParagraphBreak = '\n'

// ErrEditOutOfBounds is returned when an edit addresses text past the end of the document.
var ErrEditOutOfBounds = errors.New("edit out of bounds")

// Edit replaces Delete runes starting at Pos with Insert.
type Edit struct {
	Pos    int    `json:"pos"`
	Delete int    `json:"delete"`
	Insert string `json:"insert"`
}

// InsertLen is the rune length of the inserted text.
func (e Edit) InsertLen() int {
	return utf8.RuneCountInString(Normalize(e.Insert))
}

// End is the first position after the deleted span.
func (e Edit) End() int {
	return e.Pos + e.Delete
}

// Delta is the change in document length caused by the edit.
func (e Edit) Delta() int {
	return e.InsertLen() - e.Delete
}

type Document struct {
	text []rune
}

// New builds a document from plain text. CRLF and lone CR become LF.
func New(text string) *Document {
	return &Document{text: []rune(Normalize(text))}
}

var normalizer = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\x00", "")

// Normalize converts CRLF and lone CR line endings to LF and drops NUL, which
// markup cannot carry.
func Normalize(text string) string {
	return normalizer.Replace(text)
}

// FromParagraphs joins paragraphs with the paragraph break.
func FromParagraphs(paragraphs []string) *Document {
	return New(strings.Join(paragraphs, string(ParagraphBreak)))
}

func (d *Document) Len() int {
	return len(d.text)
}

func (d *Document) String() string {
	return string(d.text)
}

// Runes returns a copy of the document text.
func (d *Document) Runes() []rune {
	out := make([]rune, len(d.text))
	copy(out, d.text)
	return out
}

// At returns the rune at position i. The caller must keep i inside [0, Len()).
func (d *Document) At(i int) rune {
	return d.text[i]
}

// Slice returns the text in [from, to). Bounds are not validated here; see anchor.TextBetween.
func (d *Document) Slice(from, to int) string {
	return string(d.text[from:to])
}

// Paragraphs splits the text on paragraph breaks. An empty document has one empty paragraph.
func (d *Document) Paragraphs() []string {
	return strings.Split(string(d.text), string(ParagraphBreak))
}

// Clone returns an independent copy.
func (d *Document) Clone() *Document {
	return &Document{text: d.Runes()}
}

// Apply mutates the document in place.
func (d *Document) Apply(e Edit) error {
	if e.Pos < 0 || e.Delete < 0 || e.End() > len(d.text) {
		return fmt.Errorf("%w: pos=%d delete=%d len=%d", ErrEditOutOfBounds, e.Pos, e.Delete, len(d.text))
	}
	insert := []rune(Normalize(e.Insert))
	next := make([]rune, 0, len(d.text)-e.Delete+len(insert))
	next = append(next, d.text[:e.Pos]...)
	next = append(next, insert...)
	next = append(next, d.text[e.End():]...)
	d.text = next
	return nil
}
