package controller

import (
	"editpool/api/internal/annotation"
)

// Event is a discrete user input handled by Dispatch.
type Event interface {
	eventName() string
}

// Select reports a new raw selection. From == To collapses it.
type Select struct {
	From int
	To   int
}

// Choose picks an entry of the action menu.
type Choose struct {
	Kind annotation.Kind
}

// Type replaces the text of a draft. An empty ID targets the active draft.
type Type struct {
	ID   string
	Text string
}

// Confirm posts a draft. An empty ID targets the active draft.
type Confirm struct {
	ID string
}

// Dismiss is a click outside the editor and bubbles.
type Dismiss struct{}

// Mode switches suggestion mode.
type Mode struct {
	Suggestion bool
}

// Edit is a change typed into the document. In suggestion mode the document
// is left alone, so successive keystrokes at one caret arrive with the same
// Pos; inserts there accumulate in the open suggestion.
type Edit struct {
	Pos    int
	Delete int
	Insert string
}

// Click selects an annotation marker or bubble.
type Click struct {
	ID string
}

// Expand opens a truncated bubble.
type Expand struct {
	ID string
}

// Remove deletes an annotation outright.
type Remove struct {
	ID string
}

func (Select) eventName() string  { return "select" }
func (Choose) eventName() string  { return "choose" }
func (Type) eventName() string    { return "type" }
func (Confirm) eventName() string { return "confirm" }
func (Dismiss) eventName() string { return "dismiss" }
func (Mode) eventName() string    { return "mode" }
func (Edit) eventName() string    { return "edit" }
func (Click) eventName() string   { return "click" }
func (Expand) eventName() string  { return "expand" }
func (Remove) eventName() string  { return "remove" }

// Name returns the wire name of an event.
func Name(ev Event) string {
	return ev.eventName()
}
