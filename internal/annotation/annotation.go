// Package annotation owns the comments and suggestions attached to a document
// and enforces their lifecycle.
package annotation

import (
	"time"

	"editpool/api/internal/anchor"
)

type Kind string

const (
	KindComment    Kind = "comment"
	KindSuggestion Kind = "suggestion"
)

func (k Kind) Valid() bool {
	return k == KindComment || k == KindSuggestion
}

type State string

const (
	StateDraft  State = "draft"
	StatePosted State = "posted"
)

func (s State) Valid() bool {
	return s == StateDraft || s == StatePosted
}

// Annotation is a comment or suggestion anchored to a range of the document.
// For suggestions Text is the proposed replacement and OriginalText the text
// that was under the range when the draft began.
type Annotation struct {
	ID           string
	Kind         Kind
	Range        anchor.Range
	Text         string
	OriginalText string
	Author       string
	CreatedAt    *time.Time
	State        State
	Orphaned     bool
}

func (a Annotation) IsDraft() bool {
	return a.State == StateDraft
}

func (a Annotation) IsPosted() bool {
	return a.State == StatePosted
}

// Changed reports whether a suggestion proposes something other than the
// original text.
func (a Annotation) Changed() bool {
	return a.Kind == KindSuggestion && a.Text != a.OriginalText
}

func (a Annotation) clone() Annotation {
	if a.CreatedAt != nil {
		ts := *a.CreatedAt
		a.CreatedAt = &ts
	}
	return a
}

// Draft describes an annotation about to be opened.
type Draft struct {
	Kind         Kind
	Range        anchor.Range
	Author       string
	Text         string
	OriginalText string
}
