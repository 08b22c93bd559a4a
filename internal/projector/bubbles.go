package projector

import (
	"strings"
	"time"

	"editpool/api/internal/annotation"
)

const (
	MaxBubbleLines   = 3
	BubbleLineHeight = 20
	bubblePadding    = 20
)

// Bubble is the view model of one speech bubble in the comment column.
type Bubble struct {
	ID          string           `json:"id"`
	State       annotation.State `json:"state"`
	Author      string           `json:"author,omitempty"`
	Text        string           `json:"text"`
	Preview     string           `json:"preview"`
	Lines       int              `json:"lines"`
	Height      int              `json:"height"`
	ShowMore    bool             `json:"showMore"`
	Expanded    bool             `json:"expanded"`
	Highlighted bool             `json:"highlighted"`
	Editable    bool             `json:"editable"`
	Orphaned    bool             `json:"orphaned,omitempty"`
	CreatedAt   *time.Time       `json:"createdAt,omitempty"`
}

// Bubbles builds the comment column for list, which should be in render
// order. Suggestions render inline and get no bubble.
func Bubbles(list []annotation.Annotation, highlighted string, expanded map[string]bool) []Bubble {
	out := make([]Bubble, 0, len(list))
	for _, a := range list {
		if a.Kind != annotation.KindComment {
			continue
		}
		lines := strings.Split(a.Text, "\n")
		b := Bubble{
			ID:          a.ID,
			State:       a.State,
			Author:      a.Author,
			Text:        a.Text,
			Preview:     a.Text,
			Lines:       len(lines),
			Height:      len(lines)*BubbleLineHeight + bubblePadding,
			Highlighted: a.ID == highlighted,
			Editable:    a.IsDraft(),
			Orphaned:    a.Orphaned,
			CreatedAt:   a.CreatedAt,
		}
		if a.IsPosted() && len(lines) > MaxBubbleLines {
			b.Expanded = expanded[a.ID]
			if !b.Expanded {
				b.ShowMore = true
				b.Preview = strings.Join(lines[:MaxBubbleLines], "\n") + "..."
				b.Height = MaxBubbleLines*BubbleLineHeight + bubblePadding
			}
		}
		out = append(out, b)
	}
	return out
}
