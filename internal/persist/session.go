// Package persist stores editing sessions as whole JSON blobs in a key-value
// backend.
package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"editpool/api/internal/anchor"
	"editpool/api/internal/annotation"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrDeserialization = errors.New("corrupt session blob")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
)

// Session is the persisted state of one edit: the projected markup plus the
// annotation records the markup refers to.
type Session struct {
	Title          string    `json:"title"`
	Summary        string    `json:"summary,omitempty"`
	EditType       string    `json:"editType,omitempty"`
	Owner          string    `json:"owner"`
	Editor         string    `json:"editor,omitempty"`
	Text           string    `json:"text"`
	Comments       []Record  `json:"comments"`
	Status         Status    `json:"status"`
	SuggestionMode bool      `json:"suggestionMode,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Record is one annotation as stored in a session blob. IsTyping marks a
// draft.
type Record struct {
	ID           string          `json:"id"`
	Kind         annotation.Kind `json:"kind,omitempty"`
	Range        anchor.Range    `json:"range"`
	Text         string          `json:"text"`
	OriginalText string          `json:"originalText,omitempty"`
	User         string          `json:"user,omitempty"`
	Timestamp    *time.Time      `json:"timestamp"`
	IsTyping     bool            `json:"isTyping"`
	Orphaned     bool            `json:"orphaned,omitempty"`
}

// legacyTimestampLayouts are the locale formats older blobs used for post times.
var legacyTimestampLayouts = []string{
	time.RFC3339Nano,
	"1/2/2006, 3:04:05 PM",
	"2/1/2006, 15:04:05",
	"2006-01-02 15:04:05",
}

func (r *Record) UnmarshalJSON(data []byte) error {
	type alias Record
	aux := struct {
		*alias
		Timestamp json.RawMessage `json:"timestamp"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Timestamp = nil
	raw := bytes.TrimSpace(aux.Timestamp)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	for _, layout := range legacyTimestampLayouts {
		if ts, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			r.Timestamp = &ts
			return nil
		}
	}
	// Unknown locale formats keep the record but lose the time.
	return nil
}

func RecordFrom(a annotation.Annotation) Record {
	return Record{
		ID:           a.ID,
		Kind:         a.Kind,
		Range:        a.Range,
		Text:         a.Text,
		OriginalText: a.OriginalText,
		User:         a.Author,
		Timestamp:    a.CreatedAt,
		IsTyping:     a.IsDraft(),
		Orphaned:     a.Orphaned,
	}
}

func (r Record) Annotation() annotation.Annotation {
	kind := r.Kind
	if kind == "" {
		kind = annotation.KindComment
	}
	state := annotation.StatePosted
	if r.IsTyping {
		state = annotation.StateDraft
	}
	return annotation.Annotation{
		ID:           r.ID,
		Kind:         kind,
		Range:        r.Range,
		Text:         r.Text,
		OriginalText: r.OriginalText,
		Author:       r.User,
		CreatedAt:    r.Timestamp,
		State:        state,
		Orphaned:     r.Orphaned,
	}
}

func Records(list []annotation.Annotation) []Record {
	out := make([]Record, 0, len(list))
	for _, a := range list {
		out = append(out, RecordFrom(a))
	}
	return out
}

func (s Session) Annotations() []annotation.Annotation {
	out := make([]annotation.Annotation, 0, len(s.Comments))
	for _, r := range s.Comments {
		out = append(out, r.Annotation())
	}
	return out
}

// Encode serialises a session blob.
func Encode(s Session) ([]byte, error) {
	if s.Comments == nil {
		s.Comments = []Record{}
	}
	return json.Marshal(s)
}

// Decode parses and checks a session blob. Every failure wraps
// ErrDeserialization.
func Decode(blob []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(blob, &s); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	if s.Status == "" {
		s.Status = StatusPending
	}
	if s.Status != StatusPending && s.Status != StatusSubmitted {
		return Session{}, fmt.Errorf("%w: unknown status %q", ErrDeserialization, s.Status)
	}
	seen := make(map[string]bool, len(s.Comments))
	for i, r := range s.Comments {
		if r.ID == "" {
			return Session{}, fmt.Errorf("%w: record %d has no id", ErrDeserialization, i)
		}
		if seen[r.ID] {
			return Session{}, fmt.Errorf("%w: duplicate record %s", ErrDeserialization, r.ID)
		}
		seen[r.ID] = true
		if r.Kind != "" && !r.Kind.Valid() {
			return Session{}, fmt.Errorf("%w: record %s has kind %q", ErrDeserialization, r.ID, r.Kind)
		}
		if r.Range.From < 0 || r.Range.From > r.Range.To {
			return Session{}, fmt.Errorf("%w: record %s has range %s", ErrDeserialization, r.ID, r.Range)
		}
	}
	return s, nil
}
