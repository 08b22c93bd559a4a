package annotation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"editpool/api/internal/anchor"
	"editpool/api/internal/document"
	"editpool/api/internal/util"
)

type entry struct {
	Annotation
	seq uint64
}

// Store holds the annotations of one session. It is not safe for concurrent
// use.
type Store struct {
	items   map[string]*entry
	nextSeq uint64
	now     func() time.Time
	newID   func() string
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		s.newID = newID
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		items: map[string]*entry{},
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return util.NewID("ann") },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Len() int {
	return len(s.items)
}

// BeginDraft opens a new draft. A comment draft requires that no other draft
// is open. A suggestion draft requires that no comment draft is open and that
// it does not overlap another annotation.
func (s *Store) BeginDraft(d Draft) (Annotation, error) {
	if !d.Kind.Valid() {
		return Annotation{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidState, d.Kind)
	}
	if d.Range.From < 0 || d.Range.From > d.Range.To {
		return Annotation{}, fmt.Errorf("%w: %s", anchor.ErrInvalidRange, d.Range)
	}
	if d.Kind == KindSuggestion {
		if err := checkSuggestionText(d.Range, d.OriginalText); err != nil {
			return Annotation{}, err
		}
	}
	for _, e := range s.sorted() {
		if err := admit(d.Kind, d.Range, e.Annotation); err != nil {
			return Annotation{}, err
		}
	}

	a := Annotation{
		ID:           s.newID(),
		Kind:         d.Kind,
		Range:        d.Range,
		Text:         d.Text,
		OriginalText: d.OriginalText,
		Author:       d.Author,
		State:        StateDraft,
	}
	if _, exists := s.items[a.ID]; exists {
		return Annotation{}, fmt.Errorf("%w: duplicate id %s", ErrInvalidState, a.ID)
	}
	s.insert(a)
	return a.clone(), nil
}

func admit(kind Kind, r anchor.Range, other Annotation) error {
	if kind == KindComment && other.IsDraft() {
		return fmt.Errorf("%w: %s draft %s is open", ErrConcurrentDraft, other.Kind, other.ID)
	}
	if kind == KindSuggestion && other.IsDraft() && other.Kind == KindComment {
		return fmt.Errorf("%w: comment draft %s is open", ErrConcurrentDraft, other.ID)
	}
	if kind != KindSuggestion && other.Kind != KindSuggestion {
		return nil
	}
	if !r.Overlaps(other.Range) {
		return nil
	}
	if kind == KindSuggestion && other.Kind == KindSuggestion && other.IsDraft() {
		return fmt.Errorf("%w: suggestion draft %s overlaps %s", ErrConcurrentDraft, other.ID, r)
	}
	return fmt.Errorf("%w: %s overlaps %s %s", anchor.ErrInvalidRange, r, other.Kind, other.ID)
}

func checkSuggestionText(r anchor.Range, original string) error {
	if strings.ContainsRune(original, document.ParagraphBreak) {
		return fmt.Errorf("%w: suggestion %s spans a paragraph break", anchor.ErrInvalidRange, r)
	}
	if n := len([]rune(original)); n != r.Len() {
		return fmt.Errorf("%w: original text has %d characters, range %s covers %d", anchor.ErrInvalidRange, n, r, r.Len())
	}
	return nil
}

func (s *Store) insert(a Annotation) {
	s.nextSeq++
	s.items[a.ID] = &entry{Annotation: a, seq: s.nextSeq}
}

func (s *Store) Get(id string) (Annotation, error) {
	e, ok := s.items[id]
	if !ok {
		return Annotation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.clone(), nil
}

func (s *Store) draft(id string) (*entry, error) {
	e, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !e.IsDraft() {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, id, e.State)
	}
	return e, nil
}

func (s *Store) UpdateDraftText(id, text string) error {
	e, err := s.draft(id)
	if err != nil {
		return err
	}
	e.Text = text
	return nil
}

func (s *Store) PostDraft(id string) (Annotation, error) {
	e, err := s.draft(id)
	if err != nil {
		return Annotation{}, err
	}
	ts := s.now()
	e.State = StatePosted
	e.CreatedAt = &ts
	return e.clone(), nil
}

func (s *Store) DiscardDraft(id string) error {
	if _, err := s.draft(id); err != nil {
		return err
	}
	delete(s.items, id)
	return nil
}

func (s *Store) Remove(id string) error {
	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.items, id)
	return nil
}

// FinalizeAllSuggestions posts every open suggestion draft with one shared
// timestamp and returns them in list order.
func (s *Store) FinalizeAllSuggestions() []Annotation {
	ts := s.now()
	var posted []Annotation
	for _, e := range s.sorted() {
		if e.Kind != KindSuggestion || !e.IsDraft() {
			continue
		}
		stamp := ts
		e.State = StatePosted
		e.CreatedAt = &stamp
		posted = append(posted, e.clone())
	}
	return posted
}

// List returns every annotation ordered by range start, ties in insertion
// order.
func (s *Store) List() []Annotation {
	entries := s.sorted()
	out := make([]Annotation, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.clone())
	}
	return out
}

// RenderOrder is List with the open comment draft moved to the end.
func (s *Store) RenderOrder() []Annotation {
	list := s.List()
	for i, a := range list {
		if a.Kind == KindComment && a.IsDraft() {
			out := append(list[:i:i], list[i+1:]...)
			return append(out, a)
		}
	}
	return list
}

func (s *Store) Drafts() []Annotation {
	var out []Annotation
	for _, e := range s.sorted() {
		if e.IsDraft() {
			out = append(out, e.clone())
		}
	}
	return out
}

// ActiveDraft returns the open comment draft, or else the most recently opened
// suggestion draft.
func (s *Store) ActiveDraft() (Annotation, bool) {
	var active *entry
	for _, e := range s.items {
		if !e.IsDraft() {
			continue
		}
		if e.Kind == KindComment {
			return e.clone(), true
		}
		if active == nil || e.seq > active.seq {
			active = e
		}
	}
	if active == nil {
		return Annotation{}, false
	}
	return active.clone(), true
}

// CheckEdit rejects a direct edit that would change text under a suggestion.
func (s *Store) CheckEdit(edit document.Edit) error {
	for _, e := range s.sorted() {
		if e.Kind == KindSuggestion && anchor.Intersects(e.Range, edit) {
			return fmt.Errorf("%w: edit at %d touches suggestion %s", anchor.ErrInvalidRange, edit.Pos, e.ID)
		}
	}
	return nil
}

// Remap carries every range through a direct edit. Comments whose text is
// deleted entirely are kept and flagged orphaned.
func (s *Store) Remap(edit document.Edit) {
	for _, e := range s.items {
		mapped, collapsed := anchor.Map(e.Range, edit)
		e.Range = mapped
		if collapsed && e.Kind == KindComment {
			e.Orphaned = true
		}
	}
}

// Restore replaces the contents of the store, keeping list order as insertion
// order. The store is left untouched when list violates an invariant.
func (s *Store) Restore(list []Annotation) error {
	next := NewStore(WithClock(s.now), WithIDGenerator(s.newID))
	for _, a := range list {
		if a.ID == "" {
			return fmt.Errorf("%w: annotation without id", ErrInvalidState)
		}
		if _, dup := next.items[a.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidState, a.ID)
		}
		if !a.Kind.Valid() || !a.State.Valid() {
			return fmt.Errorf("%w: %s has kind %q state %q", ErrInvalidState, a.ID, a.Kind, a.State)
		}
		if a.Range.From < 0 || a.Range.From > a.Range.To {
			return fmt.Errorf("%w: %s at %s", anchor.ErrInvalidRange, a.ID, a.Range)
		}
		if a.Kind == KindSuggestion {
			if err := checkSuggestionText(a.Range, a.OriginalText); err != nil {
				return fmt.Errorf("%s: %w", a.ID, err)
			}
		}
		for _, e := range next.sorted() {
			if a.IsDraft() {
				if err := admit(a.Kind, a.Range, e.Annotation); err != nil {
					return err
				}
				continue
			}
			if (a.Kind == KindSuggestion || e.Kind == KindSuggestion) && a.Range.Overlaps(e.Range) {
				return fmt.Errorf("%w: %s overlaps %s", anchor.ErrInvalidRange, a.ID, e.ID)
			}
		}
		next.insert(a.clone())
	}
	s.items = next.items
	s.nextSeq = next.nextSeq
	return nil
}

func (s *Store) sorted() []*entry {
	out := make([]*entry, 0, len(s.items))
	for _, e := range s.items {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Range.From != out[j].Range.From {
			return out[i].Range.From < out[j].Range.From
		}
		return out[i].seq < out[j].seq
	})
	return out
}
