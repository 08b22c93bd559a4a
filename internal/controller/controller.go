// Package controller turns user input into annotation store operations and
// keeps the editing surface in sync with the store.
package controller

import (
	"fmt"

	"github.com/rs/zerolog"

	"editpool/api/internal/anchor"
	"editpool/api/internal/annotation"
	"editpool/api/internal/document"
	"editpool/api/internal/editor"
	"editpool/api/internal/projector"
)

type State string

const (
	StateIdle               State = "idle"
	StateSelectionActive    State = "selection_active"
	StateCreatingComment    State = "creating_comment"
	StateCreatingSuggestion State = "creating_suggestion"
	StateDraft              State = "draft"
	StatePosted             State = "posted"
)

// MenuOffset is how far above the selection start the action menu sits.
const MenuOffset = 40

// Menu is the floating Comment / Suggestion action menu.
type Menu struct {
	Visible bool         `json:"visible"`
	Left    int          `json:"left"`
	Top     int          `json:"top"`
	Range   anchor.Range `json:"range"`
}

type Controller struct {
	doc            *document.Document
	store          *annotation.Store
	projector      *projector.Projector
	surface        editor.Surface
	log            zerolog.Logger
	author         string
	state          State
	selection      anchor.Range
	menu           Menu
	suggestionMode bool
	highlighted    string
	expanded       map[string]bool
}

type Option func(*Controller)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// WithAuthor sets the actor recorded on new drafts.
func WithAuthor(author string) Option {
	return func(c *Controller) {
		c.author = author
	}
}

// WithSuggestionMode starts the controller with suggestion mode on.
func WithSuggestionMode(on bool) Option {
	return func(c *Controller) {
		c.suggestionMode = on
	}
}

func New(doc *document.Document, store *annotation.Store, p *projector.Projector, surface editor.Surface, opts ...Option) (*Controller, error) {
	c := &Controller{
		doc:       doc,
		store:     store,
		projector: p,
		surface:   surface,
		log:       zerolog.Nop(),
		state:     StateIdle,
		expanded:  map[string]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(store.Drafts()) > 0 {
		c.state = StateDraft
	}
	if err := c.render(); err != nil {
		return nil, err
	}
	return c, nil
}

type snapshot struct {
	state       State
	selection   anchor.Range
	menu        Menu
	highlighted string
}

func (c *Controller) snapshot() snapshot {
	return snapshot{state: c.state, selection: c.selection, menu: c.menu, highlighted: c.highlighted}
}

func (c *Controller) restore(s snapshot) {
	c.state = s.state
	c.selection = s.selection
	c.menu = s.menu
	c.highlighted = s.highlighted
}

// Dispatch handles one event. A rejected event is logged, leaves the
// controller in the state it was in, and its error is returned.
func (c *Controller) Dispatch(ev Event) error {
	prev := c.snapshot()
	var err error
	switch e := ev.(type) {
	case Select:
		err = c.onSelect(e)
	case Choose:
		err = c.onChoose(e)
	case Type:
		err = c.onType(e)
	case Confirm:
		err = c.onConfirm(e)
	case Dismiss:
		err = c.onDismiss()
	case Mode:
		err = c.onMode(e)
	case Edit:
		err = c.onEdit(e)
	case Click:
		err = c.onClick(e)
	case Expand:
		err = c.onExpand(e)
	case Remove:
		err = c.onRemove(e)
	default:
		err = fmt.Errorf("%w: unsupported event %T", annotation.ErrInvalidState, ev)
	}
	if err != nil {
		c.restore(prev)
		c.log.Warn().Err(err).Str("event", ev.eventName()).Str("state", string(c.state)).Msg("event rejected")
		return err
	}
	c.log.Debug().Str("event", ev.eventName()).Str("state", string(c.state)).Msg("event handled")
	return nil
}

func (c *Controller) onSelect(e Select) error {
	raw, err := anchor.New(e.From, e.To, c.doc.Len())
	if err != nil {
		return err
	}
	trimmed, err := anchor.Trim(c.doc, raw)
	if err != nil {
		return err
	}
	if err := c.surface.SetSelection(trimmed); err != nil {
		return err
	}
	c.selection = trimmed
	if trimmed.Empty() {
		c.menu = Menu{}
		c.state = c.restingState(StateIdle)
		return nil
	}
	coords, err := c.surface.CoordsAtPosition(trimmed.From)
	if err != nil {
		return err
	}
	c.menu = Menu{Visible: true, Left: coords.Left, Top: coords.Top - MenuOffset, Range: trimmed}
	c.state = c.restingState(StateSelectionActive)
	return nil
}

func (c *Controller) onChoose(e Choose) error {
	if !c.menu.Visible || c.selection.Empty() {
		return fmt.Errorf("%w: nothing selected", annotation.ErrInvalidState)
	}
	d := annotation.Draft{Kind: e.Kind, Range: c.selection, Author: c.author}
	switch e.Kind {
	case annotation.KindComment:
		c.state = StateCreatingComment
	case annotation.KindSuggestion:
		c.state = StateCreatingSuggestion
		original, err := anchor.TextBetween(c.doc, c.selection)
		if err != nil {
			return err
		}
		d.OriginalText = original
		d.Text = original
	default:
		return fmt.Errorf("%w: unknown kind %q", annotation.ErrInvalidState, e.Kind)
	}
	a, err := c.store.BeginDraft(d)
	if err != nil {
		return err
	}
	c.log.Info().Str("annotation_id", a.ID).Str("kind", string(a.Kind)).Str("range", a.Range.String()).Msg("draft opened")
	c.state = StateDraft
	c.menu = Menu{}
	c.highlighted = a.ID
	return c.render()
}

func (c *Controller) draftID(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	a, ok := c.store.ActiveDraft()
	if !ok {
		return "", fmt.Errorf("%w: no open draft", annotation.ErrNotFound)
	}
	return a.ID, nil
}

func (c *Controller) onType(e Type) error {
	id, err := c.draftID(e.ID)
	if err != nil {
		return err
	}
	if err := c.store.UpdateDraftText(id, e.Text); err != nil {
		return err
	}
	return c.render()
}

func (c *Controller) onConfirm(e Confirm) error {
	id, err := c.draftID(e.ID)
	if err != nil {
		return err
	}
	a, err := c.store.PostDraft(id)
	if err != nil {
		return err
	}
	c.log.Info().Str("annotation_id", a.ID).Str("kind", string(a.Kind)).Msg("annotation posted")
	c.state = c.restingState(StatePosted)
	return c.render()
}

func (c *Controller) onDismiss() error {
	for _, d := range c.store.Drafts() {
		if d.Kind != annotation.KindComment {
			continue
		}
		if err := c.store.DiscardDraft(d.ID); err != nil {
			return err
		}
		c.log.Info().Str("annotation_id", d.ID).Msg("draft discarded")
	}
	c.menu = Menu{}
	c.highlighted = ""
	c.selection = anchor.Range{}
	c.state = c.restingState(StateIdle)
	return c.render()
}

func (c *Controller) onMode(e Mode) error {
	if e.Suggestion == c.suggestionMode {
		return nil
	}
	c.suggestionMode = e.Suggestion
	if !e.Suggestion {
		posted := c.store.FinalizeAllSuggestions()
		c.log.Info().Int("count", len(posted)).Msg("suggestions finalized")
		if len(posted) > 0 {
			c.state = c.restingState(StatePosted)
		}
	}
	return c.render()
}

func (c *Controller) onEdit(e Edit) error {
	edit := document.Edit{Pos: e.Pos, Delete: e.Delete, Insert: e.Insert}
	if c.suggestionMode {
		return c.suggest(edit)
	}
	if err := c.store.CheckEdit(edit); err != nil {
		return err
	}
	if err := c.doc.Apply(edit); err != nil {
		return fmt.Errorf("%w: %w", anchor.ErrInvalidRange, err)
	}
	c.store.Remap(edit)
	c.selection, _ = anchor.Map(c.selection, edit)
	if c.menu.Visible {
		c.menu = Menu{}
		c.state = c.restingState(StateIdle)
	}
	return c.render()
}

// suggest records an edit as a suggestion instead of applying it. A later
// edit of the same span updates the open suggestion: a pure insertion appends
// to its text, a replacement overwrites it.
func (c *Controller) suggest(edit document.Edit) error {
	r, err := anchor.New(edit.Pos, edit.End(), c.doc.Len())
	if err != nil {
		return err
	}
	for _, d := range c.store.Drafts() {
		if d.Kind == annotation.KindSuggestion && d.Range == r {
			text := document.Normalize(edit.Insert)
			if edit.Delete == 0 {
				text = d.Text + text
			}
			if err := c.store.UpdateDraftText(d.ID, text); err != nil {
				return err
			}
			c.highlighted = d.ID
			return c.render()
		}
	}
	original, err := anchor.TextBetween(c.doc, r)
	if err != nil {
		return err
	}
	c.state = StateCreatingSuggestion
	a, err := c.store.BeginDraft(annotation.Draft{
		Kind:         annotation.KindSuggestion,
		Range:        r,
		Author:       c.author,
		Text:         document.Normalize(edit.Insert),
		OriginalText: original,
	})
	if err != nil {
		return err
	}
	c.log.Info().Str("annotation_id", a.ID).Str("range", a.Range.String()).Msg("suggestion opened")
	c.state = StateDraft
	c.highlighted = a.ID
	return c.render()
}

func (c *Controller) onClick(e Click) error {
	if _, err := c.store.Get(e.ID); err != nil {
		return err
	}
	c.highlighted = e.ID
	return nil
}

func (c *Controller) onExpand(e Expand) error {
	if _, err := c.store.Get(e.ID); err != nil {
		return err
	}
	c.expanded[e.ID] = true
	return nil
}

func (c *Controller) onRemove(e Remove) error {
	if err := c.store.Remove(e.ID); err != nil {
		return err
	}
	delete(c.expanded, e.ID)
	if c.highlighted == e.ID {
		c.highlighted = ""
	}
	c.log.Info().Str("annotation_id", e.ID).Msg("annotation removed")
	c.state = c.restingState(StateIdle)
	return c.render()
}

// restingState is fallback unless a draft is still open.
func (c *Controller) restingState(fallback State) State {
	if len(c.store.Drafts()) > 0 {
		return StateDraft
	}
	return fallback
}

func (c *Controller) render() error {
	return c.surface.SetContent(c.projector.Project(c.doc, c.store.List()))
}

// SetAuthor changes the actor recorded on drafts opened from now on.
func (c *Controller) SetAuthor(author string) {
	c.author = author
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) Menu() Menu {
	return c.menu
}

func (c *Controller) Selection() anchor.Range {
	return c.selection
}

func (c *Controller) SuggestionMode() bool {
	return c.suggestionMode
}

func (c *Controller) Highlighted() string {
	return c.highlighted
}

// Markup is the current content of the editing surface.
func (c *Controller) Markup() string {
	return c.surface.HTML()
}

func (c *Controller) Bubbles() []projector.Bubble {
	return projector.Bubbles(c.store.RenderOrder(), c.highlighted, c.expanded)
}

func (c *Controller) Document() *document.Document {
	return c.doc
}

func (c *Controller) Annotations() []annotation.Annotation {
	return c.store.List()
}
