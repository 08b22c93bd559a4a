package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"editpool/api/internal/anchor"
	"editpool/api/internal/annotation"
	"editpool/api/internal/controller"
	"editpool/api/internal/editor"
	"editpool/api/internal/export"
	"editpool/api/internal/persist"
	"editpool/api/internal/projector"
	"editpool/api/internal/rbac"
	"editpool/api/internal/search"
	"editpool/api/internal/util"
	"editpool/api/internal/worker"
)

// DefaultContent is shown when a session has no text yet.
const DefaultContent = "<p>Start editing...</p>"

// StartInput describes a new editing session.
type StartInput struct {
	Key      string `json:"key" validate:"omitempty,max=128,excludesall=/\\"`
	Title    string `json:"title" validate:"required,max=200"`
	Summary  string `json:"summary" validate:"max=2000"`
	EditType string `json:"editType" validate:"max=64"`
	Owner    string `json:"owner" validate:"required,max=128"`
	Text     string `json:"text" validate:"max=1000000"`
}

// View is what the edit page renders after every call.
type View struct {
	Key            string             `json:"key"`
	Title          string             `json:"title"`
	Owner          string             `json:"owner"`
	Editor         string             `json:"editor,omitempty"`
	Status         persist.Status     `json:"status"`
	Role           rbac.Role          `json:"role"`
	State          controller.State   `json:"state"`
	Markup         string             `json:"markup"`
	Menu           controller.Menu    `json:"menu"`
	Selection      anchor.Range       `json:"selection"`
	SuggestionMode bool               `json:"suggestionMode"`
	Highlighted    string             `json:"highlighted,omitempty"`
	Bubbles        []projector.Bubble `json:"bubbles"`
	Annotations    []persist.Record   `json:"annotations"`
	UpdatedAt      time.Time          `json:"updatedAt"`
	// Blocked names the admission rule that turned the event into a no-op.
	Blocked        string             `json:"blocked,omitempty"`
}

type Options struct {
	Diff projector.DiffMode
	// Ping reports backend readiness for /api/ready. Nil means always ready.
	Ping func(context.Context) error
}

type Service struct {
	sessions *persist.Adapter
	search   *search.Service
	exporter *export.Service
	pool     *worker.Pool
	opts     Options

	mu   sync.Mutex
	live map[string]*liveSession
}

// liveSession is one open session. mu serialises every event of the session.
type liveSession struct {
	mu   sync.Mutex
	meta persist.Session
	ctrl *controller.Controller
}

func NewService(sessions *persist.Adapter, searchSvc *search.Service, exporter *export.Service, pool *worker.Pool, opts Options) *Service {
	if opts.Diff == "" {
		opts.Diff = projector.DiffLCS
	}
	return &Service{
		sessions: sessions,
		search:   searchSvc,
		exporter: exporter,
		pool:     pool,
		opts:     opts,
		live:     map[string]*liveSession{},
	}
}

func (s *Service) Ping(ctx context.Context) error {
	if s.opts.Ping == nil {
		return nil
	}
	return s.opts.Ping(ctx)
}

// StartSession creates and persists a new session claimed by actor.
func (s *Service) StartSession(ctx context.Context, actor string, in StartInput) (View, error) {
	if strings.TrimSpace(actor) == "" {
		return View{}, domainError(http.StatusUnauthorized, "ACTOR_REQUIRED", "X-Editpool-User header is required", nil)
	}
	key := in.Key
	if key == "" {
		key = util.NewID("ses")
	}
	if _, err := s.sessions.Load(ctx, key); err == nil {
		return View{}, domainError(http.StatusConflict, "SESSION_EXISTS", "Session already exists", map[string]any{"key": key})
	} else if !errors.Is(err, persist.ErrNotFound) && !errors.Is(err, persist.ErrDeserialization) {
		return View{}, err
	}

	meta := persist.Session{
		Title:    in.Title,
		Summary:  in.Summary,
		EditType: in.EditType,
		Owner:    in.Owner,
		Editor:   actor,
		Text:     in.Text,
		Status:   persist.StatusPending,
	}
	ls, err := s.hydrate(key, meta)
	if err != nil {
		return View{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text could not be parsed", map[string]any{"error": err.Error()})
	}

	s.mu.Lock()
	if _, open := s.live[key]; open {
		s.mu.Unlock()
		return View{}, domainError(http.StatusConflict, "SESSION_EXISTS", "Session already exists", map[string]any{"key": key})
	}
	s.live[key] = ls
	ls.mu.Lock()
	s.mu.Unlock()
	defer ls.mu.Unlock()

	if err := s.persist(ctx, key, actor, ls); err != nil {
		s.evict(key, ls)
		return View{}, err
	}
	log.Info().Str("session", key).Str("actor", actor).Msg("session started")
	s.index(key, ls)
	return s.view(key, actor, ls), nil
}

// OpenSession returns the current view of a session, loading it on first use.
func (s *Service) OpenSession(ctx context.Context, key, actor string) (View, error) {
	ls, err := s.acquire(ctx, key)
	if err != nil {
		return View{}, err
	}
	defer ls.mu.Unlock()
	if err := s.require(ls, actor, rbac.ActionRead); err != nil {
		return View{}, err
	}
	return s.view(key, actor, ls), nil
}

// Dispatch feeds one event to the session controller and saves the result.
// A rejected event leaves both the session and the stored blob unchanged. If
// the save fails the live session is rebuilt from the last saved blob. A
// comment chosen while another draft is open is ignored: the view comes back
// unchanged with Blocked set.
func (s *Service) Dispatch(ctx context.Context, key, actor string, ev controller.Event) (View, error) {
	ls, err := s.acquire(ctx, key)
	if err != nil {
		return View{}, err
	}
	defer ls.mu.Unlock()

	if err := s.require(ls, actor, actionFor(ev)); err != nil {
		return View{}, err
	}
	if ls.meta.Status == persist.StatusSubmitted {
		return View{}, domainError(http.StatusConflict, "SESSION_SUBMITTED", "Session was already submitted", nil)
	}

	if actor != "" {
		ls.ctrl.SetAuthor(actor)
	}
	if err := ls.ctrl.Dispatch(ev); err != nil {
		if _, choose := ev.(controller.Choose); choose && errors.Is(err, annotation.ErrConcurrentDraft) {
			view := s.view(key, actor, ls)
			view.Blocked = "CONCURRENT_DRAFT"
			return view, nil
		}
		return View{}, engineError(err)
	}
	if err := s.persist(ctx, key, actor, ls); err != nil {
		s.rollback(key, ls)
		return View{}, err
	}

	switch e := ev.(type) {
	case controller.Confirm, controller.Mode, controller.Edit:
		s.index(key, ls)
	case controller.Remove:
		s.unindex(e.ID)
	}
	return s.view(key, actor, ls), nil
}

// Submit hands the edit back to the owner. Open drafts are dropped and only
// posted annotations are kept.
func (s *Service) Submit(ctx context.Context, key, actor string) (View, error) {
	ls, err := s.acquire(ctx, key)
	if err != nil {
		return View{}, err
	}
	defer ls.mu.Unlock()

	if err := s.require(ls, actor, rbac.ActionSubmit); err != nil {
		return View{}, err
	}
	if ls.meta.Status == persist.StatusSubmitted {
		return View{}, domainError(http.StatusConflict, "SESSION_SUBMITTED", "Session was already submitted", nil)
	}

	var posted []annotation.Annotation
	for _, a := range ls.ctrl.Annotations() {
		if a.IsPosted() {
			posted = append(posted, a)
		}
	}
	meta := ls.meta
	meta.Text = projector.New(s.opts.Diff).Project(ls.ctrl.Document(), posted)
	meta.Comments = persist.Records(posted)
	meta.Status = persist.StatusSubmitted
	meta.SuggestionMode = false

	saved, err := s.sessions.Save(persist.WithActor(ctx, actor), key, meta)
	if err != nil {
		return View{}, err
	}
	next, err := s.hydrate(key, saved)
	if err != nil {
		return View{}, err
	}
	ls.meta = next.meta
	ls.ctrl = next.ctrl
	log.Info().Str("session", key).Str("actor", actor).Int("annotations", len(posted)).Msg("session submitted")
	s.index(key, ls)
	return s.view(key, actor, ls), nil
}

// Export renders the session in the requested format.
func (s *Service) Export(ctx context.Context, key, actor string, format export.Format, includeDrafts bool) (*export.Result, error) {
	ls, err := s.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer ls.mu.Unlock()

	if err := s.require(ls, actor, rbac.ActionExport); err != nil {
		return nil, err
	}
	list := ls.ctrl.Annotations()
	shown := list
	if !includeDrafts {
		shown = nil
		for _, a := range list {
			if a.IsPosted() {
				shown = append(shown, a)
			}
		}
	}
	result, err := s.exporter.Export(ctx, export.Request{
		Format:        format,
		Title:         ls.meta.Title,
		Owner:         ls.meta.Owner,
		Editor:        ls.meta.Editor,
		Status:        string(ls.meta.Status),
		UpdatedAt:     ls.meta.UpdatedAt,
		Markup:        projector.New(s.opts.Diff).Project(ls.ctrl.Document(), shown),
		Document:      ls.ctrl.Document(),
		Annotations:   list,
		IncludeDrafts: includeDrafts,
	})
	if err != nil {
		return nil, engineError(err)
	}
	return result, nil
}

// History lists saved versions when the backend keeps them.
func (s *Service) History(ctx context.Context, key, actor string, limit int) ([]persist.Version, error) {
	versioned, err := s.versioned(ctx, key, actor)
	if err != nil {
		return nil, err
	}
	versions, err := versioned.History(ctx, key, limit)
	if err != nil {
		return nil, sessionUnavailable(key, err)
	}
	return versions, nil
}

// Version returns the session as it was saved at hash.
func (s *Service) Version(ctx context.Context, key, actor, hash string) (persist.Session, error) {
	versioned, err := s.versioned(ctx, key, actor)
	if err != nil {
		return persist.Session{}, err
	}
	blob, err := versioned.GetVersion(ctx, key, hash)
	if err != nil {
		if errors.Is(err, persist.ErrNotFound) {
			return persist.Session{}, domainError(http.StatusNotFound, "VERSION_NOT_FOUND", "Version not found", map[string]any{"hash": hash})
		}
		return persist.Session{}, err
	}
	sess, err := persist.Decode(blob)
	if err != nil {
		return persist.Session{}, sessionUnavailable(key, err)
	}
	return sess, nil
}

func (s *Service) versioned(ctx context.Context, key, actor string) (persist.Versioned, error) {
	versioned, ok := s.sessions.Blobs().(persist.Versioned)
	if !ok {
		return nil, domainError(http.StatusNotImplemented, "HISTORY_UNSUPPORTED", "Session backend keeps no history", nil)
	}
	ls, err := s.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer ls.mu.Unlock()
	if err := s.require(ls, actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	return versioned, nil
}

// Search looks up posted annotations across sessions.
func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(ctx, q)
}

// acquire returns the live session for key with its lock held, loading it
// from the backend if needed.
func (s *Service) acquire(ctx context.Context, key string) (*liveSession, error) {
	s.mu.Lock()
	ls, ok := s.live[key]
	if !ok {
		ls = &liveSession{}
		s.live[key] = ls
	}
	s.mu.Unlock()

	ls.mu.Lock()
	if ls.ctrl != nil {
		return ls, nil
	}
	meta, err := s.sessions.Load(ctx, key)
	if err == nil {
		var loaded *liveSession
		loaded, err = s.hydrate(key, meta)
		if err == nil {
			ls.meta, ls.ctrl = loaded.meta, loaded.ctrl
			return ls, nil
		}
		err = fmt.Errorf("%w: %w", persist.ErrDeserialization, err)
	}
	ls.mu.Unlock()
	s.evict(key, ls)
	log.Warn().Err(err).Str("session", key).Msg("session unavailable")
	return nil, sessionUnavailable(key, err)
}

func (s *Service) evict(key string, ls *liveSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live[key] == ls {
		delete(s.live, key)
	}
}

// hydrate rebuilds the document and annotation store from a stored session.
func (s *Service) hydrate(key string, meta persist.Session) (*liveSession, error) {
	text := meta.Text
	if strings.TrimSpace(text) == "" {
		text = DefaultContent
	}
	doc, list, err := projector.Rehydrate(text, meta.Annotations())
	if err != nil {
		return nil, err
	}
	store := annotation.NewStore()
	if err := store.Restore(list); err != nil {
		return nil, err
	}
	ctrl, err := controller.New(doc, store, projector.New(s.opts.Diff), editor.NewHeadless(),
		controller.WithLogger(log.Logger.With().Str("session", key).Logger()),
		controller.WithAuthor(meta.Editor),
		controller.WithSuggestionMode(meta.SuggestionMode),
	)
	if err != nil {
		return nil, err
	}
	return &liveSession{meta: meta, ctrl: ctrl}, nil
}

func (s *Service) persist(ctx context.Context, key, actor string, ls *liveSession) error {
	meta := ls.meta
	meta.Text = ls.ctrl.Markup()
	meta.Comments = persist.Records(ls.ctrl.Annotations())
	meta.SuggestionMode = ls.ctrl.SuggestionMode()
	saved, err := s.sessions.Save(persist.WithActor(ctx, actor), key, meta)
	if err != nil {
		log.Error().Err(err).Str("session", key).Msg("session save failed")
		return domainError(http.StatusServiceUnavailable, "PERSIST_FAILED", "Session could not be saved", nil)
	}
	ls.meta = saved
	return nil
}

// rollback discards unsaved controller state. If the saved blob cannot be
// hydrated either, the next acquire reloads from the backend.
func (s *Service) rollback(key string, ls *liveSession) {
	next, err := s.hydrate(key, ls.meta)
	if err != nil {
		log.Error().Err(err).Str("session", key).Msg("session rollback failed")
		ls.ctrl = nil
		return
	}
	ls.ctrl = next.ctrl
}

func (s *Service) require(ls *liveSession, actor string, action rbac.Action) error {
	role := rbac.RoleFor(actor, ls.meta.Owner, ls.meta.Editor)
	if !rbac.Can(role, action) {
		return forbidden(string(action))
	}
	return nil
}

// actionFor maps an event to the permission it needs.
func actionFor(ev controller.Event) rbac.Action {
	switch ev.(type) {
	case controller.Edit, controller.Mode:
		return rbac.ActionEdit
	case controller.Choose, controller.Type, controller.Confirm, controller.Remove:
		return rbac.ActionAnnotate
	default:
		return rbac.ActionRead
	}
}

func (s *Service) view(key, actor string, ls *liveSession) View {
	return View{
		Key:            key,
		Title:          ls.meta.Title,
		Owner:          ls.meta.Owner,
		Editor:         ls.meta.Editor,
		Status:         ls.meta.Status,
		Role:           rbac.RoleFor(actor, ls.meta.Owner, ls.meta.Editor),
		State:          ls.ctrl.State(),
		Markup:         ls.ctrl.Markup(),
		Menu:           ls.ctrl.Menu(),
		Selection:      ls.ctrl.Selection(),
		SuggestionMode: ls.ctrl.SuggestionMode(),
		Highlighted:    ls.ctrl.Highlighted(),
		Bubbles:        ls.ctrl.Bubbles(),
		Annotations:    persist.Records(ls.ctrl.Annotations()),
		UpdatedAt:      ls.meta.UpdatedAt,
	}
}

// index queues the posted annotations of a session for search.
func (s *Service) index(key string, ls *liveSession) {
	if s.search == nil || s.pool == nil {
		return
	}
	records := searchRecords(key, ls)
	if len(records) == 0 {
		return
	}
	s.pool.Submit("index "+key, func(ctx context.Context) error {
		return s.search.IndexAnnotations(ctx, records)
	})
}

func (s *Service) unindex(id string) {
	if s.search == nil || s.pool == nil || id == "" {
		return
	}
	s.pool.Submit("unindex "+id, func(ctx context.Context) error {
		return s.search.DeleteAnnotation(ctx, id)
	})
}

func searchRecords(key string, ls *liveSession) []search.AnnotationRecord {
	doc := ls.ctrl.Document()
	var out []search.AnnotationRecord
	for _, a := range ls.ctrl.Annotations() {
		if !a.IsPosted() {
			continue
		}
		quote := a.OriginalText
		if a.Kind == annotation.KindComment && !a.Orphaned {
			quote, _ = anchor.TextBetween(doc, a.Range)
		}
		out = append(out, search.AnnotationRecord{
			ID:         a.ID,
			SessionKey: key,
			Kind:       string(a.Kind),
			Title:      ls.meta.Title,
			Body:       a.Text,
			Quote:      quote,
			Author:     a.Author,
		})
	}
	return out
}
