package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"editpool/api/internal/annotation"
	"editpool/api/internal/controller"
	"editpool/api/internal/export"
	"editpool/api/internal/persist"
	"editpool/api/internal/search"
)

// ActorHeader names the user making a request.
const ActorHeader = "X-Editpool-User"

type HTTPServer struct {
	service    *Service
	corsOrigin string
	validate   *validator.Validate
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, validate: validator.New()}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

// EventRequest is the JSON form of a controller event.
type EventRequest struct {
	Type       string `json:"type" validate:"required,oneof=select choose type confirm dismiss mode edit click expand remove"`
	From       int    `json:"from" validate:"min=0"`
	To         int    `json:"to" validate:"min=0"`
	Kind       string `json:"kind" validate:"required_if=Type choose,omitempty,oneof=comment suggestion"`
	ID         string `json:"id" validate:"max=128"`
	Text       string `json:"text" validate:"max=20000"`
	Suggestion bool   `json:"suggestion"`
	Pos        int    `json:"pos" validate:"min=0"`
	Delete     int    `json:"delete" validate:"min=0"`
	Insert     string `json:"insert" validate:"max=100000"`
}

// Event converts the request into a controller event.
func (r EventRequest) Event() controller.Event {
	switch r.Type {
	case "select":
		return controller.Select{From: r.From, To: r.To}
	case "choose":
		return controller.Choose{Kind: annotation.Kind(r.Kind)}
	case "type":
		return controller.Type{ID: r.ID, Text: r.Text}
	case "confirm":
		return controller.Confirm{ID: r.ID}
	case "dismiss":
		return controller.Dismiss{}
	case "mode":
		return controller.Mode{Suggestion: r.Suggestion}
	case "edit":
		return controller.Edit{Pos: r.Pos, Delete: r.Delete, Insert: r.Insert}
	case "click":
		return controller.Click{ID: r.ID}
	case "expand":
		return controller.Expand{ID: r.ID}
	case "remove":
		return controller.Remove{ID: r.ID}
	default:
		return nil
	}
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"sessions": map[string]any{"status": "ok"},
			"search":   map[string]any{"healthy": s.service.search != nil && s.service.search.Healthy()},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["sessions"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	actor := strings.TrimSpace(r.Header.Get(ActorHeader))
	parts := splitPath(r.URL.Path)

	if len(parts) == 2 && parts[0] == "api" && parts[1] == "search" && r.Method == http.MethodGet {
		s.handleSearch(w, r)
		return
	}

	if len(parts) == 2 && parts[0] == "api" && parts[1] == "sessions" && r.Method == http.MethodPost {
		var body StartInput
		if !s.decodeValid(w, r, &body) {
			return
		}
		view, err := s.service.StartSession(r.Context(), actor, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "sessions" {
		s.handleSession(w, r, actor, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request, actor, key string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 && r.Method == http.MethodGet {
		view, err := s.service.OpenSession(ctx, key, actor)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	if len(rest) == 1 && rest[0] == "events" && r.Method == http.MethodPost {
		var body EventRequest
		if !s.decodeValid(w, r, &body) {
			return
		}
		view, err := s.service.Dispatch(ctx, key, actor, body.Event())
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	if len(rest) == 1 && rest[0] == "submit" && r.Method == http.MethodPost {
		view, err := s.service.Submit(ctx, key, actor)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	if len(rest) == 1 && rest[0] == "export" && r.Method == http.MethodGet {
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be html, pdf or docx", nil)
			return
		}
		includeDrafts, _ := strconv.ParseBool(r.URL.Query().Get("drafts"))
		result, err := s.service.Export(ctx, key, actor, format, includeDrafts)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	if len(rest) == 1 && rest[0] == "history" && r.Method == http.MethodGet {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > 200 {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be between 1 and 200", nil)
				return
			}
			limit = parsed
		}
		versions, err := s.service.History(ctx, key, actor, limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		if versions == nil {
			versions = []persist.Version{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"key": key, "versions": versions})
		return
	}

	if len(rest) == 2 && rest[0] == "history" && r.Method == http.MethodGet {
		sess, err := s.service.Version(ctx, key, actor, rest[1])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := search.Query{
		Text:       strings.TrimSpace(query.Get("q")),
		Kind:       query.Get("kind"),
		SessionKey: query.Get("session"),
	}
	if q.Text == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
		return
	}
	if q.Kind != "" && !annotation.Kind(q.Kind).Valid() {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "kind must be comment or suggestion", nil)
		return
	}
	q.Limit, _ = strconv.Atoi(query.Get("limit"))
	q.Offset, _ = strconv.Atoi(query.Get("offset"))
	if q.Limit > 100 {
		q.Limit = 100
	}
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), q))
}

// decodeValid decodes a JSON body and runs struct validation, writing the
// error response itself when either fails.
func (s *HTTPServer) decodeValid(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	if err := s.validate.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid request", map[string]any{"fields": fields})
			return false
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, "+ActorHeader)
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, persist.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
