package app

import (
	"errors"
	"fmt"
	"net/http"

	"editpool/api/internal/anchor"
	"editpool/api/internal/annotation"
	"editpool/api/internal/export"
	"editpool/api/internal/persist"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// landingPage is where the edit page sends the user when a session cannot be
// shown.
const landingPage = "/"

// sessionUnavailable reports a missing or unreadable session together with a
// redirect the client should follow.
func sessionUnavailable(key string, err error) error {
	details := map[string]any{"key": key, "redirect": landingPage}
	switch {
	case errors.Is(err, persist.ErrNotFound):
		return domainError(http.StatusNotFound, "SESSION_UNAVAILABLE", "Session not found", details)
	case errors.Is(err, persist.ErrDeserialization):
		return domainError(http.StatusUnprocessableEntity, "SESSION_UNAVAILABLE", "Session data is corrupt", details)
	default:
		return err
	}
}

// engineError translates annotation engine sentinels. Anything else passes
// through unchanged.
func engineError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, anchor.ErrInvalidRange):
		return domainError(http.StatusUnprocessableEntity, "INVALID_RANGE", err.Error(), nil)
	case errors.Is(err, annotation.ErrConcurrentDraft):
		return domainError(http.StatusConflict, "CONCURRENT_DRAFT", "Another draft is already open", nil)
	case errors.Is(err, annotation.ErrNotFound):
		return domainError(http.StatusNotFound, "ANNOTATION_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, annotation.ErrInvalidState):
		return domainError(http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, export.ErrUnsupportedFormat):
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be html, pdf or docx", nil)
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil)
	default:
		return err
	}
}

func forbidden(action string) error {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"action": action})
}
