package annotation

import "errors"

var (
	ErrConcurrentDraft = errors.New("another draft is open")
	ErrNotFound        = errors.New("annotation not found")
	ErrInvalidState    = errors.New("invalid annotation state")
)
