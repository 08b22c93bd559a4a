// Package export renders a session, its text and its posted annotations, as a
// standalone HTML page, a PDF or a DOCX file.
package export

import (
	"errors"
	"time"

	"editpool/api/internal/annotation"
	"editpool/api/internal/document"
)

// Format represents the export output format.
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat maps a query value to a Format; empty means HTML.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatPDF, FormatDOCX:
		return Format(s), nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Request contains parameters for an export operation.
type Request struct {
	Format    Format
	Title     string
	Owner     string
	Editor    string
	Status    string
	UpdatedAt time.Time
	// Markup is the projected document; annotation markers are kept so the
	// page can style them.
	Markup        string
	Document      *document.Document
	Annotations   []annotation.Annotation
	IncludeDrafts bool
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
