package export

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"editpool/api/internal/anchor"
	"editpool/api/internal/annotation"
)

type renderFunc func(ctx context.Context, html, title string) (*Result, error)

// Service provides session export functionality.
type Service struct {
	pdf  renderFunc
	docx renderFunc
}

// NewService creates an export service backed by headless Chrome for PDF
// and pandoc for DOCX.
func NewService() *Service {
	return &Service{pdf: exportPDF, docx: exportDOCX}
}

// Export generates an export in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	html, err := RenderSessionHTML(s.templateData(req))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML, "":
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(req.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return s.pdf(ctx, html, req.Title)
	case FormatDOCX:
		return s.docx(ctx, html, req.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

func (s *Service) templateData(req Request) TemplateData {
	data := TemplateData{
		Title:       req.Title,
		Owner:       req.Owner,
		Editor:      req.Editor,
		Status:      req.Status,
		UpdatedAt:   req.UpdatedAt,
		ContentHTML: template.HTML(req.Markup),
	}
	for _, a := range req.Annotations {
		if a.IsDraft() && !req.IncludeDrafts {
			continue
		}
		note := TemplateNote{
			ID:       a.ID,
			Text:     a.Text,
			Original: a.OriginalText,
			Author:   a.Author,
			State:    string(a.State),
			Orphaned: a.Orphaned,
		}
		if a.CreatedAt != nil {
			note.CreatedAt = *a.CreatedAt
		}
		if req.Document != nil && !a.Orphaned {
			if quote, err := anchor.TextBetween(req.Document, a.Range); err == nil {
				note.Quote = quote
			}
		}
		if a.Kind == annotation.KindSuggestion {
			data.Suggestions = append(data.Suggestions, note)
		} else {
			data.Comments = append(data.Comments, note)
		}
	}
	return data
}

const maxFilenameLen = 50

// sanitizeFilename maps a session title to an ASCII file name stem: spaces
// become hyphens and anything outside [A-Za-z0-9_-] is dropped.
func sanitizeFilename(title string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '-'
		case r == '-' || r == '_',
			'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
			return r
		default:
			return -1
		}
	}, strings.TrimSpace(title))
	if len(name) > maxFilenameLen {
		name = name[:maxFilenameLen]
	}
	if name == "" {
		return "session"
	}
	return name
}
