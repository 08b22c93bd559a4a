package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var sessionTemplate = template.Must(template.New("session.html").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(layout)
	},
}).ParseFS(templateFS, "templates/session.html"))

// TemplateData holds data for session template rendering.
type TemplateData struct {
	Title       string
	Owner       string
	Editor      string
	Status      string
	UpdatedAt   time.Time
	ContentHTML template.HTML
	Comments    []TemplateNote
	Suggestions []TemplateNote
}

// TemplateNote is one annotation as listed under the document.
type TemplateNote struct {
	ID        string
	Quote     string
	Text      string
	Original  string
	Author    string
	State     string
	Orphaned  bool
	CreatedAt time.Time
}

// RenderSessionHTML renders the session template with provided data.
func RenderSessionHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := sessionTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
