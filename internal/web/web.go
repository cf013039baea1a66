// Package web holds the HTML pages and static assets served by the API.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page names.
const (
	IndexPage  = "index.html"
	ResultPage = "result.html"
)

// IndexData is rendered into the form page.
type IndexData struct {
	Version string
}

// ResultData is rendered into the result page. Context holds either the
// outcome label or "Error: <message>".
type ResultData struct {
	Context  string
	Positive bool
	Failed   bool
	Version  string
}

// Renderer executes the embedded templates. It is safe for concurrent use.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render executes the named page into w. Nothing is written if execution fails.
func (r *Renderer) Render(w io.Writer, name string, data any) error {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded static tree; mount it under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServerFS(sub)
}
