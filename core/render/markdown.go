// Package render provides the output formats of the rewrite command.
// Every renderer reads the same RewrittenPage.
package render

import (
	"strings"

	"github.com/gaurav-prasanna/easyread/core"
)

// HTMLRenderer writes the whole rewritten document.
type HTMLRenderer struct{}

// NewHTMLRenderer creates an HTMLRenderer.
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{}
}

// Render returns the serialized document.
func (r *HTMLRenderer) Render(page *core.RewrittenPage) ([]byte, error) {
	return []byte(page.Document), nil
}

// Extension returns the file extension for HTML output.
func (r *HTMLRenderer) Extension() string {
	return ".html"
}

// MarkdownRenderer writes the rewritten content region as Markdown,
// headed by the page title when there is one.
type MarkdownRenderer struct{}

// NewMarkdownRenderer creates a MarkdownRenderer.
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// Render returns the Markdown as bytes.
func (r *MarkdownRenderer) Render(page *core.RewrittenPage) ([]byte, error) {
	var b strings.Builder
	title := strings.TrimSpace(page.Meta.Title)
	if title != "" && !strings.HasPrefix(strings.TrimSpace(page.Markdown), "# ") {
		b.WriteString("# ")
		b.WriteString(title)
		b.WriteString("\n\n")
	}
	b.WriteString(page.Markdown)
	b.WriteString("\n")
	return []byte(b.String()), nil
}

// Extension returns the file extension for Markdown output.
func (r *MarkdownRenderer) Extension() string {
	return ".md"
}

// ForFormat returns the renderer for a format name: html, markdown (md),
// pdf or json.
func ForFormat(format string) (core.Renderer, bool) {
	switch strings.ToLower(format) {
	case "html":
		return NewHTMLRenderer(), true
	case "markdown", "md":
		return NewMarkdownRenderer(), true
	case "pdf":
		return NewPDFRenderer(), true
	case "json":
		return NewJSONRenderer(), true
	default:
		return nil, false
	}
}
