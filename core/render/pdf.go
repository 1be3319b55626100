package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"gitlab.com/tozd/go/errors"

	"github.com/gaurav-prasanna/easyread/core"
)

var (
	numberedRegex = regexp.MustCompile(`^\d+\.\s`)
	italicRegex   = regexp.MustCompile(`(?:^|\s)\*([^*]+)\*(?:\s|$)`)
)

var headingSizes = map[int]float64{1: 18, 2: 15, 3: 13, 4: 12, 5: 11, 6: 10}

// PDFRenderer renders the rewritten Markdown as a printable handout, in a
// larger body size than usual for easier reading.
type PDFRenderer struct {
	BodySize float64
}

// NewPDFRenderer creates a PDFRenderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{BodySize: 12}
}

// Render converts page.Markdown into PDF bytes.
func (r *PDFRenderer) Render(page *core.RewrittenPage) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	w := &pdfWriter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor(""), body: r.BodySize}
	w.header(page)

	inCode := false
	for _, line := range strings.Split(page.Markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "```"):
			inCode = !inCode
			pdf.Ln(2)
		case inCode:
			w.code(line)
		case trimmed == "":
			pdf.Ln(3)
		case strings.HasPrefix(trimmed, "#"):
			level := len(trimmed) - len(strings.TrimLeft(trimmed, "#"))
			w.heading(strings.TrimSpace(trimmed[level:]), level)
		case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "):
			w.paragraph("- " + strings.TrimSpace(trimmed[2:]))
		case numberedRegex.MatchString(trimmed):
			w.paragraph(trimmed)
		default:
			w.paragraph(line)
		}
	}

	if err := pdf.Error(); err != nil {
		return nil, errors.Errorf("building PDF: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Errorf("writing PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// Extension returns the file extension for PDF output.
func (r *PDFRenderer) Extension() string {
	return ".pdf"
}

type pdfWriter struct {
	pdf  *gofpdf.Fpdf
	tr   func(string) string
	body float64
}

func (w *pdfWriter) header(page *core.RewrittenPage) {
	if page.Meta.Title != "" {
		w.pdf.SetFont("Helvetica", "B", 18)
		w.pdf.MultiCell(0, 8, w.tr(page.Meta.Title), "", "L", false)
		w.pdf.Ln(4)
	}

	w.pdf.SetFont("Helvetica", "I", 9)
	w.pdf.SetTextColor(100, 100, 100)
	if page.Meta.URL != "" {
		w.pdf.MultiCell(0, 5, w.tr("Source: "+page.Meta.URL), "", "L", false)
	}
	w.pdf.MultiCell(0, 5, w.tr(describe(page.Transform)), "", "L", false)
	w.pdf.SetTextColor(0, 0, 0)
	w.pdf.Ln(6)
}

func (w *pdfWriter) heading(text string, level int) {
	size, ok := headingSizes[level]
	if !ok {
		size = 10
	}
	w.pdf.Ln(4)
	w.pdf.SetFont("Helvetica", "B", size)
	w.pdf.MultiCell(0, size*0.6, w.tr(cleanInlineMarkdown(text)), "", "L", false)
	w.pdf.Ln(2)
}

func (w *pdfWriter) paragraph(text string) {
	w.pdf.SetFont("Helvetica", "", w.body)
	w.pdf.MultiCell(0, w.body*0.5, w.tr(cleanInlineMarkdown(text)), "", "L", false)
}

func (w *pdfWriter) code(line string) {
	w.pdf.SetFont("Courier", "", 9)
	w.pdf.SetFillColor(245, 245, 245)
	w.pdf.MultiCell(0, 4.5, w.tr(line), "", "L", true)
}

// describe is the one-line summary of how the page was rewritten.
func describe(t core.Transform) string {
	lang := t.TargetLanguage
	if lang == "" {
		lang = core.LanguageOriginal
	}
	return fmt.Sprintf("Rewritten in %s mode, intensity %d, language %s", t.Mode, t.Intensity, lang)
}

// cleanInlineMarkdown strips inline Markdown formatting for PDF rendering.
func cleanInlineMarkdown(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "__", "")
	text = italicRegex.ReplaceAllString(text, " $1 ")
	text = codeRegex.ReplaceAllString(text, "$1")
	text = linkRegex.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}
