// Package normalize implements the Normalizer interface.
// It converts the rewritten content region into Markdown for the text
// renderers and the HTTP service.
package normalize

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/net/html"
)

// MarkdownNormalizer converts HTML to Markdown using html-to-markdown.
type MarkdownNormalizer struct {
	// Domain resolves relative links, e.g. "https://example.com".
	Domain string
	conv   *converter.Converter
}

// New creates a MarkdownNormalizer. domain may be empty.
func New(domain string) *MarkdownNormalizer {
	return &MarkdownNormalizer{
		Domain: domain,
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Normalize converts the subtree rooted at n into Markdown.
func (m *MarkdownNormalizer) Normalize(n *html.Node) (string, error) {
	if n == nil {
		return "", nil
	}
	out, err := m.conv.ConvertNode(n, converter.WithDomain(m.Domain))
	if err != nil {
		return "", errors.Errorf("converting HTML to markdown: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
