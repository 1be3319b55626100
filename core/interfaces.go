// Package core defines the pipeline interfaces and shared types for easyread.
// Each stage of the pipeline is a small interface so the dispatcher and the
// shells (CLI, HTTP service) can be tested against fakes.
package core

import (
	"context"

	"golang.org/x/net/html"
)

// FetchResult holds the raw HTML and response metadata from a fetch.
type FetchResult struct {
	URL        string
	StatusCode int
	HTML       string
}

// PageMetadata holds metadata extracted from the page and its source.
type PageMetadata struct {
	URL       string `json:"url"`
	Domain    string `json:"domain"`
	Path      string `json:"path"`
	Title     string `json:"title"`
	Language  string `json:"language"`
	FetchedAt string `json:"fetched_at"` // ISO8601
}

// Fetcher retrieves raw HTML from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// Rewriter sends one batch to the language model and returns the
// replacement text keyed by batch-local unit id. Rewriters that need
// credentials also implement HasKey() bool so a run without a key fails
// before any batch is sent.
type Rewriter interface {
	Rewrite(ctx context.Context, batch Batch, t Transform) (map[string]string, error)
}

// Normalizer converts an HTML subtree into Markdown.
type Normalizer interface {
	Normalize(n *html.Node) (string, error)
}

// Renderer converts a rewritten page into a final output format.
type Renderer interface {
	Render(page *RewrittenPage) ([]byte, error)
	// Extension returns the file extension for this renderer (e.g. ".md", ".pdf").
	Extension() string
}

// Preferences is the key-value store user settings are read from.
type Preferences interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}
