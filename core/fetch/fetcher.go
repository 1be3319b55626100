// Package fetch implements the Fetcher interface.
// It loads the document to rewrite: over HTTP, through headless Chrome for
// pages built by scripts, or from a local file.
package fetch

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/gaurav-prasanna/easyread/core"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "easyread/1.0 (https://github.com/gaurav-prasanna/easyread)"
	// maxBodySize caps what a single page may weigh.
	maxBodySize = 10 << 20
)

// ErrUnexpectedStatus is returned for non-2xx page responses.
var ErrUnexpectedStatus = errors.Base("unexpected status")

// HTTPFetcher fetches web pages via HTTP.
type HTTPFetcher struct {
	client *http.Client
}

// New creates an HTTPFetcher with a sensible timeout.
func New() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: defaultTimeout},
	}
}

// Fetch retrieves the HTML content of the given URL.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*core.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("%w %d for %s", ErrUnexpectedStatus, resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Errorf("reading response body: %w", err)
	}

	return &core.FetchResult{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		HTML:       string(body),
	}, nil
}

// FileFetcher reads documents from disk. It accepts plain paths and
// file:// URLs.
type FileFetcher struct{}

// Fetch reads the file named by src.
func (FileFetcher) Fetch(_ context.Context, src string) (*core.FetchResult, error) {
	path := strings.TrimPrefix(src, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &core.FetchResult{
		URL:        "file://" + filepath.ToSlash(abs),
		StatusCode: http.StatusOK,
		HTML:       string(data),
	}, nil
}

// IsRemote reports whether src is an http(s) URL rather than a file.
func IsRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// Auto routes http(s) sources to Remote and everything else to FileFetcher.
type Auto struct {
	Remote core.Fetcher
}

// Fetch loads src with the fetcher matching its scheme.
func (a Auto) Fetch(ctx context.Context, src string) (*core.FetchResult, error) {
	if IsRemote(src) {
		return a.Remote.Fetch(ctx, src)
	}
	return FileFetcher{}.Fetch(ctx, src)
}
