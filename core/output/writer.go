// Package output names and writes rendered files.
// A single page is named after its source (example_com_docs_intro.md,
// article.md for a local article.html); crawled pages mirror the URL path.
package output

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// Writer writes rendered output to disk.
type Writer struct {
	OutputDir string
}

// New creates a Writer targeting the given output directory.
// If outputDir is empty, it defaults to the current working directory.
func New(outputDir string) (*Writer, error) {
	if outputDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Errorf("getting working directory: %w", err)
		}
		outputDir = wd
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, errors.Errorf("creating output directory: %w", err)
	}

	return &Writer{OutputDir: outputDir}, nil
}

// WriteOne writes the output for a single source.
func (w *Writer) WriteOne(source string, data []byte, ext string) (string, error) {
	path := filepath.Join(w.OutputDir, FileName(source)+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Errorf("writing file %s: %w", path, err)
	}
	return path, nil
}

// WriteMirror writes a crawled page, mirroring its URL path below the
// output directory: https://site.com/docs/intro → docs/intro.md.
func (w *Writer) WriteMirror(rawURL string, data []byte, ext string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Errorf("parsing URL: %w", err)
	}

	urlPath := strings.Trim(parsed.Path, "/")
	if urlPath == "" {
		urlPath = "index"
	}
	urlPath = strings.TrimSuffix(urlPath, filepath.Ext(urlPath))

	fullPath := filepath.Join(w.OutputDir, filepath.FromSlash(urlPath)+ext)
	if !strings.HasPrefix(fullPath, filepath.Clean(w.OutputDir)+string(filepath.Separator)) {
		return "", errors.Errorf("refusing to write outside %s: %s", w.OutputDir, rawURL)
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Errorf("creating directory %s: %w", dir, err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", errors.Errorf("writing file %s: %w", fullPath, err)
	}
	return fullPath, nil
}

// FileName turns a source into a flat file name without extension.
func FileName(source string) string {
	parsed, err := url.Parse(source)
	if err != nil || parsed.Host == "" {
		base := filepath.Base(strings.TrimPrefix(source, "file://"))
		return flatten(strings.TrimSuffix(base, filepath.Ext(base)))
	}

	parts := []string{flatten(parsed.Host)}
	if path := strings.Trim(parsed.Path, "/"); path != "" {
		for _, seg := range strings.Split(path, "/") {
			parts = append(parts, flatten(seg))
		}
	}
	return strings.Join(parts, "_")
}

// flatten replaces non-alphanumeric characters with underscores.
func flatten(s string) string {
	var b strings.Builder
	for _, ch := range s {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
