package crawl

import (
	"net/url"
	"path"
	"strings"
)

// staticExtensions are never worth rewriting.
var staticExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".webp": true, ".ico": true, ".bmp": true,
	".css": true, ".js": true, ".mjs": true, ".json": true, ".xml": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".mp4": true, ".webm": true, ".mp3": true, ".wav": true,
	".zip": true, ".tar": true, ".gz": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
}

// Scope decides which URLs belong to the crawled site. A leading "www."
// is ignored on both sides.
type Scope struct {
	host string
}

// NewScope creates a Scope for host.
func NewScope(host string) Scope {
	return Scope{host: bareHost(host)}
}

// Allows reports whether rawURL is an http(s) page on the same site.
func (s Scope) Allows(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return bareHost(parsed.Host) == s.host && !IsStaticAsset(rawURL)
}

func bareHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// IsStaticAsset checks if a URL points to a static asset (image, CSS, JS, etc.).
func IsStaticAsset(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return staticExtensions[strings.ToLower(path.Ext(parsed.Path))]
}

// NormalizeURL strips fragments and trailing slashes for deduplication.
func NormalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parsed.Fragment = ""
	if parsed.Path != "/" {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}
	return parsed.String()
}
