// Package crawl walks a site for --all mode. It discovers internal pages
// via sitemap.xml, falling back to breadth-first link discovery, and hands
// each fetched page to the caller exactly once.
package crawl

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/gaurav-prasanna/easyread/core"
)

// DefaultMaxPages bounds a crawl.
const DefaultMaxPages = 100

// ErrStop can be returned from a visit function to end the walk early
// without reporting an error.
var ErrStop = errors.Base("stop crawl")

type sitemapURL struct {
	Loc string `xml:"loc"`
}

type urlSet struct {
	URLs []sitemapURL `xml:"url"`
}

// Crawler discovers and fetches the pages of one site.
type Crawler struct {
	Fetcher  core.Fetcher
	MaxPages int
	client   *http.Client
}

// New creates a Crawler. maxPages <= 0 means DefaultMaxPages.
func New(fetcher core.Fetcher, maxPages int) *Crawler {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Crawler{
		Fetcher:  fetcher,
		MaxPages: maxPages,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Walk calls visit for every internal page reachable from baseURL, in
// discovery order. Pages that fail to fetch are logged and skipped.
func (c *Crawler) Walk(ctx context.Context, baseURL string, visit func(*core.FetchResult) error) error {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return errors.Errorf("parsing base URL: %w", err)
	}
	logger := zerolog.Ctx(ctx)
	scope := NewScope(parsed.Host)

	frontier := NewFrontier(c.MaxPages)
	frontier.Add(NormalizeURL(baseURL))

	sitemap := parsed.Scheme + "://" + parsed.Host + "/sitemap.xml"
	listed, err := c.sitemap(ctx, sitemap, scope)
	fromSitemap := err == nil && len(listed) > 0
	if fromSitemap {
		for _, u := range listed {
			frontier.Add(u)
		}
		logger.Debug().Int("urls", len(listed)).Msg("using sitemap")
	} else if err != nil {
		logger.Debug().Err(err).Msg("no usable sitemap, following links")
	}

	for frontier.HasNext() {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		current := frontier.Next()

		res, err := c.Fetcher.Fetch(ctx, current)
		if err != nil {
			logger.Warn().Err(err).Str("url", current).Msg("skipping page")
			continue
		}

		if !fromSitemap {
			for _, link := range links(res.HTML, current) {
				if scope.Allows(link) {
					frontier.Add(NormalizeURL(link))
				}
			}
		}

		if err := visit(res); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Discover returns the URLs of the pages Walk fetched.
func (c *Crawler) Discover(ctx context.Context, baseURL string) ([]string, error) {
	var urls []string
	err := c.Walk(ctx, baseURL, func(res *core.FetchResult) error {
		urls = append(urls, res.URL)
		return nil
	})
	return urls, err
}

func (c *Crawler) sitemap(ctx context.Context, sitemapURL string, scope Scope) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Errorf("fetching sitemap: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("sitemap returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Errorf("reading sitemap: %w", err)
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, errors.Errorf("parsing sitemap: %w", err)
	}

	var urls []string
	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Loc)
		if scope.Allows(loc) {
			urls = append(urls, NormalizeURL(loc))
		}
	}
	return urls, nil
}

// links extracts every href from <a> tags, resolved against pageURL.
func links(page, pageURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if resolved := resolve(strings.TrimSpace(href), base); resolved != "" {
			out = append(out, resolved)
		}
	})
	return out
}

func resolve(href string, base *url.URL) string {
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	for _, scheme := range []string{"mailto:", "javascript:", "tel:", "data:"} {
		if strings.HasPrefix(strings.ToLower(href), scheme) {
			return ""
		}
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)
	resolved.Fragment = ""
	return resolved.String()
}
