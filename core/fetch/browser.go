package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/gaurav-prasanna/easyread/core"
)

const defaultSettle = 500 * time.Millisecond

// BrowserFetcher renders pages in headless Chrome and returns the DOM after
// scripts ran. Chrome is launched on first use and shared until Close.
type BrowserFetcher struct {
	// RemoteURL connects to an existing Chrome DevTools endpoint instead of
	// launching one.
	RemoteURL string
	Timeout   time.Duration
	// Settle is how long the DOM must stay unchanged before it is read.
	Settle time.Duration

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewBrowser creates a BrowserFetcher. Chrome is not started until the
// first Fetch.
func NewBrowser(remoteURL string) *BrowserFetcher {
	return &BrowserFetcher{RemoteURL: remoteURL, Timeout: defaultTimeout, Settle: defaultSettle}
}

func (f *BrowserFetcher) connect(ctx context.Context) (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}

	controlURL := f.RemoteURL
	if controlURL == "" {
		l := launcher.New().Headless(true).Leakless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, errors.Errorf("launching chrome: %w", err)
		}
		f.lnch = l
		controlURL = u
		zerolog.Ctx(ctx).Debug().Str("control_url", u).Msg("chrome launched")
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, errors.Errorf("connecting to chrome: %w", err)
	}
	f.browser = b
	return b, nil
}

// Fetch opens url in a fresh tab, waits for the page to settle and returns
// the serialized document.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (*core.FetchResult, error) {
	b, err := f.connect(ctx)
	if err != nil {
		return nil, err
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, errors.Errorf("opening %s: %w", url, err)
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return nil, errors.Errorf("waiting for %s to load: %w", url, err)
	}
	if f.Settle > 0 {
		if err := page.WaitStable(f.Settle); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Str("url", url).Msg("dom did not settle")
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, errors.Errorf("reading rendered DOM of %s: %w", url, err)
	}
	info, err := page.Info()
	finalURL := url
	if err == nil && info.URL != "" {
		finalURL = info.URL
	}

	return &core.FetchResult{URL: finalURL, StatusCode: 200, HTML: html}, nil
}

// Close shuts the browser down, along with Chrome if it was launched here.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	if f.lnch != nil {
		f.lnch.Cleanup()
		f.lnch = nil
	}
	if err != nil {
		return errors.Errorf("closing chrome: %w", err)
	}
	return nil
}
