// The rewrite command orchestrates the pipeline:
// fetch → locate → collect → rewrite batches → patch → render → write.

package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/gaurav-prasanna/easyread/core"
	"github.com/gaurav-prasanna/easyread/core/dispatch"
	"github.com/gaurav-prasanna/easyread/core/fetch"
	"github.com/gaurav-prasanna/easyread/core/locate"
	"github.com/gaurav-prasanna/easyread/core/normalize"
	"github.com/gaurav-prasanna/easyread/core/output"
	"github.com/gaurav-prasanna/easyread/core/patch"
	"github.com/gaurav-prasanna/easyread/core/render"
	"github.com/gaurav-prasanna/easyread/core/rewrite"
	"github.com/gaurav-prasanna/easyread/crawl"
	"github.com/gaurav-prasanna/easyread/prefs"
)

// Flag variables.
var (
	flagAll          bool
	flagMarkdown     bool
	flagPDF          bool
	flagJSON         bool
	flagMode         string
	flagLevel        int
	flagLanguage     string
	flagInstructions string
	flagRender       bool
	flagMaxPages     int
	flagOutputDir    string
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite <url|file>",
	Short: "Rewrite a page into easier-to-read text",
	Long: `Rewrite loads a page, finds its main content, rewrites the text with the
configured language model and writes the result in the chosen format.

Unset options come from stored preferences (see "easyread prefs").

Examples:
  easyread rewrite https://example.com/article
  easyread rewrite ./article.html --mode techExplainer --level 2 --markdown
  easyread rewrite https://example.com/article --language es --pdf
  easyread rewrite https://docs.example.com --all --output_dir ./out`,
	Args: cobra.ExactArgs(1),
	RunE: runRewrite,
}

func init() {
	rootCmd.AddCommand(rewriteCmd)

	rewriteCmd.Flags().BoolVar(&flagAll, "all", false, "Rewrite every discovered page of the site")

	// Output format flags (mutually exclusive, default HTML).
	rewriteCmd.Flags().BoolVar(&flagMarkdown, "markdown", false, "Output Markdown of the content region")
	rewriteCmd.Flags().BoolVar(&flagPDF, "pdf", false, "Output PDF")
	rewriteCmd.Flags().BoolVar(&flagJSON, "json", false, "Output a structured JSON report")

	rewriteCmd.Flags().StringVar(&flagMode, "mode", "", "Rewriting mode (eli5Simplify, visualClarity, mindIlluminator, techExplainer, customPrompt)")
	rewriteCmd.Flags().IntVar(&flagLevel, "level", 0, "Intensity from 1 (simplest) to 5 (most nuance)")
	rewriteCmd.Flags().StringVar(&flagLanguage, "language", "", `Target language code, or "original"`)
	rewriteCmd.Flags().StringVar(&flagInstructions, "instructions", "", "Free-text instructions for customPrompt mode")

	rewriteCmd.Flags().BoolVar(&flagRender, "render", false, "Load pages in headless Chrome so script-built content is included")
	rewriteCmd.Flags().IntVar(&flagMaxPages, "max-pages", crawl.DefaultMaxPages, "Page limit for --all")
	rewriteCmd.Flags().StringVar(&flagOutputDir, "output_dir", "", "Output directory (default: current directory)")
}

func runRewrite(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	source := args[0]

	renderer, err := selectRenderer()
	if err != nil {
		return err
	}
	if flagAll && !fetch.IsRemote(source) {
		return errors.Errorf("--all needs an http(s) URL, got %s", source)
	}
	if fetch.IsRemote(source) {
		if parsed, perr := url.Parse(source); perr != nil || parsed.Host == "" {
			return errors.Errorf("invalid URL: %s (must include scheme, e.g. https://example.com)", source)
		}
	}

	store, err := openPrefs(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	t, err := transformFromFlags(ctx, store)
	if err != nil {
		return err
	}
	d, err := newDispatcher(ctx, store)
	if err != nil {
		return err
	}

	remote, closeRemote := remoteFetcher()
	defer closeRemote()
	fetcher := fetch.Auto{Remote: remote}

	writer, err := output.New(flagOutputDir)
	if err != nil {
		return errors.Errorf("initializing output writer: %w", err)
	}

	p := &pipeline{dispatcher: d, transform: t, renderer: renderer, locator: locate.New(cfg.Pipeline.MinContentLength)}
	if flagAll {
		return p.runAll(ctx, source, remote, writer)
	}
	return p.runOne(ctx, source, fetcher, writer)
}

// transformFromFlags starts from stored preferences and applies any flags
// that were set.
func transformFromFlags(ctx context.Context, store *prefs.Store) (core.Transform, error) {
	t, err := prefs.Transform(ctx, store)
	if err != nil {
		return t, err
	}
	if flagMode != "" {
		t.Mode = core.Mode(flagMode)
	}
	if flagLevel != 0 {
		t.Intensity = flagLevel
	}
	if flagLanguage != "" {
		t.TargetLanguage = flagLanguage
	}
	if flagInstructions != "" {
		t.CustomInstructions = flagInstructions
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

// remoteFetcher returns the HTTP fetcher, or headless Chrome with --render.
func remoteFetcher() (core.Fetcher, func()) {
	if !flagRender && !cfg.Fetch.Render {
		return fetch.New(), func() {}
	}
	b := fetch.NewBrowser(cfg.Fetch.RemoteURL)
	return b, func() { _ = b.Close() }
}

type pipeline struct {
	dispatcher *dispatch.Dispatcher
	transform  core.Transform
	renderer   core.Renderer
	locator    *locate.Locator
}

func (p *pipeline) runOne(ctx context.Context, source string, fetcher core.Fetcher, writer *output.Writer) error {
	res, err := fetcher.Fetch(ctx, source)
	if err != nil {
		return errors.Errorf("fetch: %w", err)
	}
	data, result, err := p.process(ctx, res)
	if err != nil {
		return err
	}

	path, err := writer.WriteOne(source, data, p.renderer.Extension())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "✓ Rewrote %d of %d text blocks", result.Count, result.Collected)
	if result.FailedBatches > 0 {
		fmt.Fprintf(os.Stdout, " (%d of %d batches failed)", result.FailedBatches, result.Batches)
	}
	fmt.Fprintf(os.Stdout, "\n✓ Written: %s\n", path)
	return nil
}

func (p *pipeline) runAll(ctx context.Context, source string, fetcher core.Fetcher, writer *output.Writer) error {
	fmt.Fprintf(os.Stdout, "Discovering pages from %s...\n", source)

	var pages, failed int
	err := crawl.New(fetcher, flagMaxPages).Walk(ctx, source, func(res *core.FetchResult) error {
		pages++
		fmt.Fprintf(os.Stdout, "[%d] Processing %s\n", pages, res.URL)

		data, result, err := p.process(ctx, res)
		if errors.Is(err, rewrite.ErrNoAPIKey) || errors.Is(err, context.Canceled) {
			return err
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "  ✗ Error: %v\n", err)
			failed++
			return nil
		}

		path, err := writer.WriteMirror(res.URL, data, p.renderer.Extension())
		if err != nil {
			fmt.Fprintf(os.Stderr, "  ✗ Write error: %v\n", err)
			failed++
			return nil
		}
		fmt.Fprintf(os.Stdout, "  ✓ %d/%d blocks, written: %s\n", result.Count, result.Collected, path)
		return nil
	})
	if err != nil {
		return err
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "\n%d/%d pages failed\n", failed, pages)
	}
	return nil
}

// process rewrites one fetched page and renders it.
func (p *pipeline) process(ctx context.Context, res *core.FetchResult) ([]byte, core.Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.HTML))
	if err != nil {
		return nil, core.Result{}, errors.Errorf("parse: %w", err)
	}

	session := patch.NewSession()
	result, err := p.dispatcher.Run(ctx, session, doc, p.transform)
	if errors.Is(err, rewrite.ErrNoAPIKey) {
		return nil, result, errors.Errorf("%s: %w", dispatch.MissingKeyMessage, err)
	}
	if err != nil {
		return nil, result, errors.Errorf("rewrite: %w", err)
	}

	page, err := p.page(doc, res, result, session)
	if err != nil {
		return nil, result, err
	}
	data, err := p.renderer.Render(page)
	if err != nil {
		return nil, result, errors.Errorf("render: %w", err)
	}
	return data, result, nil
}

func (p *pipeline) page(doc *goquery.Document, res *core.FetchResult, result core.Result, s *patch.Session) (*core.RewrittenPage, error) {
	meta := buildMetadata(doc, res.URL)

	full, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		return nil, errors.Errorf("serialize: %w", err)
	}

	content := result.Region
	if content == nil {
		region, _ := p.locator.Locate(doc)
		content = region.Nodes[0]
	}
	base := ""
	if meta.Domain != "" {
		base = strings.SplitN(meta.URL, "://", 2)[0] + "://" + meta.Domain
	}
	md, err := normalize.New(base).Normalize(content)
	if err != nil {
		return nil, errors.Errorf("normalize: %w", err)
	}

	return &core.RewrittenPage{
		Meta:      meta,
		Transform: p.transform,
		Result:    result,
		Document:  full,
		Content:   content,
		Markdown:  md,
		Changes:   s.Changes(),
	}, nil
}

// buildMetadata constructs PageMetadata from the source and parsed page.
func buildMetadata(doc *goquery.Document, source string) core.PageMetadata {
	meta := core.PageMetadata{
		URL:       source,
		Title:     strings.TrimSpace(doc.Find("title").First().Text()),
		FetchedAt: time.Now().UTC().Format(time.RFC3339),
	}
	meta.Language, _ = doc.Find("html").Attr("lang")
	if parsed, err := url.Parse(source); err == nil {
		meta.Domain = parsed.Host
		meta.Path = parsed.Path
	}
	return meta
}

// selectRenderer picks the renderer from the format flags.
func selectRenderer() (core.Renderer, error) {
	format := "html"
	count := 0
	for name, set := range map[string]bool{"markdown": flagMarkdown, "pdf": flagPDF, "json": flagJSON} {
		if set {
			format = name
			count++
		}
	}
	if count > 1 {
		return nil, errors.Errorf("only one output format allowed per run (got %d)", count)
	}
	r, _ := render.ForFormat(format)
	return r, nil
}
