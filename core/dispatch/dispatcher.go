// Package dispatch runs the rewriting pipeline over one document: locate the
// content, collect text units, send them batch by batch and patch the
// results back in.
package dispatch

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/gaurav-prasanna/easyread/core"
	"github.com/gaurav-prasanna/easyread/core/chunk"
	"github.com/gaurav-prasanna/easyread/core/collect"
	"github.com/gaurav-prasanna/easyread/core/locate"
	"github.com/gaurav-prasanna/easyread/core/patch"
	"github.com/gaurav-prasanna/easyread/core/rewrite"
)

// MissingKeyMessage is shown when a run is attempted without credentials.
const MissingKeyMessage = "API key not set. Configure one with `easyread prefs set apiKey …` or EASYREAD_API_KEY and retry."

// KeyChecker is implemented by rewriters that need credentials. Run checks
// it before anything else; a rewriter without HasKey is assumed to need no
// key and goes straight to validation.
type KeyChecker interface {
	HasKey() bool
}

// Dispatcher owns the pipeline stages. The zero value is not usable; use New.
type Dispatcher struct {
	rewriter  core.Rewriter
	locator   *locate.Locator
	collector *collect.Collector
	chunker   *chunk.Chunker
	patcher   *patch.Patcher
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLocator replaces the default content locator.
func WithLocator(l *locate.Locator) Option {
	return func(d *Dispatcher) { d.locator = l }
}

// WithCollector replaces the default text collector.
func WithCollector(c *collect.Collector) Option {
	return func(d *Dispatcher) { d.collector = c }
}

// WithBatchSize sets the maximum units per request.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) { d.chunker = chunk.New(n) }
}

// New creates a Dispatcher around r.
func New(r core.Rewriter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		rewriter:  r,
		locator:   locate.New(0),
		collector: collect.New(0),
		chunker:   chunk.New(0),
		patcher:   patch.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run rewrites the content region of doc with t, recording every change in
// s. Batches run one after another; a failed batch is logged and skipped.
// The returned error is non-nil only when the run could not start or was
// cancelled, and Result mirrors it.
func (d *Dispatcher) Run(ctx context.Context, s *patch.Session, doc *goquery.Document, t core.Transform) (core.Result, error) {
	logger := zerolog.Ctx(ctx).With().Str("session", s.ID.String()).Logger()
	ctx = logger.WithContext(ctx)

	if k, ok := d.rewriter.(KeyChecker); ok && !k.HasKey() {
		return core.Result{Error: MissingKeyMessage}, errors.WithStack(rewrite.ErrNoAPIKey)
	}
	if err := t.Validate(); err != nil {
		return core.Result{Error: err.Error()}, err
	}

	start := time.Now()
	root := doc.Selection
	// With SkipProcessed the markers of earlier runs are what the collector
	// skips on, so they stay.
	if !d.collector.SkipProcessed {
		if cleared := collect.ClearAllProcessed(root.Nodes[0]); cleared > 0 {
			logger.Debug().Int("cleared", cleared).Msg("cleared markers from previous run")
		}
	}

	region, strategy := d.locator.Locate(doc)
	units := d.collector.Collect(region.Nodes[0])
	groups := chunk.Split(d.chunker, units)
	logger.Debug().
		Str("strategy", string(strategy)).
		Int("units", len(units)).
		Int("batches", len(groups)).
		Msg("content collected")

	res := core.Result{Success: true, Collected: len(units), Batches: len(groups), Region: region.Nodes[0]}
	for i, group := range groups {
		if err := ctx.Err(); err != nil {
			res.Success = false
			res.Error = err.Error()
			return res, errors.Errorf("run stopped before batch %d: %w", i, err)
		}

		batch := core.NewBatch(i, group)
		texts, err := d.rewriter.Rewrite(ctx, batch, t)
		if err != nil {
			res.FailedBatches++
			logger.Warn().Err(err).Int("batch", i).Int("units", len(group)).Msg("batch failed")
			continue
		}
		applied := d.patcher.Apply(ctx, s, batch, texts)
		res.Count += applied
		logger.Debug().Int("batch", i).Int("applied", applied).Msg("batch applied")
	}

	logger.Info().
		Int("count", res.Count).
		Int("collected", res.Collected).
		Int("failed_batches", res.FailedBatches).
		Dur("took", time.Since(start)).
		Msg("rewrite finished")
	return res, nil
}
