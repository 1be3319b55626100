// Package server exposes the rewriting pipeline over HTTP. Documents are
// loaded once, rewritten and restored any number of times, and exported as
// HTML or Markdown. Each document serializes its own runs.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/gaurav-prasanna/easyread/core"
	"github.com/gaurav-prasanna/easyread/core/dispatch"
	"github.com/gaurav-prasanna/easyread/core/locate"
	"github.com/gaurav-prasanna/easyread/core/normalize"
	"github.com/gaurav-prasanna/easyread/core/patch"
	"github.com/gaurav-prasanna/easyread/core/rewrite"
	"github.com/gaurav-prasanna/easyread/prefs"
)

const maxBody = 10 << 20

// Runner runs the pipeline over one document.
type Runner interface {
	Run(ctx context.Context, s *patch.Session, doc *goquery.Document, t core.Transform) (core.Result, error)
}

var _ Runner = (*dispatch.Dispatcher)(nil)

// Options wires the server to the rest of the application.
type Options struct {
	// Fetcher loads documents posted by URL.
	Fetcher core.Fetcher
	// Renderer loads documents posted with render=true. Optional.
	Renderer core.Fetcher
	// Prefs supplies transform defaults. Optional.
	Prefs core.Preferences
	// NewRunner returns the runner for one request, so credential changes
	// apply without a restart.
	NewRunner func(ctx context.Context) (Runner, error)
	// Locator picks the region exported as Markdown. Optional.
	Locator *locate.Locator
}

// Server is the HTTP API.
type Server struct {
	opts Options
	docs *registry
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Locator == nil {
		opts.Locator = locate.New(0)
	}
	return &Server{opts: opts, docs: newRegistry()}
}

// Handler builds the router. logger is attached to every request context.
func (s *Server) Handler(logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1/documents", func(r chi.Router) {
		r.Post("/", s.createDocument)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getDocument)
			r.Delete("/", s.deleteDocument)
			r.Get("/markdown", s.getMarkdown)
			r.Post("/rewrite", s.rewriteDocument)
			r.Post("/restore", s.restoreDocument)
		})
	})
	return r
}

// requestLogger puts a request-scoped zerolog logger in the context and
// logs one line per request.
func requestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := base.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Msg("request")
		})
	}
}

type createRequest struct {
	URL    string `json:"url"`
	HTML   string `json:"html"`
	Render bool   `json:"render"`
}

type createResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Errorf("decoding request: %w", err))
		return
	}

	src := req.HTML
	meta := core.PageMetadata{URL: req.URL}
	if src == "" {
		if req.URL == "" {
			writeError(w, http.StatusBadRequest, errors.New("url or html is required"))
			return
		}
		fetcher := s.opts.Fetcher
		if req.Render && s.opts.Renderer != nil {
			fetcher = s.opts.Renderer
		}
		if fetcher == nil {
			writeError(w, http.StatusBadRequest, errors.New("loading by url is disabled"))
			return
		}
		res, err := fetcher.Fetch(r.Context(), req.URL)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		src = res.HTML
		meta.URL = res.URL
	}
	if u, err := url.Parse(meta.URL); err == nil {
		meta.Domain = u.Host
		meta.Path = u.Path
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.Errorf("parsing document: %w", err))
		return
	}
	d := newDocument(doc, meta)
	s.docs.add(d)

	zerolog.Ctx(r.Context()).Debug().Str("document", d.id).Str("url", meta.URL).Msg("document loaded")
	writeJSON(w, http.StatusCreated, createResponse{ID: d.id, Title: d.meta.Title, URL: d.meta.URL})
}

func (s *Server) document(w http.ResponseWriter, r *http.Request) (*document, bool) {
	d, ok := s.docs.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("document not found"))
	}
	return d, ok
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	d, ok := s.document(w, r)
	if !ok {
		return
	}
	if !d.mu.TryRLock() {
		writeBusy(w)
		return
	}
	out, err := goquery.OuterHtml(d.doc.Selection)
	d.mu.RUnlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, errors.WithStack(err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, out)
}

func (s *Server) getMarkdown(w http.ResponseWriter, r *http.Request) {
	d, ok := s.document(w, r)
	if !ok {
		return
	}
	if !d.mu.TryRLock() {
		writeBusy(w)
		return
	}
	content := d.region
	if content == nil {
		region, _ := s.opts.Locator.Locate(d.doc)
		content = region.Nodes[0]
	}
	base := ""
	if u, err := url.Parse(d.meta.URL); err == nil && u.Host != "" {
		base = u.Scheme + "://" + u.Host
	}
	md, err := normalize.New(base).Normalize(content)
	d.mu.RUnlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = io.WriteString(w, md)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if !s.docs.remove(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, errors.New("document not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) rewriteDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, ok := s.document(w, r)
	if !ok {
		return
	}

	t := core.DefaultTransform()
	if s.opts.Prefs != nil {
		var err error
		if t, err = prefs.Transform(ctx, s.opts.Prefs); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	// Fields present in the body override the stored preferences.
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, errors.Errorf("decoding transform: %w", err))
		return
	}

	runner, err := s.opts.NewRunner(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if !d.mu.TryLock() {
		writeBusy(w)
		return
	}
	defer d.mu.Unlock()

	res, err := runner.Run(ctx, d.session, d.doc, t)
	if res.Region != nil {
		d.region = res.Region
	}
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, rewrite.ErrNoAPIKey):
		writeJSON(w, http.StatusPreconditionFailed, res)
	case errors.Is(err, core.ErrInvalidTransform):
		writeJSON(w, http.StatusUnprocessableEntity, res)
	default:
		zerolog.Ctx(ctx).Warn().Err(err).Str("document", d.id).Msg("run stopped")
		writeJSON(w, http.StatusServiceUnavailable, res)
	}
}

type restoreResponse struct {
	Success  bool   `json:"success"`
	Restored int    `json:"restored"`
	Message  string `json:"message,omitempty"`
}

func (s *Server) restoreDocument(w http.ResponseWriter, r *http.Request) {
	d, ok := s.document(w, r)
	if !ok {
		return
	}
	if !d.mu.TryLock() {
		writeBusy(w)
		return
	}
	defer d.mu.Unlock()

	n, err := d.session.RestoreAll()
	if errors.Is(err, patch.ErrNothingToRestore) {
		writeJSON(w, http.StatusOK, restoreResponse{Message: "nothing to restore"})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, restoreResponse{Success: true, Restored: n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, core.Result{Error: err.Error()})
}

func writeBusy(w http.ResponseWriter) {
	writeError(w, http.StatusConflict, errors.New("a rewrite or restore is already running for this document"))
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, s *patch.Session, doc *goquery.Document, t core.Transform) (core.Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, s *patch.Session, doc *goquery.Document, t core.Transform) (core.Result, error) {
	return f(ctx, s, doc, t)
}
