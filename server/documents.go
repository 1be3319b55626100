package server

import (
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/gaurav-prasanna/easyread/core"
	"github.com/gaurav-prasanna/easyread/core/patch"
)

// document is one loaded page and the session that can undo its rewrites.
// mu is held for writing by runs and restores, for reading by exports.
type document struct {
	id      string
	meta    core.PageMetadata
	doc     *goquery.Document
	session *patch.Session
	// region is the content region of the last completed run.
	region *html.Node
	mu     sync.RWMutex
}

func newDocument(doc *goquery.Document, meta core.PageMetadata) *document {
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if meta.Language == "" {
		meta.Language, _ = doc.Find("html").Attr("lang")
	}
	if meta.FetchedAt == "" {
		meta.FetchedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return &document{
		id:      uuid.NewString(),
		meta:    meta,
		doc:     doc,
		session: patch.NewSession(),
	}
}

// registry holds loaded documents by id.
type registry struct {
	mu   sync.RWMutex
	docs map[string]*document
}

func newRegistry() *registry {
	return &registry{docs: make(map[string]*document)}
}

func (r *registry) add(d *document) {
	r.mu.Lock()
	r.docs[d.id] = d
	r.mu.Unlock()
}

func (r *registry) get(id string) (*document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[id]
	return d, ok
}

func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return false
	}
	delete(r.docs, id)
	return true
}
