// Package patch applies rewritten text to the document and keeps the log
// needed to undo it.
package patch

import (
	"github.com/google/uuid"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/net/html"

	"github.com/gaurav-prasanna/easyread/core"
	"github.com/gaurav-prasanna/easyread/core/collect"
)

// ErrNothingToRestore is returned by RestoreAll when no mutation was
// recorded. Callers report it differently from a failed restore.
var ErrNothingToRestore = errors.Base("nothing to restore")

// Kind says which part of the document a record changed.
type Kind int

const (
	// KindText replaced the data of a single text node.
	KindText Kind = iota
	// KindMarkup replaced every child of a container element.
	KindMarkup
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindMarkup:
		return "markup"
	default:
		return "unknown"
	}
}

// MutationRecord is one reversible change.
type MutationRecord struct {
	Target   *html.Node
	Kind     Kind
	Original string
	Current  string

	// displaced holds the children a markup swap removed, in order.
	displaced []*html.Node
}

// Session is the mutation log for one document. It lives from the first
// run until the document is restored or discarded. A Session is not safe
// for concurrent use; callers serialize runs and restores.
type Session struct {
	ID uuid.UUID

	records   []MutationRecord
	snapshots map[*html.Node]string
	marked    []*html.Node
	markedSet map[*html.Node]bool
	// detached are the subtree roots removed by markup swaps.
	detached map[*html.Node]bool
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{
		ID:        uuid.New(),
		snapshots: make(map[*html.Node]string),
		markedSet: make(map[*html.Node]bool),
		detached:  make(map[*html.Node]bool),
	}
}

// Len returns the number of recorded mutations.
func (s *Session) Len() int {
	return len(s.records)
}

// Records returns a copy of the log in insertion order.
func (s *Session) Records() []MutationRecord {
	out := make([]MutationRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Original returns the value n had before this session first changed it.
func (s *Session) Original(n *html.Node) (string, bool) {
	v, ok := s.snapshots[n]
	return v, ok
}

// Changes renders the log for reports.
func (s *Session) Changes() []core.Change {
	out := make([]core.Change, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, core.Change{Kind: r.Kind.String(), Original: r.Original, Current: r.Current})
	}
	return out
}

// RestoreAll undoes every recorded mutation, newest first, clears the
// processed markers this session set and empties the log. It returns the
// number of records undone.
func (s *Session) RestoreAll() (int, error) {
	if len(s.records) == 0 {
		return 0, errors.WithStack(ErrNothingToRestore)
	}

	n := len(s.records)
	for i := n - 1; i >= 0; i-- {
		r := s.records[i]
		switch r.Kind {
		case KindText:
			r.Target.Data = r.Original
		case KindMarkup:
			removeChildren(r.Target)
			for _, ch := range r.displaced {
				r.Target.AppendChild(ch)
			}
		}
	}
	for _, el := range s.marked {
		collect.ClearProcessed(el)
	}

	s.records = nil
	s.marked = nil
	clear(s.snapshots)
	clear(s.markedSet)
	clear(s.detached)
	return n, nil
}

func (s *Session) snapshot(n *html.Node, value string) {
	if _, ok := s.snapshots[n]; !ok {
		s.snapshots[n] = value
	}
}

func (s *Session) mark(el *html.Node) {
	collect.MarkProcessed(el)
	if !s.markedSet[el] {
		s.markedSet[el] = true
		s.marked = append(s.marked, el)
	}
}

// orphaned reports whether n sits in a subtree a markup swap removed.
func (s *Session) orphaned(n *html.Node) bool {
	top := n
	for top.Parent != nil {
		top = top.Parent
	}
	return s.detached[top]
}

func removeChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for ch := n.FirstChild; ch != nil; {
		next := ch.NextSibling
		n.RemoveChild(ch)
		out = append(out, ch)
		ch = next
	}
	return out
}
