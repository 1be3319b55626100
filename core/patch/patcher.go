package patch

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/net/html"

	"github.com/gaurav-prasanna/easyread/core"
	"github.com/gaurav-prasanna/easyread/core/collect"
	"github.com/gaurav-prasanna/easyread/core/sanitize"
)

var errEmptied = errors.Base("sanitizing removed all content")

// Patcher writes one batch of results into the document.
type Patcher struct{}

// New creates a Patcher.
func New() *Patcher {
	return &Patcher{}
}

// Apply patches every unit of batch that has a result and returns how many
// units were changed. Results are matched to units by position: Units[i]
// takes results["text_i"]. Malformed markup falls back to plain text and
// never fails the batch.
func (p *Patcher) Apply(ctx context.Context, s *Session, batch core.Batch, results map[string]string) int {
	logger := zerolog.Ctx(ctx)
	applied := 0

	for i, u := range batch.Units {
		replacement, ok := results[core.UnitID(i)]
		// An empty reply never erases page text.
		if !ok || strings.TrimSpace(replacement) == "" {
			continue
		}
		if u.Node == nil || u.Container == nil {
			continue
		}
		// An earlier swap in this session replaced the subtree holding
		// this unit; its text is no longer on the page.
		if s.orphaned(u.Container) || !within(u.Node, u.Container) {
			logger.Debug().Int("batch", batch.Index).Str("id", core.UnitID(i)).Msg("unit displaced, skipping")
			continue
		}

		if u.HasMarkup || sanitize.LooksLikeMarkup(replacement) {
			err := p.swapMarkup(s, u.Container, replacement)
			if err == nil {
				s.mark(u.Container)
				applied++
				continue
			}
			logger.Debug().Err(err).Int("batch", batch.Index).Str("id", core.UnitID(i)).Msg("markup rejected, writing plain text")
			replacement = sanitize.StripTags(replacement)
			if strings.TrimSpace(replacement) == "" {
				continue
			}
		}

		p.setText(s, u.Node, replacement)
		s.mark(u.Container)
		applied++
	}
	return applied
}

func (p *Patcher) swapMarkup(s *Session, container *html.Node, replacement string) error {
	clean := sanitize.Markup(replacement)
	if strings.TrimSpace(clean) == "" && strings.TrimSpace(replacement) != "" {
		return errors.WithStack(errEmptied)
	}
	nodes, err := html.ParseFragment(strings.NewReader(clean), container)
	if err != nil {
		return errors.Errorf("parsing replacement markup: %w", err)
	}

	before := collect.InnerHTML(container)
	s.snapshot(container, before)

	displaced := removeChildren(container)
	for _, d := range displaced {
		s.detached[d] = true
	}
	for _, n := range nodes {
		container.AppendChild(n)
	}

	s.records = append(s.records, MutationRecord{
		Target:    container,
		Kind:      KindMarkup,
		Original:  before,
		Current:   collect.InnerHTML(container),
		displaced: displaced,
	})
	return nil
}

// setText replaces the node's text, keeping the whitespace that surrounded
// the original so inline neighbours stay separated.
func (p *Patcher) setText(s *Session, n *html.Node, replacement string) {
	before := n.Data
	s.snapshot(n, before)

	trimmed := strings.TrimSpace(before)
	start := strings.Index(before, trimmed)
	lead, trail := before[:start], before[start+len(trimmed):]
	n.Data = lead + strings.TrimSpace(replacement) + trail

	s.records = append(s.records, MutationRecord{
		Target:   n,
		Kind:     KindText,
		Original: before,
		Current:  n.Data,
	})
}

func within(n, ancestor *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}
