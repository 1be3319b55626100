// Package collect walks a content region and gathers the text nodes worth
// rewriting, together with the element context needed to put the rewritten
// text back.
package collect

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/gaurav-prasanna/easyread/core"
)

// DefaultMinLength is the trimmed length text must exceed to be collected.
const DefaultMinLength = 30

// ProcessedAttr marks containers that have been rewritten.
const ProcessedAttr = "data-simplified"

// skipped elements never contribute text.
var skipped = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true,
	atom.Svg: true, atom.Img: true, atom.Video: true, atom.Audio: true,
	atom.Iframe: true, atom.Canvas: true,
	atom.Code: true, atom.Pre: true,
}

// inlineTags make a container markup-bearing.
var inlineTags = map[atom.Atom]bool{
	atom.A: true, atom.Strong: true, atom.Em: true, atom.B: true, atom.I: true,
	atom.Span: true, atom.Sup: true, atom.Sub: true, atom.Cite: true,
	atom.Code: true, atom.Mark: true,
}

// Collector gathers TextUnits from a subtree.
type Collector struct {
	MinLength int
	// DedupeNested drops text nodes already claimed by an enclosing
	// container. Off by default: a container and its descendant may both
	// yield a unit for the same text node.
	DedupeNested bool
	// SkipProcessed ignores containers that carry ProcessedAttr.
	SkipProcessed bool
}

// New creates a Collector. Defaults to DefaultMinLength if minLength <= 0.
func New(minLength int) *Collector {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &Collector{MinLength: minLength}
}

// Collect returns the units under root in document order.
func (c *Collector) Collect(root *html.Node) []core.TextUnit {
	var containers []*html.Node
	c.findContainers(root, &containers)

	var units []core.TextUnit
	claimed := make(map[*html.Node]bool)
	for _, el := range containers {
		if c.SkipProcessed && IsProcessed(el) {
			continue
		}

		hasMarkup := HasInlineMarkup(el)
		markup := ""
		if hasMarkup {
			markup = InnerHTML(el)
		}

		c.walkText(el, func(tn *html.Node) {
			if c.DedupeNested && claimed[tn] {
				return
			}
			claimed[tn] = true
			units = append(units, core.TextUnit{
				Node:      tn,
				Container: el,
				Text:      tn.Data,
				HasMarkup: hasMarkup,
				Markup:    markup,
			})
		})
	}
	return units
}

// findContainers records, depth-first, every element whose direct text is
// long enough. It keeps descending into qualifying elements.
func (c *Collector) findContainers(n *html.Node, out *[]*html.Node) {
	if n.Type == html.DocumentNode {
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			c.findContainers(ch, out)
		}
		return
	}
	if n.Type != html.ElementNode || skipped[n.DataAtom] {
		return
	}

	var direct []string
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type != html.TextNode {
			continue
		}
		if text := strings.TrimSpace(ch.Data); text != "" {
			direct = append(direct, text)
		}
	}
	if c.long(strings.Join(direct, " ")) {
		*out = append(*out, n)
	}

	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.findContainers(ch, out)
	}
}

// walkText visits the long text nodes below el, skipping non-content
// elements.
func (c *Collector) walkText(el *html.Node, visit func(*html.Node)) {
	for ch := el.FirstChild; ch != nil; ch = ch.NextSibling {
		switch ch.Type {
		case html.TextNode:
			if c.long(ch.Data) {
				visit(ch)
			}
		case html.ElementNode:
			if !skipped[ch.DataAtom] {
				c.walkText(ch, visit)
			}
		}
	}
}

func (c *Collector) long(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) > c.MinLength
}

// HasInlineMarkup reports whether el contains inline formatting elements
// or serializes to anything with a tag in it.
func HasInlineMarkup(el *html.Node) bool {
	if containsInline(el) {
		return true
	}
	return strings.Contains(InnerHTML(el), "<")
}

func containsInline(n *html.Node) bool {
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type != html.ElementNode {
			continue
		}
		if inlineTags[ch.DataAtom] || containsInline(ch) {
			return true
		}
	}
	return false
}

// InnerHTML serializes the children of n.
func InnerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if err := html.Render(&buf, ch); err != nil {
			return buf.String()
		}
	}
	return buf.String()
}

// IsProcessed reports whether el carries the processed marker.
func IsProcessed(el *html.Node) bool {
	for _, a := range el.Attr {
		if a.Namespace == "" && a.Key == ProcessedAttr {
			return true
		}
	}
	return false
}

// MarkProcessed sets the processed marker on el.
func MarkProcessed(el *html.Node) {
	if IsProcessed(el) {
		return
	}
	el.Attr = append(el.Attr, html.Attribute{Key: ProcessedAttr, Val: "true"})
}

// ClearProcessed removes the processed marker from el.
func ClearProcessed(el *html.Node) {
	attrs := el.Attr[:0]
	for _, a := range el.Attr {
		if a.Namespace == "" && a.Key == ProcessedAttr {
			continue
		}
		attrs = append(attrs, a)
	}
	el.Attr = attrs
}

// ClearAllProcessed removes markers from every element under root and
// returns how many were cleared.
func ClearAllProcessed(root *html.Node) int {
	cleared := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && IsProcessed(n) {
			ClearProcessed(n)
			cleared++
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(root)
	return cleared
}
