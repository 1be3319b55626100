// Package locate finds the element most likely to hold a page's readable
// content:
//  1. The first well-known content container with enough text
//     (<article>, <main>, common class/id conventions, ARIA and schema.org hints)
//  2. Otherwise the largest block that is not navigation, sidebar or footer
//  3. Otherwise <body>, or the document root when there is no body
package locate

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// DefaultMinLength is the trimmed text length a candidate must exceed.
const DefaultMinLength = 200

// contentSelectors are tried in priority order.
var contentSelectors = []string{
	"article",
	"main",
	".article",
	".post",
	".content",
	".main-content",
	".article-content",
	".post-content",
	"#content",
	"#main-content",
	`[role="main"]`,
	`[itemprop="articleBody"]`,
}

var (
	compiledSelectors = compileAll(contentSelectors)
	blockCandidates   = cascadia.MustCompile("div, section, article")
)

// boilerplateHints mark ids and classes that never hold the main content.
var boilerplateHints = []string{"nav", "sidebar", "footer"}

func compileAll(sels []string) []goquery.Matcher {
	out := make([]goquery.Matcher, len(sels))
	for i, s := range sels {
		out[i] = cascadia.MustCompile(s)
	}
	return out
}

// Locator picks the content region of a document.
type Locator struct {
	MinLength int
}

// New creates a Locator. Defaults to DefaultMinLength if minLength <= 0.
func New(minLength int) *Locator {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &Locator{MinLength: minLength}
}

// Strategy names how the content region was chosen.
type Strategy string

const (
	StrategySelector Strategy = "selector"
	StrategyLargest  Strategy = "largest-block"
	StrategyBody     Strategy = "body"
	StrategyRoot     Strategy = "root"
)

// Locate returns a single-element selection. It never returns an empty
// selection: the worst case is the whole document.
func (l *Locator) Locate(doc *goquery.Document) (*goquery.Selection, Strategy) {
	for _, m := range compiledSelectors {
		sel := doc.FindMatcher(m).First()
		if sel.Length() > 0 && textLength(sel) > l.MinLength {
			return sel, StrategySelector
		}
	}

	var best *goquery.Selection
	bestLen := 0
	doc.FindMatcher(blockCandidates).Each(func(_ int, s *goquery.Selection) {
		if isBoilerplate(s) {
			return
		}
		n := textLength(s)
		if n > bestLen && n > l.MinLength {
			best, bestLen = s, n
		}
	})
	if best != nil {
		return best, StrategyLargest
	}

	if body := doc.Find("body").First(); body.Length() > 0 {
		return body, StrategyBody
	}
	return doc.Selection, StrategyRoot
}

func isBoilerplate(s *goquery.Selection) bool {
	switch goquery.NodeName(s) {
	case "nav", "footer":
		return true
	}
	id := strings.ToLower(s.AttrOr("id", ""))
	class := strings.ToLower(s.AttrOr("class", ""))
	for _, hint := range boilerplateHints {
		if strings.Contains(id, hint) || strings.Contains(class, hint) {
			return true
		}
	}
	return false
}

func textLength(s *goquery.Selection) int {
	return utf8.RuneCountInString(strings.TrimSpace(s.Text()))
}
