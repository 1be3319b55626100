// Package sanitize cleans model output before it reaches the document.
// Model responses are untrusted: markup is reduced to inline formatting and
// plain-text fallbacks lose every tag.
package sanitize

import (
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictOnce sync.Once
	strict     *bluemonday.Policy

	markupOnce sync.Once
	markup     *bluemonday.Policy
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func strictPolicy() *bluemonday.Policy {
	strictOnce.Do(func() {
		strict = bluemonday.StrictPolicy()
	})
	return strict
}

func markupPolicy() *bluemonday.Policy {
	markupOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowElements("span", "mark", "cite", "sub", "sup", "small", "abbr")
		// Page markup goes back in as written: no rel="nofollow" and the
		// styling hooks stay. visualClarity relies on <span class="highlighted">.
		p.RequireNoFollowOnLinks(false)
		p.AllowAttrs("class", "id", "title", "lang", "dir").Globally()
		markup = p
	})
	return markup
}

// StripTags removes all markup and returns the decoded text, suitable for
// assigning to a text node.
func StripTags(s string) string {
	return html.UnescapeString(strictPolicy().Sanitize(s))
}

// Flatten strips tags and collapses runs of whitespace to single spaces.
func Flatten(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(StripTags(s), " "))
}

// Markup keeps inline formatting and links, dropping scripts, handlers and
// anything else the model should never emit.
func Markup(s string) string {
	return markupPolicy().Sanitize(s)
}

// LooksLikeMarkup reports whether s carries angle-bracket markup.
func LooksLikeMarkup(s string) bool {
	return strings.Contains(s, "<") && strings.Contains(s, ">")
}
