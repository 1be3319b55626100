package render

import (
	"encoding/json"
	"regexp"
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/gaurav-prasanna/easyread/core"
)

// Report is the JSON run report.
type Report struct {
	Metadata  core.PageMetadata `json:"metadata"`
	Transform core.Transform    `json:"transform"`
	Result    core.Result       `json:"result"`
	Structure Structure         `json:"structure"`
	Markdown  string            `json:"markdown"`
	Changes   []core.Change     `json:"changes"`
}

// Structure summarizes the rewritten content.
type Structure struct {
	Headings []Heading `json:"headings"`
	Links    []Link    `json:"links"`
	Words    int       `json:"words"`
}

// Heading is a Markdown heading.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Link is a Markdown link.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// JSONRenderer produces the run report: what was rewritten, how, and the
// before/after of every change.
type JSONRenderer struct{}

// NewJSONRenderer creates a JSONRenderer.
func NewJSONRenderer() *JSONRenderer {
	return &JSONRenderer{}
}

// Render marshals the report for page.
func (r *JSONRenderer) Render(page *core.RewrittenPage) ([]byte, error) {
	changes := page.Changes
	if changes == nil {
		changes = []core.Change{}
	}
	rep := Report{
		Metadata:  page.Meta,
		Transform: page.Transform,
		Result:    page.Result,
		Structure: Structure{
			Headings: extractHeadings(page.Markdown),
			Links:    extractLinks(page.Markdown),
			Words:    len(strings.Fields(stripMarkdown(page.Markdown))),
		},
		Markdown: page.Markdown,
		Changes:  changes,
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, errors.Errorf("marshaling JSON: %w", err)
	}
	return data, nil
}

// Extension returns the file extension for JSON output.
func (r *JSONRenderer) Extension() string {
	return ".json"
}

var (
	headingRegex = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	// linkRegex matches Markdown links [text](url).
	linkRegex     = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)
	emphasisRegex = regexp.MustCompile(`\*{1,3}([^*]+)\*{1,3}`)
	codeRegex     = regexp.MustCompile("`([^`]+)`")
)

func extractHeadings(md string) []Heading {
	matches := headingRegex.FindAllStringSubmatch(md, -1)
	headings := make([]Heading, 0, len(matches))
	for _, m := range matches {
		headings = append(headings, Heading{Level: len(m[1]), Text: strings.TrimSpace(m[2])})
	}
	return headings
}

func extractLinks(md string) []Link {
	matches := linkRegex.FindAllStringSubmatch(md, -1)
	links := make([]Link, 0, len(matches))
	for _, m := range matches {
		links = append(links, Link{Text: m[1], Href: m[2]})
	}
	return links
}

// stripMarkdown removes common Markdown formatting to produce plain text.
func stripMarkdown(md string) string {
	text := headingRegex.ReplaceAllString(md, "$2")
	text = emphasisRegex.ReplaceAllString(text, "$1")
	text = linkRegex.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, "```", "")
	text = codeRegex.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}
