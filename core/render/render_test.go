package render_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/easyread/core"
	"github.com/gaurav-prasanna/easyread/core/render"
)

func samplePage() *core.RewrittenPage {
	return &core.RewrittenPage{
		Meta:      core.PageMetadata{URL: "https://example.com/a", Title: "A Page"},
		Transform: core.DefaultTransform(),
		Result:    core.Result{Success: true, Count: 2, Collected: 2, Batches: 1},
		Document:  "<html><body><p>Short.</p></body></html>",
		Markdown:  "## Part one\n\nShort **words** here. See [docs](https://example.com/docs).\n\n- one\n- two",
		Changes: []core.Change{
			{Kind: "text", Original: "A very long sentence.", Current: "Short words here."},
		},
	}
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format string
		ext    string
		ok     bool
	}{
		{"html", ".html", true},
		{"markdown", ".md", true},
		{"MD", ".md", true},
		{"pdf", ".pdf", true},
		{"json", ".json", true},
		{"embeddings", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			r, ok := render.ForFormat(tt.format)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.ext, r.Extension())
			}
		})
	}
}

func TestMarkdownRenderer(t *testing.T) {
	out, err := render.NewMarkdownRenderer().Render(samplePage())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("# A Page\n\n## Part one")))
}

func TestHTMLRenderer(t *testing.T) {
	out, err := render.NewHTMLRenderer().Render(samplePage())
	require.NoError(t, err)
	assert.Equal(t, "<html><body><p>Short.</p></body></html>", string(out))
}

func TestJSONRenderer(t *testing.T) {
	out, err := render.NewJSONRenderer().Render(samplePage())
	require.NoError(t, err)

	var rep render.Report
	require.NoError(t, json.Unmarshal(out, &rep))
	assert.Equal(t, 2, rep.Result.Count)
	assert.Equal(t, core.ModeELI5, rep.Transform.Mode)
	assert.Equal(t, []render.Heading{{Level: 2, Text: "Part one"}}, rep.Structure.Headings)
	assert.Equal(t, []render.Link{{Text: "docs", Href: "https://example.com/docs"}}, rep.Structure.Links)
	require.Len(t, rep.Changes, 1)
	assert.Equal(t, "text", rep.Changes[0].Kind)
}

func TestPDFRenderer(t *testing.T) {
	out, err := render.NewPDFRenderer().Render(samplePage())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}
