package patch_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/net/html"

	"github.com/gaurav-prasanna/easyread/core"
	"github.com/gaurav-prasanna/easyread/core/collect"
	"github.com/gaurav-prasanna/easyread/core/patch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func render(t *testing.T, n *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, html.Render(&buf, n))
	return buf.String()
}

func replies(units []core.TextUnit, format string) map[string]string {
	out := make(map[string]string, len(units))
	for i := range units {
		out[core.UnitID(i)] = fmt.Sprintf(format, i)
	}
	return out
}

const nestedPage = `<html><head></head><body><article>` +
	`<div class="intro">The first paragraph has enough plain words to qualify here. ` +
	`<p>A nested paragraph with a <a href="/x">link</a> inside and more than enough text around it.</p></div>` +
	`<p>Another top level paragraph that is clearly long enough to be collected.</p>` +
	`<section><p>Deep <em>inside</em> a section there is one more sentence worth rewriting.</p></section>` +
	`</article></body></html>`

func TestRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	doc := parse(t, nestedPage)
	pristine := render(t, doc)

	s := patch.NewSession()
	p := patch.New()

	// Two runs over the same document, each re-collecting what is now on
	// the page, with the second run replacing markup the first produced.
	for run := range 2 {
		units := collect.New(0).Collect(doc)
		require.NotEmpty(t, units)
		batch := core.NewBatch(0, units)
		applied := p.Apply(ctx, s, batch, replies(units, fmt.Sprintf("Run %d rewrote item %%d into a much longer sentence with a <strong>bold</strong> word.", run)))
		assert.Positive(t, applied)
	}
	require.NotEqual(t, pristine, render(t, doc))
	recorded := len(s.Changes())

	n, err := s.RestoreAll()
	require.NoError(t, err)
	assert.Equal(t, recorded, n)
	assert.Equal(t, pristine, render(t, doc))
	assert.Zero(t, s.Len())
}

func TestBatchLocalIDs(t *testing.T) {
	doc := parse(t, `<body>`+
		`<p id="a">First paragraph with more than thirty characters of text.</p>`+
		`<p id="b">Second paragraph with more than thirty characters of text.</p>`+
		`<p id="c">Third paragraph with more than thirty characters of text.</p>`+
		`<p id="d">Fourth paragraph with more than thirty characters of text.</p>`+
		`</body>`)
	units := collect.New(0).Collect(doc)
	require.Len(t, units, 4)

	s := patch.NewSession()
	p := patch.New()
	first := core.NewBatch(0, units[:2])
	second := core.NewBatch(1, units[2:])

	assert.Equal(t, 2, p.Apply(context.Background(), s, first, map[string]string{"text_0": "A0", "text_1": "A1"}))
	assert.Equal(t, 2, p.Apply(context.Background(), s, second, map[string]string{"text_0": "B0", "text_1": "B1"}))

	gq := goquery.NewDocumentFromNode(doc)
	for id, want := range map[string]string{"a": "A0", "b": "A1", "c": "B0", "d": "B1"} {
		assert.Equal(t, want, gq.Find("#"+id).Text(), id)
	}
}

func TestMarkupSwapKeepsSiblings(t *testing.T) {
	doc := parse(t, `<body><div id="c"><img src="a.png">`+
		`<p id="t">This sentence has a <em>styled</em> word and enough length to count.</p>`+
		`<ul><li>item</li></ul></div></body>`)
	units := collect.New(0).Collect(doc)
	require.Len(t, units, 1)
	require.True(t, units[0].HasMarkup)

	s := patch.NewSession()
	applied := patch.New().Apply(context.Background(), s, core.NewBatch(0, units),
		map[string]string{"text_0": `This has a <strong>kept</strong> word.`})
	require.Equal(t, 1, applied)

	gq := goquery.NewDocumentFromNode(doc)
	inner, err := gq.Find("#t").Html()
	require.NoError(t, err)
	assert.Equal(t, `This has a <strong>kept</strong> word.`, inner)
	assert.Equal(t, []string{"img", "p", "ul"}, gq.Find("#c").Children().Map(func(_ int, sel *goquery.Selection) string {
		return goquery.NodeName(sel)
	}))
	marker, _ := gq.Find("#t").Attr(collect.ProcessedAttr)
	assert.Equal(t, "true", marker)

	records := s.Records()
	require.Len(t, records, 1)
	assert.Equal(t, patch.KindMarkup, records[0].Kind)
	assert.Equal(t, `This sentence has a <em>styled</em> word and enough length to count.`, records[0].Original)
}

func TestPlainTextKeepsSurroundingWhitespace(t *testing.T) {
	doc := parse(t, `<body><p id="t">  A plain sentence that is long enough to be collected.  </p></body>`)
	units := collect.New(0).Collect(doc)
	require.Len(t, units, 1)

	s := patch.NewSession()
	patch.New().Apply(context.Background(), s, core.NewBatch(0, units), map[string]string{"text_0": " Short now. "})
	assert.Equal(t, "  Short now.  ", units[0].Node.Data)
}

func TestSnapshotTakenOnce(t *testing.T) {
	doc := parse(t, `<body><p>The only sentence here, long enough to become a unit.</p></body>`)
	units := collect.New(0).Collect(doc)
	require.Len(t, units, 1)
	original := units[0].Node.Data

	s := patch.NewSession()
	p := patch.New()
	p.Apply(context.Background(), s, core.NewBatch(0, units), map[string]string{"text_0": "Once."})
	p.Apply(context.Background(), s, core.NewBatch(1, units), map[string]string{"text_0": "Twice."})

	got, ok := s.Original(units[0].Node)
	require.True(t, ok)
	assert.Equal(t, original, got)
	assert.Equal(t, "Twice.", units[0].Node.Data)

	n, err := s.RestoreAll()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, original, units[0].Node.Data)
}

func TestApplyEdgeCases(t *testing.T) {
	tests := []struct {
		name        string
		replacement map[string]string
		wantApplied int
		wantText    string
	}{
		{
			name:        "missing_result_keeps_text",
			replacement: map[string]string{"text_9": "ignored"},
			wantApplied: 0,
			wantText:    "Nothing in this sentence gets a reply from the model.",
		},
		{
			name:        "markup_that_sanitizes_to_nothing_is_skipped",
			replacement: map[string]string{"text_0": `<script>steal()</script>`},
			wantApplied: 0,
			wantText:    "Nothing in this sentence gets a reply from the model.",
		},
		{
			name:        "markup_on_plain_container_swaps",
			replacement: map[string]string{"text_0": `Now <em>shorter</em>.`},
			wantApplied: 1,
			wantText:    "Now shorter.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parse(t, `<body><p id="t">Nothing in this sentence gets a reply from the model.</p></body>`)
			units := collect.New(0).Collect(doc)
			require.Len(t, units, 1)

			s := patch.NewSession()
			applied := patch.New().Apply(context.Background(), s, core.NewBatch(0, units), tt.replacement)
			assert.Equal(t, tt.wantApplied, applied)
			assert.Equal(t, tt.wantText, goquery.NewDocumentFromNode(doc).Find("#t").Text())
			assert.Equal(t, tt.wantApplied, s.Len())
		})
	}
}

func TestApplySkipsEmptyReplies(t *testing.T) {
	const src = `<body><p id="t">Read the guide before you start, then follow <a href="/steps">the steps</a> in order.</p></body>`
	for _, reply := range []string{"", "   ", "\n\t"} {
		t.Run(fmt.Sprintf("%q", reply), func(t *testing.T) {
			doc := parse(t, src)
			units := collect.New(0).Collect(doc)
			require.NotEmpty(t, units)
			require.True(t, units[0].HasMarkup)
			gq := goquery.NewDocumentFromNode(doc)
			before, err := gq.Find("#t").Html()
			require.NoError(t, err)

			s := patch.NewSession()
			applied := patch.New().Apply(context.Background(), s, core.NewBatch(0, units), map[string]string{"text_0": reply})

			assert.Zero(t, applied)
			assert.Zero(t, s.Len())
			after, err := gq.Find("#t").Html()
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Zero(t, gq.Find("["+collect.ProcessedAttr+"]").Length())
		})
	}
}

func TestRestoreEmpty(t *testing.T) {
	s := patch.NewSession()
	n, err := s.RestoreAll()
	require.ErrorIs(t, err, patch.ErrNothingToRestore)
	assert.Zero(t, n)
}

func TestRestoreClearsMarkers(t *testing.T) {
	doc := parse(t, `<body><p id="t">A sentence that will be rewritten and then restored.</p></body>`)
	units := collect.New(0).Collect(doc)
	s := patch.NewSession()
	patch.New().Apply(context.Background(), s, core.NewBatch(0, units), map[string]string{"text_0": "Rewritten."})

	gq := goquery.NewDocumentFromNode(doc)
	assert.Equal(t, 1, gq.Find("["+collect.ProcessedAttr+"]").Length())

	_, err := s.RestoreAll()
	require.NoError(t, err)
	assert.Zero(t, gq.Find("["+collect.ProcessedAttr+"]").Length())

	_, err = s.RestoreAll()
	require.ErrorIs(t, err, patch.ErrNothingToRestore)
}
