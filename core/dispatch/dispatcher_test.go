package dispatch_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/gaurav-prasanna/easyread/core"
	"github.com/gaurav-prasanna/easyread/core/collect"
	"github.com/gaurav-prasanna/easyread/core/dispatch"
	"github.com/gaurav-prasanna/easyread/core/locate"
	"github.com/gaurav-prasanna/easyread/core/patch"
	"github.com/gaurav-prasanna/easyread/core/rewrite"
)

// fakeRewriter answers every unit with "short <batch>.<i>" and fails the
// batches listed in fail.
type fakeRewriter struct {
	mu      sync.Mutex
	noKey   bool
	fail    map[int]bool
	batches []core.Batch
}

func (f *fakeRewriter) HasKey() bool { return !f.noKey }

func (f *fakeRewriter) Rewrite(_ context.Context, b core.Batch, _ core.Transform) (map[string]string, error) {
	f.mu.Lock()
	f.batches = append(f.batches, b)
	f.mu.Unlock()
	if f.fail[b.Index] {
		return nil, errors.New("upstream unavailable")
	}
	out := make(map[string]string, len(b.Units))
	for i, u := range b.Units {
		out[u.ID] = fmt.Sprintf("short %d.%d", b.Index, i)
	}
	return out, nil
}

func page(paragraphs int) string {
	var sb strings.Builder
	sb.WriteString(`<html><body><nav>Home About Contact</nav><article>`)
	for i := range paragraphs {
		fmt.Fprintf(&sb, `<p id="p%d">Paragraph number %d carries enough words to be rewritten by the model.</p>`, i, i)
	}
	sb.WriteString(`</article></body></html>`)
	return sb.String()
}

func newDoc(t *testing.T, src string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func TestRun(t *testing.T) {
	tests := []struct {
		name       string
		paragraphs int
		fail       map[int]bool
		want       core.Result
	}{
		{
			name:       "all_batches",
			paragraphs: 25,
			want:       core.Result{Success: true, Count: 25, Collected: 25, Batches: 3},
		},
		{
			name:       "failed_batch_is_skipped",
			paragraphs: 25,
			fail:       map[int]bool{1: true},
			want:       core.Result{Success: true, Count: 15, Collected: 25, Batches: 3, FailedBatches: 1},
		},
		{
			name:       "nothing_to_collect",
			paragraphs: 0,
			want:       core.Result{Success: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := &fakeRewriter{fail: tt.fail}
			doc := newDoc(t, page(tt.paragraphs))

			res, err := dispatch.New(fr).Run(context.Background(), patch.NewSession(), doc, core.DefaultTransform())
			require.NoError(t, err)
			require.NotNil(t, res.Region)
			res.Region = nil
			assert.Equal(t, tt.want, res)
		})
	}
}

func TestRunSequentialBatchIDs(t *testing.T) {
	fr := &fakeRewriter{}
	doc := newDoc(t, page(12))

	_, err := dispatch.New(fr, dispatch.WithBatchSize(5)).Run(context.Background(), patch.NewSession(), doc, core.DefaultTransform())
	require.NoError(t, err)

	require.Len(t, fr.batches, 3)
	var sizes []int
	for i, b := range fr.batches {
		assert.Equal(t, i, b.Index)
		assert.Equal(t, "text_0", b.Units[0].ID)
		sizes = append(sizes, len(b.Units))
	}
	if diff := cmp.Diff([]int{5, 5, 2}, sizes); diff != "" {
		t.Errorf("batch sizes mismatch (-want +got):\n%s", diff)
	}
	// Both batch 0 and batch 1 had a text_0; each went to its own paragraph.
	assert.Equal(t, "short 0.0", doc.Find("#p0").Text())
	assert.Equal(t, "short 1.0", doc.Find("#p5").Text())
	assert.Equal(t, "short 2.1", doc.Find("#p11").Text())
}

func TestRunTwiceReprocesses(t *testing.T) {
	fr := &fakeRewriter{}
	doc := newDoc(t, page(3))
	s := patch.NewSession()
	d := dispatch.New(fr,
		dispatch.WithLocator(locate.New(1)),
		dispatch.WithCollector(&collect.Collector{MinLength: 5}),
	)

	first, err := d.Run(context.Background(), s, doc, core.DefaultTransform())
	require.NoError(t, err)
	second, err := d.Run(context.Background(), s, doc, core.DefaultTransform())
	require.NoError(t, err)

	assert.Equal(t, 3, first.Count)
	assert.Equal(t, 3, second.Count)
	assert.Equal(t, 6, s.Len())

	_, err = s.RestoreAll()
	require.NoError(t, err)
	assert.Equal(t, "Paragraph number 0 carries enough words to be rewritten by the model.", doc.Find("#p0").Text())
}

func TestRunSkipProcessedKeepsMarkers(t *testing.T) {
	fr := &fakeRewriter{}
	doc := newDoc(t, page(3))
	s := patch.NewSession()
	d := dispatch.New(fr,
		dispatch.WithLocator(locate.New(1)),
		dispatch.WithCollector(&collect.Collector{MinLength: 5, SkipProcessed: true}),
	)

	first, err := d.Run(context.Background(), s, doc, core.DefaultTransform())
	require.NoError(t, err)
	second, err := d.Run(context.Background(), s, doc, core.DefaultTransform())
	require.NoError(t, err)

	assert.Equal(t, 3, first.Count)
	assert.Zero(t, second.Collected)
	assert.Zero(t, second.Count)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 3, doc.Find("["+collect.ProcessedAttr+"]").Length())
}

func TestRunReportsRegion(t *testing.T) {
	doc := newDoc(t, page(3))
	res, err := dispatch.New(&fakeRewriter{}, dispatch.WithLocator(locate.New(1))).
		Run(context.Background(), patch.NewSession(), doc, core.DefaultTransform())
	require.NoError(t, err)

	require.NotNil(t, res.Region)
	assert.Equal(t, "article", res.Region.Data)
}

// plainRewriter has no HasKey method.
type plainRewriter struct{}

func (plainRewriter) Rewrite(_ context.Context, b core.Batch, _ core.Transform) (map[string]string, error) {
	out := make(map[string]string, len(b.Units))
	for _, u := range b.Units {
		out[u.ID] = "plain"
	}
	return out, nil
}

func TestRunWithoutKeyChecker(t *testing.T) {
	res, err := dispatch.New(plainRewriter{}).Run(context.Background(), patch.NewSession(), newDoc(t, page(3)), core.DefaultTransform())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Count)
}

func TestRunConfigurationErrors(t *testing.T) {
	t.Run("missing_key", func(t *testing.T) {
		fr := &fakeRewriter{noKey: true}
		res, err := dispatch.New(fr).Run(context.Background(), patch.NewSession(), newDoc(t, page(3)), core.DefaultTransform())
		require.ErrorIs(t, err, rewrite.ErrNoAPIKey)
		assert.False(t, res.Success)
		assert.Equal(t, dispatch.MissingKeyMessage, res.Error)
		assert.Empty(t, fr.batches)
	})

	t.Run("invalid_transform", func(t *testing.T) {
		fr := &fakeRewriter{}
		bad := core.Transform{Mode: "poetic", Intensity: 3}
		res, err := dispatch.New(fr).Run(context.Background(), patch.NewSession(), newDoc(t, page(3)), bad)
		require.ErrorIs(t, err, core.ErrInvalidTransform)
		assert.False(t, res.Success)
		assert.Empty(t, fr.batches)
	})
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fr := &fakeRewriter{}
	res, err := dispatch.New(fr).Run(ctx, patch.NewSession(), newDoc(t, page(3)), core.DefaultTransform())
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Success)
	assert.Empty(t, fr.batches)
}
