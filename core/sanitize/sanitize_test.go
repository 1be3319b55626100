package sanitize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gaurav-prasanna/easyread/core/sanitize"
)

func TestStripTags(t *testing.T) {
	assert.Equal(t, "Cats & dogs are friends.", sanitize.StripTags("<p>Cats &amp; <strong>dogs</strong> are friends.</p>"))
	assert.Equal(t, "plain", sanitize.StripTags("plain"))
}

func TestFlatten(t *testing.T) {
	assert.Equal(t, "one two three", sanitize.Flatten("  <p>one\n\n two</p>\t<em>three</em> "))
}

func TestMarkup(t *testing.T) {
	t.Run("keeps_inline_formatting", func(t *testing.T) {
		out := sanitize.Markup(`Read <strong>this</strong> and <span class="highlighted">that</span>.`)
		assert.Contains(t, out, "<strong>this</strong>")
		assert.Contains(t, out, `<span class="highlighted">that</span>`)
	})

	t.Run("keeps_page_attributes_verbatim", func(t *testing.T) {
		tests := []string{
			`See <a href="https://example.com/x" class="ref">the source</a> for details.`,
			`A <em class="term" lang="la">de facto</em> rule with <b id="k1">one</b> key.`,
			`<abbr title="HyperText Markup Language" dir="ltr">HTML</abbr> is <code>plain</code>.`,
		}
		for _, in := range tests {
			assert.Equal(t, in, sanitize.Markup(in))
		}
	})

	t.Run("drops_scripts_and_handlers", func(t *testing.T) {
		out := sanitize.Markup(`<a href="https://example.com" onclick="steal()">link</a><script>alert(1)</script>`)
		assert.NotContains(t, out, "onclick")
		assert.NotContains(t, out, "script")
		assert.Contains(t, out, ">link</a>")
	})
}

func TestLooksLikeMarkup(t *testing.T) {
	assert.True(t, sanitize.LooksLikeMarkup("a <b>bold</b> move"))
	assert.False(t, sanitize.LooksLikeMarkup("3 < 4"))
	assert.False(t, sanitize.LooksLikeMarkup("no tags here"))
}
