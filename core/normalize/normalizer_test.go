package normalize_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/gaurav-prasanna/easyread/core/normalize"
)

func TestNormalize(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<article><h1>Title</h1><p>Some <strong>bold</strong> text and a <a href="/docs">link</a>.</p></article>`))
	require.NoError(t, err)

	md, err := normalize.New("https://example.com").Normalize(doc)
	require.NoError(t, err)

	assert.Contains(t, md, "# Title")
	assert.Contains(t, md, "**bold**")
	assert.Contains(t, md, "[link](https://example.com/docs)")
}

func TestNormalizeNil(t *testing.T) {
	md, err := normalize.New("").Normalize(nil)
	require.NoError(t, err)
	assert.Empty(t, md)
}
