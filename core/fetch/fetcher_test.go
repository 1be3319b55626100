package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/easyread/core/fetch"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		assert.Contains(t, r.Header.Get("User-Agent"), "easyread")
		_, _ = w.Write([]byte("<html><body><p>hello</p></body></html>"))
	}))
	defer srv.Close()

	t.Run("ok", func(t *testing.T) {
		res, err := fetch.New().Fetch(context.Background(), srv.URL+"/page")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, srv.URL+"/page", res.URL)
		assert.Contains(t, res.HTML, "<p>hello</p>")
	})

	t.Run("not_found", func(t *testing.T) {
		_, err := fetch.New().Fetch(context.Background(), srv.URL+"/missing")
		require.ErrorIs(t, err, fetch.ErrUnexpectedStatus)
	})
}

func TestFileFetcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte("<p>local</p>"), 0o644))

	for _, src := range []string{path, "file://" + path} {
		res, err := fetch.FileFetcher{}.Fetch(context.Background(), src)
		require.NoError(t, err)
		assert.Equal(t, "<p>local</p>", res.HTML)
		assert.Contains(t, res.URL, "file://")
	}

	_, err := fetch.FileFetcher{}.Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.html"))
	require.Error(t, err)
}

func TestAuto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("remote"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte("local"), 0o644))

	a := fetch.Auto{Remote: fetch.New()}
	res, err := a.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "remote", res.HTML)

	res, err = a.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "local", res.HTML)

	assert.True(t, fetch.IsRemote("https://example.com"))
	assert.False(t, fetch.IsRemote("./page.html"))
}
