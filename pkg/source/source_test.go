package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanStripsFences(t *testing.T) {
	in := "Here you go:\n```json\n[{\"question\":\"Q\"}]\n```\nDone."
	out := Clean(in)
	assert.NotContains(t, out, "```")
	assert.Contains(t, out, `[{"question":"Q"}]`)
	assert.Contains(t, out, "Done.")
}

func TestCleanKeepsInlineBackticks(t *testing.T) {
	in := "use ```inline``` here"
	assert.Equal(t, in, Clean(in))
}

func TestCleanBOMAndInvalidUTF8(t *testing.T) {
	out := Clean("\ufeff{\"a\":1}\xff")
	assert.Equal(t, "{\"a\":1}\ufffd", out)
}

func TestLoadPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.txt")
	require.NoError(t, os.WriteFile(path, []byte("```\n{\"question\":\"Q\"}\n```"), 0o644))
	text, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "{\"question\":\"Q\"}", strings.TrimSpace(text))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "none.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadHTMLPage(t *testing.T) {
	text, err := Load(context.Background(), "testdata/kmc_block_j.html")
	require.NoError(t, err)
	assert.Contains(t, text, "Which hormone lowers blood glucose?")
	assert.Contains(t, text, "Which nerve supplies the deltoid?")
	assert.NotContains(t, text, "<p>")
}

func TestIsHTML(t *testing.T) {
	assert.True(t, IsHTML("a/b.HTML"))
	assert.True(t, IsHTML("page.htm"))
	assert.False(t, IsHTML("dump.json"))
}

func TestFetchHTML(t *testing.T) {
	body, err := os.ReadFile("testdata/kmc_block_j.html")
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(body)
	}))
	defer srv.Close()

	text, err := Load(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "Which nerve supplies the deltoid?")
}

func TestFetchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("```json\n[{\"question\":\"Q\"}]\n```"))
	}))
	defer srv.Close()

	text, err := Fetch(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, `[{"question":"Q"}]`, strings.TrimSpace(text))
}

func TestFetchStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), srv.Client(), srv.URL)
	assert.ErrorContains(t, err, "status 403")
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/a"))
	assert.False(t, IsURL("data/kmc J.enc"))
}
