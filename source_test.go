package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveFrontmatter(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"none", "# Title\n\nBody.", "# Title\n\nBody."},
		{"yaml", "---\ntitle: x\ntags: [a]\n---\n# Title\n", "# Title\n"},
		{"crlf", "---\r\ntitle: x\r\n---\r\nBody.", "Body."},
		{"unterminated", "---\ntitle: x\nBody.", "---\ntitle: x\nBody."},
		{"only", "---\na: b\n---", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, removeFrontmatter(tt.in))
		})
	}
}

func TestSourceFromFileAndDir(t *testing.T) {
	dir := t.TempDir()
	readme := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(readme, []byte("---\na: b\n---\nHello there."), 0o600))

	src, err := sourceFromArg(context.Background(), readme)
	require.NoError(t, err)
	assert.Equal(t, "README.md", src.Title)
	assert.True(t, filepath.IsAbs(src.ID))
	text, err := src.read()
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", text)

	src, err = sourceFromArg(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "README.md", src.Title)
	_, _ = src.read()

	_, err = sourceFromArg(context.Background(), t.TempDir())
	assert.EqualError(t, err, "missing markdown source")

	_, err = sourceFromArg(context.Background(), filepath.Join(dir, "nope.md"))
	assert.Error(t, err)
}

func TestSourceFromURL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/doc.md" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("Remote text."))
	}))
	defer ts.Close()

	src, err := sourceFromArg(context.Background(), ts.URL+"/doc.md")
	require.NoError(t, err)
	assert.Equal(t, ts.URL+"/doc.md", src.ID)
	text, err := src.read()
	require.NoError(t, err)
	assert.Equal(t, "Remote text.", text)

	_, err = sourceFromArg(context.Background(), ts.URL+"/missing")
	assert.EqualError(t, err, "HTTP status 404")

	_, err = sourceFromArg(context.Background(), "ftp://example.com/doc.md")
	assert.EqualError(t, err, "ftp is not a supported protocol")
}

func TestExpandPath(t *testing.T) {
	t.Setenv("TTSYNC_TEST_DIR", "/tmp/ttsync")
	p, err := expandPath("$TTSYNC_TEST_DIR/audio")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ttsync/audio", p)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	p, err = expandPath("~/notes.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "notes.md"), p)
}
