package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/ttsync/internal/progress"
	"github.com/dgnsrekt/ttsync/tts"
)

func TestResumePosition(t *testing.T) {
	tests := []struct {
		name        string
		entry       progress.Entry
		count       int
		index, char int
	}{
		{"mid document", progress.Entry{BlockIndex: 3, BlockCount: 10, CharIndex: 12}, 10, 3, 12},
		{"finished", progress.Entry{BlockIndex: 10, BlockCount: 10}, 10, 0, 0},
		{"document changed", progress.Entry{BlockIndex: 3, BlockCount: 8, CharIndex: 12}, 10, 0, 0},
		{"negative char", progress.Entry{BlockIndex: 2, BlockCount: 10, CharIndex: -4}, 10, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, char := resumePosition(tt.entry, tt.count)
			assert.Equal(t, tt.index, index)
			assert.Equal(t, tt.char, char)
		})
	}
}

func TestDocIDAndFormat(t *testing.T) {
	assert.Empty(t, docID(&source{Title: "stdin"}))
	assert.Equal(t, "https://example.com/readme.md", docID(&source{ID: "https://Example.com/README.md"}))
	assert.Equal(t, "/home/me/notes.md", docID(&source{ID: "/home/me/Notes.md"}))

	assert.Equal(t, "markdown", docFormat(&source{ID: "/a/b.MD"}))
	assert.Equal(t, "text", docFormat(&source{ID: "/a/b.txt"}))
	assert.Empty(t, docFormat(&source{}))
}

func TestBuildProvider(t *testing.T) {
	cfg := tts.DefaultConfig()

	p, err := buildProvider("mock", cfg)
	require.NoError(t, err)
	assert.NotNil(t, p)

	p, err = buildProvider("openai", cfg)
	require.NoError(t, err)
	assert.NotNil(t, p)

	p, err = buildProvider("piper", cfg)
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, err = buildProvider("exec", cfg)
	assert.Error(t, err, "exec without a command")

	_, err = buildProvider("espeak", cfg)
	assert.ErrorIs(t, err, tts.ErrInvalidConfig)
}

// TestPlainPlayback speaks a short document through the mock engine with
// silent sinks and checks the saved progress.
func TestPlainPlayback(t *testing.T) {
	dir := t.TempDir()
	viper.Set("silent", true)
	viper.Set("progress", dir+"/progress.db")
	viper.Set("lookahead", 1)
	t.Cleanup(func() {
		viper.Set("silent", false)
		viper.Set("progress", "")
		viper.Set("lookahead", 2)
	})

	cfg := tts.DefaultConfig()
	cfg.Cache.DiskEnabled = false
	cfg.Mock.Latency = 0
	cfg.Mock.WordsPerMinute = 500
	rt, err := newRuntime(cfg)
	require.NoError(t, err)
	defer rt.Close() //nolint:errcheck

	src := &source{ID: dir + "/doc.md", Title: "doc.md"}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, play(ctx, &out, rt, src, "# Title\n\nOne two. Three four.", false))
	assert.Contains(t, out.String(), "[1/3] Title")
	assert.Contains(t, out.String(), "Three four.")

	store, err := openProgress(ctx)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck
	e, err := store.Get(ctx, docID(src))
	require.NoError(t, err)
	assert.Equal(t, 3, e.BlockCount)
	assert.Equal(t, 3, e.BlockIndex, "a finished document is saved as done")
	assert.Equal(t, "markdown", e.Format)

	err = play(ctx, &out, rt, src, "   ", false)
	assert.ErrorIs(t, err, errNothingToRead)
}
