package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	homedir "github.com/mitchellh/go-homedir"
)

var readmeNames = []string{"README.md", "README", "Readme.md", "Readme", "readme.md", "readme"}

const maxSourceSize = 8 << 20

// source is a readable document. ID names it for the progress store and is
// empty for stdin and the clipboard.
type source struct {
	reader io.ReadCloser
	ID     string
	Title  string
}

// sourceFromArg parses an argument and creates a readable source for it.
func sourceFromArg(ctx context.Context, arg string) (*source, error) {
	// from stdin
	if arg == "-" {
		return &source{reader: io.NopCloser(os.Stdin), Title: "stdin"}, nil
	}

	// HTTP(S) URLs:
	if u, err := url.ParseRequestURI(arg); err == nil && strings.Contains(arg, "://") {
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("%s is not a supported protocol", u.Scheme)
		}
		return sourceFromURL(ctx, u)
	}

	if arg == "" {
		arg = "."
	}
	path, err := expandPath(arg)
	if err != nil {
		return nil, err
	}

	// a directory:
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		for _, name := range readmeNames {
			p := filepath.Join(path, name)
			if _, err := os.Stat(p); err == nil {
				return sourceFromFile(p)
			}
		}
		return nil, errors.New("missing markdown source")
	}
	return sourceFromFile(path)
}

func sourceFromFile(path string) (*source, error) {
	r, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}
	return &source{reader: r, ID: abs, Title: filepath.Base(abs)}, nil
}

func sourceFromURL(ctx context.Context, u *url.URL) (*source, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to get url: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to get url: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}
	// the body is read here so the request timeout covers it
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceSize))
	if err != nil {
		return nil, fmt.Errorf("unable to read url: %w", err)
	}
	return &source{reader: io.NopCloser(bytes.NewReader(b)), ID: u.String(), Title: u.String()}, nil
}

func sourceFromClipboard() (*source, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unable to read clipboard: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("clipboard is empty")
	}
	return &source{reader: io.NopCloser(strings.NewReader(text)), Title: "clipboard"}, nil
}

// read returns the document with any front matter removed.
func (s *source) read() (string, error) {
	defer s.reader.Close() //nolint:errcheck
	b, err := io.ReadAll(io.LimitReader(s.reader, maxSourceSize))
	if err != nil {
		return "", fmt.Errorf("unable to read from reader: %w", err)
	}
	return removeFrontmatter(string(b)), nil
}

// removeFrontmatter strips a leading YAML block delimited by "---" lines.
func removeFrontmatter(content string) string {
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return content
	}
	rest := content[strings.Index(content, "\n")+1:]
	for offset := 0; offset < len(rest); {
		end := strings.Index(rest[offset:], "\n")
		line := rest[offset:]
		if end >= 0 {
			line = rest[offset : offset+end]
		}
		if strings.TrimRight(line, "\r") == "---" {
			if end < 0 {
				return ""
			}
			return rest[offset+end+1:]
		}
		if end < 0 {
			break
		}
		offset += end + 1
	}
	return content
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// expandPath resolves a leading ~ and environment variables.
func expandPath(path string) (string, error) {
	p, err := homedir.Expand(os.ExpandEnv(path))
	if err != nil {
		return "", fmt.Errorf("unable to expand %q: %w", path, err)
	}
	return p, nil
}
