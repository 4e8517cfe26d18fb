package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/dgnsrekt/ttsync/tts"
)

// maxRemoteAudio bounds downloads of URL sources.
const maxRemoteAudio = 64 << 20

// Load returns the encoded bytes and MIME type of src. URL sources may be
// file paths, file:// URLs or http(s) URLs.
func Load(ctx context.Context, src tts.AudioSource) ([]byte, string, error) {
	if src.Blob != nil {
		if src.Blob.Released() {
			return nil, "", errors.New("audio blob already released")
		}
		return src.Blob.Bytes(), src.Blob.MIME(), nil
	}
	if src.URL == "" {
		return nil, "", ErrEmptyAudio
	}

	u, err := url.Parse(src.URL)
	if err != nil || u.Scheme == "" {
		data, err := os.ReadFile(src.URL)
		return data, "", err
	}

	switch u.Scheme {
	case "file":
		data, err := os.ReadFile(u.Path)
		return data, "", err
	case "http", "https":
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
		if err != nil {
			return nil, "", err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, "", err
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("fetch audio: %s", resp.Status)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteAudio))
		return data, resp.Header.Get("Content-Type"), err
	}
	return nil, "", fmt.Errorf("%w: scheme %q", ErrUnsupportedFormat, u.Scheme)
}
