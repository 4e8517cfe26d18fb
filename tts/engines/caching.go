package engines

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/gob"
	"encoding/hex"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/ttsync/internal/cache"
	"github.com/dgnsrekt/ttsync/tts"
)

// DiskKey is the persistent cache key of a request: the first 40 hex
// characters of sha256("text|voice|rate|pitch").
func DiskKey(req tts.SynthesisRequest) string {
	raw := req.Text + "|" + req.Voice + "|" +
		strconv.FormatFloat(req.Rate, 'f', -1, 64) + "|" +
		strconv.FormatFloat(req.Pitch, 'f', -1, 64)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:40]
}

// record is what the disk cache stores per request.
type record struct {
	Audio      []byte
	MIME       string
	Boundaries []tts.BoundaryEvent
}

// CachingProvider persists synthesized audio and boundaries on disk so a
// request survives restarts. Results that only carry a URL are not stored.
type CachingProvider struct {
	tts.Provider
	store  *cache.DiskStore
	logger *log.Logger
}

// NewCachingProvider wraps p with store.
func NewCachingProvider(p tts.Provider, store *cache.DiskStore, logger *log.Logger) *CachingProvider {
	if logger == nil {
		logger = log.Default().WithPrefix("disk-cache")
	}
	return &CachingProvider{Provider: p, store: store, logger: logger}
}

// Synthesize answers from disk when possible and stores fresh results.
func (c *CachingProvider) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error) {
	key := DiskKey(req)
	if data, ok := c.store.Get(key); ok {
		var rec record
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err == nil && len(rec.Audio) > 0 {
			c.logger.Debug("Disk cache hit", "key", key)
			return &tts.SynthesisResult{Audio: rec.Audio, MIMEType: rec.MIME, Boundaries: rec.Boundaries}, nil
		}
		c.logger.Warn("Dropping unreadable cache entry", "key", key)
		c.store.Delete(key)
	}

	res, err := c.Provider.Synthesize(ctx, req)
	if err != nil || res == nil {
		return res, err
	}

	rec := record{Audio: res.Audio, MIME: res.MIMEType, Boundaries: res.Boundaries}
	if len(rec.Audio) == 0 && res.AudioBase64 != "" {
		decoded, derr := base64.StdEncoding.DecodeString(res.AudioBase64)
		if derr != nil {
			// the engine reports the decode failure
			return res, nil
		}
		rec.Audio = decoded
	}
	if len(rec.Audio) == 0 {
		return res, nil
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		c.logger.Warn("Cannot encode cache entry", "error", err)
		return res, nil
	}
	if err := c.store.Put(key, buf.Bytes()); err != nil {
		c.logger.Warn("Cannot store cache entry", "key", key, "error", err)
	}
	return res, nil
}

// Cached reports whether req is on disk.
func (c *CachingProvider) Cached(req tts.SynthesisRequest) bool {
	return c.store.Contains(DiskKey(req))
}

// Stats returns disk cache statistics.
func (c *CachingProvider) Stats() cache.Stats {
	return c.store.Stats()
}

// Clear removes every stored entry.
func (c *CachingProvider) Clear() error {
	return c.store.Clear()
}
