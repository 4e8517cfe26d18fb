package tts

import (
	"strconv"

	"github.com/dgnsrekt/ttsync/internal/cache"
)

// CacheKey identifies a synthesis result. Two requests with equal keys may
// share audio.
type CacheKey struct {
	Voice string
	Rate  float64
	Pitch float64
	Text  string
}

// String renders the key as voice|rate|pitch|text.
func (k CacheKey) String() string {
	return k.Voice + "|" +
		strconv.FormatFloat(k.Rate, 'g', -1, 64) + "|" +
		strconv.FormatFloat(k.Pitch, 'g', -1, 64) + "|" +
		k.Text
}

// CacheEntry is cached audio plus the provider's raw boundaries. Entries
// are never mutated after insertion.
type CacheEntry struct {
	Source     AudioSource
	Boundaries []BoundaryEvent
}

func (e CacheEntry) release() {
	if e.Source.Blob != nil {
		e.Source.Blob.Release()
	}
}

// SynthesisCache holds recent synthesis results, evicting the least
// recently accessed entry and releasing its blob.
type SynthesisCache struct {
	lru *cache.LRU[CacheKey, CacheEntry]
}

// NewSynthesisCache creates a cache holding capacity entries.
func NewSynthesisCache(capacity int) *SynthesisCache {
	return &SynthesisCache{
		lru: cache.NewLRU(capacity, func(_ CacheKey, e CacheEntry) { e.release() }),
	}
}

// Get returns the entry for key and marks it most recently used.
func (c *SynthesisCache) Get(key CacheKey) (CacheEntry, bool) {
	return c.lru.Get(key)
}

// Peek returns the entry for key without touching its recency.
func (c *SynthesisCache) Peek(key CacheKey) (CacheEntry, bool) {
	return c.lru.Peek(key)
}

// Contains reports whether key is cached.
func (c *SynthesisCache) Contains(key CacheKey) bool {
	return c.lru.Contains(key)
}

// Set stores entry. A replaced entry's blob is released unless the new
// entry reuses it.
func (c *SynthesisCache) Set(key CacheKey, entry CacheEntry) {
	old, replaced := c.lru.Swap(key, entry)
	if replaced && old.Source.Blob != nil && old.Source.Blob != entry.Source.Blob {
		old.Source.Blob.Release()
	}
}

// Clear drops every entry, releasing blobs.
func (c *SynthesisCache) Clear() {
	c.lru.Clear()
}

// Len returns the number of cached entries.
func (c *SynthesisCache) Len() int {
	return c.lru.Len()
}

// Stats returns the cache counters.
func (c *SynthesisCache) Stats() cache.Stats {
	return c.lru.Stats()
}
