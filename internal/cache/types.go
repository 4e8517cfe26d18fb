package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations.
var (
	// ErrItemTooLarge is returned when an item exceeds the store capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when a stored payload cannot be decoded.
	ErrCacheCorrupted = errors.New("cache data corrupted")

	// ErrClosed is returned by a store that has been closed.
	ErrClosed = errors.New("cache is closed")
)

// Stats holds cache counters.
type Stats struct {
	Capacity  int64 // entries for the LRU, bytes for the disk store
	Size      int64 // entries for the LRU, bytes for the disk store
	ItemCount int64

	Hits      int64
	Misses    int64
	Evictions int64

	LastEvict time.Time
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
