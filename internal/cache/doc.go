// Package cache provides the two stores used for synthesized audio: a
// count-bounded in-memory LRU with an eviction hook, and a size-bounded,
// zstd-compressed disk store that persists across sessions.
package cache
