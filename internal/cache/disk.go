package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	indexFile = "cache.index"

	// payloads below this size are stored raw
	compressThreshold = 1024
)

// DiskStore is a persistent byte store bounded by total size on disk. Values
// are optionally zstd-compressed and the least recently read entries are
// removed once the capacity is exceeded. The index survives restarts.
type DiskStore struct {
	dir      string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu     sync.Mutex
	stats  Stats
	closed bool
}

type diskEntry struct {
	Key        string
	File       string
	Size       int64
	RawSize    int64
	Created    time.Time
	LastAccess time.Time
	Hits       int64
	Compressed bool
}

// NewDiskStore opens (or creates) a store under dir. A compressionLevel of 0
// disables compression.
func NewDiskStore(dir string, capacity int64, compressionLevel int) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	ds := &DiskStore{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
		stats:    Stats{Capacity: capacity},
	}

	if compressionLevel > 0 {
		var err error
		ds.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	// a decoder is always kept so entries written with compression on can be
	// read after it is switched off
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	ds.decoder = dec

	if err := ds.loadIndex(); err != nil {
		ds.index = make(map[string]*diskEntry)
	}
	ds.reconcile()

	return ds, nil
}

// Get returns the stored value for key. Entries whose file is missing or
// unreadable are dropped and reported as a miss.
func (ds *DiskStore) Get(key string) ([]byte, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.closed {
		return nil, false
	}

	entry, ok := ds.index[key]
	if !ok {
		ds.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(entry.File)
	if err == nil && entry.Compressed {
		data, err = ds.decoder.DecodeAll(data, nil)
	}
	if err != nil {
		ds.dropLocked(entry)
		ds.stats.Misses++
		return nil, false
	}

	entry.LastAccess = time.Now()
	entry.Hits++
	ds.stats.Hits++
	return data, true
}

// Contains reports whether key is indexed.
func (ds *DiskStore) Contains(key string) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	_, ok := ds.index[key]
	return ok
}

// Put writes value under key, replacing any previous value.
func (ds *DiskStore) Put(key string, value []byte) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.closed {
		return ErrClosed
	}

	data := value
	compressed := false
	if ds.encoder != nil && len(value) > compressThreshold {
		if c := ds.encoder.EncodeAll(value, nil); len(c) < len(value) {
			data = c
			compressed = true
		}
	}

	size := int64(len(data))
	if ds.capacity > 0 && size > ds.capacity {
		return ErrItemTooLarge
	}

	if old, ok := ds.index[key]; ok {
		ds.dropLocked(old)
	}
	for ds.capacity > 0 && ds.size+size > ds.capacity && len(ds.index) > 0 {
		ds.evictOldestLocked()
	}

	path := filepath.Join(ds.dir, fileName(key))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to commit cache file: %w", err)
	}

	now := time.Now()
	ds.index[key] = &diskEntry{
		Key:        key,
		File:       path,
		Size:       size,
		RawSize:    int64(len(value)),
		Created:    now,
		LastAccess: now,
		Compressed: compressed,
	}
	ds.size += size
	return nil
}

// Delete removes key from the store.
func (ds *DiskStore) Delete(key string) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	entry, ok := ds.index[key]
	if !ok {
		return false
	}
	ds.dropLocked(entry)
	return true
}

// Clear removes every entry and its file.
func (ds *DiskStore) Clear() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	var errs []error
	for _, entry := range ds.index {
		if err := os.Remove(entry.File); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	ds.index = make(map[string]*diskEntry)
	ds.size = 0

	if err := ds.saveIndexLocked(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the store counters. Size is in bytes on disk.
func (ds *DiskStore) Stats() Stats {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	stats := ds.stats
	stats.Size = ds.size
	stats.ItemCount = int64(len(ds.index))
	return stats
}

// Dir returns the directory backing the store.
func (ds *DiskStore) Dir() string { return ds.dir }

// Close persists the index and releases the codecs.
func (ds *DiskStore) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.closed {
		return nil
	}
	ds.closed = true

	err := ds.saveIndexLocked()
	if ds.encoder != nil {
		_ = ds.encoder.Close()
	}
	ds.decoder.Close()
	return err
}

func (ds *DiskStore) dropLocked(entry *diskEntry) {
	delete(ds.index, entry.Key)
	ds.size -= entry.Size
	_ = os.Remove(entry.File)
}

func (ds *DiskStore) evictOldestLocked() {
	var oldest *diskEntry
	for _, e := range ds.index {
		if oldest == nil || e.LastAccess.Before(oldest.LastAccess) {
			oldest = e
		}
	}
	if oldest == nil {
		return
	}
	ds.dropLocked(oldest)
	ds.stats.Evictions++
	ds.stats.LastEvict = time.Now()
}

func (ds *DiskStore) loadIndex() error {
	f, err := os.Open(filepath.Join(ds.dir, indexFile))
	if err != nil {
		return err
	}
	defer f.Close()

	return gob.NewDecoder(f).Decode(&ds.index)
}

func (ds *DiskStore) saveIndexLocked() error {
	path := filepath.Join(ds.dir, indexFile)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(ds.index); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// reconcile drops index entries whose files have gone missing, recomputes
// the size and trims the store down to capacity.
func (ds *DiskStore) reconcile() {
	ds.size = 0
	for key, e := range ds.index {
		info, err := os.Stat(e.File)
		if err != nil {
			delete(ds.index, key)
			continue
		}
		e.Size = info.Size()
		ds.size += e.Size
	}

	if ds.capacity <= 0 || ds.size <= ds.capacity {
		return
	}
	entries := make([]*diskEntry, 0, len(ds.index))
	for _, e := range ds.index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})
	for _, e := range entries {
		if ds.size <= ds.capacity {
			break
		}
		ds.dropLocked(e)
	}
}

func fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + ".cache"
}
