package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDiskStore_PutGet(t *testing.T) {
	dir := t.TempDir()

	store, err := NewDiskStore(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("Failed to create disk store: %v", err)
	}
	defer store.Close()

	small := []byte("tiny")
	large := bytes.Repeat([]byte("compressible audio "), 200)

	if err := store.Put("small", small); err != nil {
		t.Fatalf("Put small failed: %v", err)
	}
	if err := store.Put("large", large); err != nil {
		t.Fatalf("Put large failed: %v", err)
	}

	got, ok := store.Get("small")
	if !ok || !bytes.Equal(got, small) {
		t.Errorf("small mismatch: %q %v", got, ok)
	}
	got, ok = store.Get("large")
	if !ok || !bytes.Equal(got, large) {
		t.Errorf("large value did not round-trip")
	}

	stats := store.Stats()
	if stats.ItemCount != 2 {
		t.Errorf("expected 2 items, got %d", stats.ItemCount)
	}
	if stats.Size >= int64(len(small)+len(large)) {
		t.Errorf("expected compression to shrink the store, size %d", stats.Size)
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestDiskStore_EvictsLeastRecentlyRead(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 300, 0)
	if err != nil {
		t.Fatalf("Failed to create disk store: %v", err)
	}
	defer store.Close()

	value := bytes.Repeat([]byte{1}, 100)
	for _, k := range []string{"a", "b", "c"} {
		if err := store.Put(k, value); err != nil {
			t.Fatalf("Put %s failed: %v", k, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	store.Get("a")
	if err := store.Put("d", value); err != nil {
		t.Fatalf("Put d failed: %v", err)
	}

	if store.Contains("b") {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if !store.Contains(k) {
			t.Errorf("%s should still be cached", k)
		}
	}
	if store.Stats().Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", store.Stats().Evictions)
	}
}

func TestDiskStore_TooLarge(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 10, 0)
	if err != nil {
		t.Fatalf("Failed to create disk store: %v", err)
	}
	defer store.Close()

	if err := store.Put("big", make([]byte, 64)); err != ErrItemTooLarge {
		t.Errorf("expected ErrItemTooLarge, got %v", err)
	}
}

func TestDiskStore_PersistsIndex(t *testing.T) {
	dir := t.TempDir()

	store, err := NewDiskStore(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("Failed to create disk store: %v", err)
	}
	if err := store.Put("k", []byte("persisted")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.Put("late", []byte("x")); err != ErrClosed {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}

	reopened, err := NewDiskStore(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("Failed to reopen disk store: %v", err)
	}
	defer reopened.Close()

	got, ok := reopened.Get("k")
	if !ok || string(got) != "persisted" {
		t.Errorf("expected persisted value, got %q %v", got, ok)
	}
}

func TestDiskStore_MissingFileIsMiss(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, 1<<20, 0)
	if err != nil {
		t.Fatalf("Failed to create disk store: %v", err)
	}
	defer store.Close()

	if err := store.Put("k", []byte("value")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, fileName("k"))); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, ok := store.Get("k"); ok {
		t.Error("expected miss after file removal")
	}
	if store.Contains("k") {
		t.Error("entry should be dropped from the index")
	}
}

func TestDiskStore_Clear(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, 1<<20, 0)
	if err != nil {
		t.Fatalf("Failed to create disk store: %v", err)
	}
	defer store.Close()

	_ = store.Put("a", []byte("1"))
	_ = store.Put("b", []byte("2"))
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if store.Stats().ItemCount != 0 || store.Stats().Size != 0 {
		t.Errorf("store not empty after clear: %+v", store.Stats())
	}
	if _, err := os.Stat(filepath.Join(dir, fileName("a"))); !os.IsNotExist(err) {
		t.Error("cache file should be removed")
	}
}
