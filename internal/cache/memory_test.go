package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestLRU_BasicOperations(t *testing.T) {
	cache := NewLRU[string, []byte](4, nil)

	key := "test-key"
	value := []byte("test-value")

	if cache.Put(key, value) {
		t.Fatal("Put into empty cache should not evict")
	}

	retrieved, ok := cache.Get(key)
	if !ok {
		t.Fatal("Get failed: key not found")
	}
	if string(retrieved) != string(value) {
		t.Errorf("Retrieved value mismatch: got %s, want %s", retrieved, value)
	}

	if !cache.Contains(key) {
		t.Error("Contains returned false for existing key")
	}
	if cache.Len() != 1 {
		t.Errorf("Len mismatch: got %d, want 1", cache.Len())
	}

	if !cache.Delete(key) {
		t.Fatal("Delete reported missing key")
	}
	if cache.Contains(key) {
		t.Error("Key still exists after delete")
	}
	if cache.Delete(key) {
		t.Error("second Delete should report false")
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	cache := NewLRU[string, int](3, func(k string, _ int) {
		evicted = append(evicted, k)
	})

	cache.Put("a", 1)
	cache.Put("b", 2)
	cache.Put("c", 3)

	// touch a so b becomes the oldest
	cache.Get("a")

	if !cache.Put("d", 4) {
		t.Fatal("Put into a full cache should evict")
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("expected b to be evicted, got %v", evicted)
	}

	// recency is now d, a, c
	cache.Put("e", 5)
	cache.Put("f", 6)
	want := []string{"b", "c", "a"}
	if len(evicted) != len(want) {
		t.Fatalf("eviction order mismatch: got %v, want %v", evicted, want)
	}
	for i := range want {
		if evicted[i] != want[i] {
			t.Fatalf("eviction order mismatch: got %v, want %v", evicted, want)
		}
	}
}

func TestLRU_SwapReturnsReplacedValue(t *testing.T) {
	evictions := 0
	cache := NewLRU[string, int](2, func(string, int) { evictions++ })

	if _, replaced := cache.Swap("a", 1); replaced {
		t.Fatal("first Swap should not replace anything")
	}
	old, replaced := cache.Swap("a", 2)
	if !replaced || old != 1 {
		t.Fatalf("Swap = %d, %v; want 1, true", old, replaced)
	}
	if v, _ := cache.Get("a"); v != 2 {
		t.Errorf("Get after Swap = %d, want 2", v)
	}
	if evictions != 0 {
		t.Errorf("replaced value must not reach the eviction callback, got %d calls", evictions)
	}
}

func TestLRU_PeekDoesNotPromote(t *testing.T) {
	var evicted []string
	cache := NewLRU[string, int](2, func(k string, _ int) {
		evicted = append(evicted, k)
	})

	cache.Put("a", 1)
	cache.Put("b", 2)
	if v, ok := cache.Peek("a"); !ok || v != 1 {
		t.Fatalf("Peek returned %d, %v", v, ok)
	}
	cache.Put("c", 3)

	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("Peek must not protect a from eviction, evicted %v", evicted)
	}
}

func TestLRU_UpdateExisting(t *testing.T) {
	calls := 0
	cache := NewLRU[string, int](2, func(string, int) { calls++ })

	cache.Put("a", 1)
	cache.Put("b", 2)
	cache.Put("a", 10)

	if v, _ := cache.Peek("a"); v != 10 {
		t.Errorf("expected updated value 10, got %d", v)
	}
	if calls != 0 {
		t.Errorf("updating a key must not evict, got %d callbacks", calls)
	}

	// a was refreshed by the update, so b goes first
	cache.Put("c", 3)
	if cache.Contains("b") {
		t.Error("b should have been evicted")
	}
}

func TestLRU_ClearRunsCallback(t *testing.T) {
	released := map[string]bool{}
	cache := NewLRU[string, int](10, func(k string, _ int) { released[k] = true })

	for i := 0; i < 5; i++ {
		cache.Put(fmt.Sprintf("k%d", i), i)
	}
	cache.Clear()

	if cache.Len() != 0 {
		t.Errorf("expected empty cache, got %d", cache.Len())
	}
	if len(released) != 5 {
		t.Errorf("expected 5 released entries, got %d", len(released))
	}
}

func TestLRU_Stats(t *testing.T) {
	cache := NewLRU[int, int](2, nil)

	cache.Put(1, 1)
	cache.Get(1)
	cache.Get(2)
	cache.Put(2, 2)
	cache.Put(3, 3)

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d/%d", stats.Hits, stats.Misses)
	}
	if stats.Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", stats.Evictions)
	}
	if stats.Size != 2 || stats.Capacity != 2 {
		t.Errorf("unexpected size/capacity %d/%d", stats.Size, stats.Capacity)
	}
	if stats.HitRate() != 0.5 {
		t.Errorf("expected hit rate 0.5, got %f", stats.HitRate())
	}
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	cache := NewLRU[int, int](50, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				cache.Put(g*1000+i, i)
				cache.Get(g*1000 + i/2)
			}
		}(g)
	}
	wg.Wait()

	if cache.Len() != 50 {
		t.Errorf("expected cache to stay at capacity 50, got %d", cache.Len())
	}
}
