package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMissOnUnknownKey(t *testing.T) {
	store := openTestStore(t)
	res, err := store.Get("absent")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if res.Hit {
		t.Fatal("unexpected hit")
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	if err := store.Set("key", []byte(`{"a":1}`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	res, err := store.Get("key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !res.Hit || res.Stale || string(res.Value) != `{"a":1}` {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestExpiredEntryIsStale(t *testing.T) {
	store := openTestStore(t)
	// Sub-second TTLs round up to one second.
	if err := store.Set("key", []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := store.db.Exec("UPDATE cache_entries SET created_at = created_at - 10"); err != nil {
		t.Fatalf("backdate entry: %v", err)
	}
	res, err := store.Get("key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !res.Hit || !res.Stale {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestOverwriteResetsEntry(t *testing.T) {
	store := openTestStore(t)
	if err := store.Set("key", []byte("old"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set("key", []byte("new"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	res, err := store.Get("key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(res.Value) != "new" {
		t.Fatalf("value = %q", res.Value)
	}
}

func TestPruneRemovesExpired(t *testing.T) {
	store := openTestStore(t)
	if err := store.Set("key", []byte("v"), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := store.db.Exec("UPDATE cache_entries SET created_at = created_at - 60"); err != nil {
		t.Fatalf("backdate entry: %v", err)
	}
	if err := store.Prune(); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	res, err := store.Get("key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if res.Hit {
		t.Fatal("expired entry survived prune")
	}
}
