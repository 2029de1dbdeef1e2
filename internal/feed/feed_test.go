package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dfigueira/walletctl/internal/cache"
	"github.com/dfigueira/walletctl/internal/httpx"
)

const feedBody = `{
	"opportunities": [
		{"id": "stake-apt", "kind": "stake", "asset": "APT", "apy": 7.2, "suggested_amount": "100", "recipient": "0xpool"},
		{"id": "lend-usdc", "kind": "lend", "asset": "USDC", "apy": 11.4, "suggested_amount": "250", "recipient": "0xvault"}
	]
}`

func newFeedServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		_, _ = w.Write([]byte(feedBody))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchSortsByAPY(t *testing.T) {
	server := newFeedServer(t, nil)
	client := NewClient(httpx.New(time.Second, 0), server.URL)

	opps, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(opps) != 2 || opps[0].ID != "lend-usdc" {
		t.Fatalf("unexpected ordering: %+v", opps)
	}
}

func TestFetchWithoutURL(t *testing.T) {
	client := NewClient(httpx.New(time.Second, 0), "")
	if _, err := client.Fetch(context.Background()); err == nil {
		t.Fatal("expected error without a configured feed url")
	}
}

func TestListServesFromCache(t *testing.T) {
	var calls atomic.Int32
	server := newFeedServer(t, &calls)
	dir := t.TempDir()
	store, err := cache.Open(filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer store.Close()

	svc := NewService(NewClient(httpx.New(time.Second, 0), server.URL), store, time.Minute)

	opps, status, err := svc.List(context.Background(), false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(opps) != 2 || status.Status != "miss" {
		t.Fatalf("first list: %d opportunities, cache %q", len(opps), status.Status)
	}

	opps, status, err = svc.List(context.Background(), false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(opps) != 2 || status.Status != "hit" {
		t.Fatalf("second list: %d opportunities, cache %q", len(opps), status.Status)
	}
	if calls.Load() != 1 {
		t.Fatalf("feed fetched %d times, want 1", calls.Load())
	}
}

func TestListBypassesCache(t *testing.T) {
	var calls atomic.Int32
	server := newFeedServer(t, &calls)
	svc := NewService(NewClient(httpx.New(time.Second, 0), server.URL), nil, time.Minute)

	for i := 0; i < 2; i++ {
		if _, _, err := svc.List(context.Background(), true); err != nil {
			t.Fatalf("List failed: %v", err)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("feed fetched %d times, want 2", calls.Load())
	}
}

func TestFindByID(t *testing.T) {
	server := newFeedServer(t, nil)
	svc := NewService(NewClient(httpx.New(time.Second, 0), server.URL), nil, time.Minute)

	opp, _, err := svc.Find(context.Background(), "STAKE-APT", true)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if opp.Asset != "APT" || opp.Recipient != "0xpool" {
		t.Fatalf("unexpected opportunity: %+v", opp)
	}

	if _, _, err := svc.Find(context.Background(), "missing", true); err == nil {
		t.Fatal("expected not-found error")
	}
}
