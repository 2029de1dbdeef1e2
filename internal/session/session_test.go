package session

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/dfigueira/walletctl/internal/logging"
	"github.com/dfigueira/walletctl/internal/wallet"
)

type fakeCapability struct {
	id          wallet.ProviderID
	probe       bool
	address     string
	connectErr  error
	connects    int
	disconnects int
}

func (f *fakeCapability) ID() wallet.ProviderID { return f.id }
func (f *fakeCapability) Probe() bool           { return f.probe }

func (f *fakeCapability) Connect(ctx context.Context) (string, error) {
	f.connects++
	if f.connectErr != nil {
		return "", f.connectErr
	}
	return f.address, nil
}

func (f *fakeCapability) SignAndSubmit(ctx context.Context, payload wallet.Payload) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeCapability) Disconnect(ctx context.Context) error {
	f.disconnects++
	return nil
}

type fixedBalances struct {
	balance *big.Rat
	err     error
}

func (b *fixedBalances) BalanceOf(ctx context.Context, address, asset string) (*big.Rat, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.balance, nil
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "session.db"), filepath.Join(dir, "session.lock"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestConnectPersistsAndCachesBalance(t *testing.T) {
	capability := &fakeCapability{id: "fake", probe: true, address: "0xab"}
	registry := wallet.NewRegistry()
	registry.Register(capability)
	store := openTestStore(t)
	balances := &fixedBalances{balance: big.NewRat(3, 2)}

	sess := New(registry, store, balances, "ETH", logging.Nop())
	state, err := sess.Connect(context.Background(), "fake")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if state.Address != "0xab" || state.Provider != "fake" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.CachedBalance != "1.500000" {
		t.Fatalf("cached balance = %q", state.CachedBalance)
	}

	rec, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("Load = (%v, %v, %v)", rec, ok, err)
	}
	if rec.Provider != "fake" || rec.Address != "0xab" {
		t.Fatalf("persisted record = %+v", rec)
	}
}

func TestConnectUnknownProvider(t *testing.T) {
	sess := New(wallet.NewRegistry(), openTestStore(t), nil, "ETH", logging.Nop())

	_, err := sess.Connect(context.Background(), "ghost")
	connectErr, ok := wallet.AsConnectError(err)
	if !ok || connectErr.Kind != wallet.ConnectUnavailable {
		t.Fatalf("error = %v, want unavailable connect error", err)
	}
}

func TestConnectProbeFailureSkipsProvider(t *testing.T) {
	capability := &fakeCapability{id: "fake", probe: false}
	registry := wallet.NewRegistry()
	registry.Register(capability)
	sess := New(registry, openTestStore(t), nil, "ETH", logging.Nop())

	_, err := sess.Connect(context.Background(), "fake")
	connectErr, ok := wallet.AsConnectError(err)
	if !ok || connectErr.Kind != wallet.ConnectUnavailable {
		t.Fatalf("error = %v, want unavailable connect error", err)
	}
	if capability.connects != 0 {
		t.Fatal("provider was contacted despite failing probe")
	}
}

func TestConnectFailedBalanceRefreshIsNonFatal(t *testing.T) {
	capability := &fakeCapability{id: "fake", probe: true, address: "0xab"}
	registry := wallet.NewRegistry()
	registry.Register(capability)
	balances := &fixedBalances{err: errors.New("rpc down")}

	sess := New(registry, openTestStore(t), balances, "ETH", logging.Nop())
	state, err := sess.Connect(context.Background(), "fake")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if state.CachedBalance != "" {
		t.Fatalf("cached balance = %q, want empty", state.CachedBalance)
	}
}

func TestRefreshBalanceOverwritesCache(t *testing.T) {
	capability := &fakeCapability{id: "fake", probe: true, address: "0xab"}
	registry := wallet.NewRegistry()
	registry.Register(capability)
	balances := &fixedBalances{balance: big.NewRat(3, 2)}

	sess := New(registry, openTestStore(t), balances, "ETH", logging.Nop())
	if _, err := sess.Connect(context.Background(), "fake"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	balances.balance = big.NewRat(9, 4)
	state, err := sess.RefreshBalance(context.Background())
	if err != nil {
		t.Fatalf("RefreshBalance failed: %v", err)
	}
	if state.CachedBalance != "2.250000" {
		t.Fatalf("cached balance = %q", state.CachedBalance)
	}

	// A failed read keeps the last good value.
	balances.err = errors.New("rpc down")
	state, err = sess.RefreshBalance(context.Background())
	if err == nil {
		t.Fatal("expected refresh error")
	}
	if state.CachedBalance != "2.250000" {
		t.Fatalf("cached balance after failure = %q", state.CachedBalance)
	}
}

func TestRestoreAcrossProcesses(t *testing.T) {
	capability := &fakeCapability{id: "fake", probe: true, address: "0xab"}
	registry := wallet.NewRegistry()
	registry.Register(capability)
	store := openTestStore(t)
	balances := &fixedBalances{balance: big.NewRat(1, 1)}

	first := New(registry, store, balances, "ETH", logging.Nop())
	if _, err := first.Connect(context.Background(), "fake"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// A fresh session over the same store stands in for a restarted process.
	second := New(registry, store, balances, "ETH", logging.Nop())
	if err := second.Restore(context.Background()); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	state, ok := second.Current()
	if !ok || state.Address != "0xab" {
		t.Fatalf("restored state = (%+v, %v)", state, ok)
	}
	if capability.connects != 1 {
		t.Fatalf("connects = %d; restore must not re-prompt", capability.connects)
	}
}

func TestRestoreClearsWhenProviderGone(t *testing.T) {
	capability := &fakeCapability{id: "fake", probe: true, address: "0xab"}
	registry := wallet.NewRegistry()
	registry.Register(capability)
	store := openTestStore(t)

	sess := New(registry, store, nil, "ETH", logging.Nop())
	if _, err := sess.Connect(context.Background(), "fake"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	capability.probe = false
	second := New(registry, store, nil, "ETH", logging.Nop())
	if err := second.Restore(context.Background()); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if second.Connected() {
		t.Fatal("session restored although provider no longer probes")
	}
	if _, ok, _ := store.Load(); ok {
		t.Fatal("stale persisted record was not cleared")
	}
}

func TestDisconnectClearsEverything(t *testing.T) {
	capability := &fakeCapability{id: "fake", probe: true, address: "0xab"}
	registry := wallet.NewRegistry()
	registry.Register(capability)
	store := openTestStore(t)

	sess := New(registry, store, nil, "ETH", logging.Nop())
	if _, err := sess.Connect(context.Background(), "fake"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := sess.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if sess.Connected() {
		t.Fatal("session still connected")
	}
	if capability.disconnects != 1 {
		t.Fatalf("disconnects = %d, want 1", capability.disconnects)
	}
	if _, ok, _ := store.Load(); ok {
		t.Fatal("persisted record survived disconnect")
	}
}

func TestConnectReplacesExistingSession(t *testing.T) {
	first := &fakeCapability{id: "first", probe: true, address: "0x01"}
	second := &fakeCapability{id: "second", probe: true, address: "0x02"}
	registry := wallet.NewRegistry()
	registry.Register(first)
	registry.Register(second)
	store := openTestStore(t)

	sess := New(registry, store, nil, "ETH", logging.Nop())
	if _, err := sess.Connect(context.Background(), "first"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	state, err := sess.Connect(context.Background(), "second")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if state.Provider != "second" || state.Address != "0x02" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if first.disconnects != 1 {
		t.Fatalf("first provider disconnects = %d, want 1", first.disconnects)
	}
}
