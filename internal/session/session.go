// Package session owns the single active wallet connection: its lifecycle,
// its cached balance, and its persistence across process restarts.
package session

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dfigueira/walletctl/internal/id"
	"github.com/dfigueira/walletctl/internal/wallet"
)

// BalanceSource reads a live balance for an address.
type BalanceSource interface {
	BalanceOf(ctx context.Context, address, asset string) (*big.Rat, error)
}

// State is the in-memory session. CachedBalance is empty until the first
// successful refresh and is never persisted.
type State struct {
	Provider      wallet.ProviderID
	Address       string
	CachedBalance string
	ConnectedAt   time.Time
}

// Session holds at most one active connection. Connecting a second provider
// while one is active first disconnects the current one.
type Session struct {
	mu          sync.Mutex
	registry    *wallet.Registry
	store       *Store
	balances    BalanceSource
	nativeAsset string
	log         zerolog.Logger

	current    *State
	capability wallet.Capability
}

func New(registry *wallet.Registry, store *Store, balances BalanceSource, nativeAsset string, log zerolog.Logger) *Session {
	return &Session{
		registry:    registry,
		store:       store,
		balances:    balances,
		nativeAsset: id.NormalizeAsset(nativeAsset),
		log:         log,
	}
}

// Restore rehydrates a persisted session at startup without re-prompting the
// user: the prior grant is assumed to still hold. If the provider no longer
// probes, local state is cleared silently and the session stays disconnected.
func (s *Session) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := s.store.Load()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	capability, found := s.registry.Lookup(rec.Provider)
	if !found || !capability.Probe() {
		s.log.Debug().Str("provider", string(rec.Provider)).Msg("persisted session provider unavailable, clearing")
		_ = s.store.Clear()
		return nil
	}

	s.current = &State{Provider: rec.Provider, Address: rec.Address, ConnectedAt: time.Now().UTC()}
	s.capability = capability
	s.log.Debug().Str("provider", string(rec.Provider)).Str("address", rec.Address).Msg("session restored")

	s.refreshLocked(ctx)
	return nil
}

// Connect establishes a session with the named provider. The probe runs
// first: an absent provider fails with ConnectError{Unavailable} without the
// provider ever being contacted. Connect errors are surfaced verbatim; retry
// is the caller's decision.
func (s *Session) Connect(ctx context.Context, providerID wallet.ProviderID) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	capability, found := s.registry.Lookup(providerID)
	if !found {
		return State{}, wallet.NewConnectError(providerID, wallet.ConnectUnavailable, nil)
	}
	if !capability.Probe() {
		return State{}, wallet.NewConnectError(providerID, wallet.ConnectUnavailable, nil)
	}

	if s.current != nil {
		s.disconnectLocked(ctx)
	}

	address, err := capability.Connect(ctx)
	if err != nil {
		return State{}, err
	}

	s.current = &State{Provider: capability.ID(), Address: address, ConnectedAt: time.Now().UTC()}
	s.capability = capability
	if err := s.store.Save(Record{Provider: capability.ID(), Address: address}); err != nil {
		return State{}, err
	}
	s.log.Debug().Str("provider", string(capability.ID())).Str("address", address).Msg("session connected")

	s.refreshLocked(ctx)
	return *s.current, nil
}

// RefreshBalance overwrites the cached balance from a live read. A failed
// read keeps the previous value; the error is reported but non-fatal.
func (s *Session) RefreshBalance(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return State{}, nil
	}
	err := s.refreshLocked(ctx)
	return *s.current, err
}

func (s *Session) refreshLocked(ctx context.Context) error {
	if s.balances == nil || s.current == nil {
		return nil
	}
	balance, err := s.balances.BalanceOf(ctx, s.current.Address, s.nativeAsset)
	if err != nil {
		s.log.Debug().Err(err).Msg("balance refresh failed, keeping previous value")
		return err
	}
	s.current.CachedBalance = balance.FloatString(6)
	return nil
}

// Disconnect tears the session down. In-memory and persisted state are
// cleared unconditionally, even when the provider teardown fails.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked(ctx)
	return nil
}

func (s *Session) disconnectLocked(ctx context.Context) {
	if s.capability != nil {
		_ = s.capability.Disconnect(ctx)
	}
	s.current = nil
	s.capability = nil
	_ = s.store.Clear()
	s.log.Debug().Msg("session disconnected")
}

// Current returns a copy of the active state, if any.
func (s *Session) Current() (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return State{}, false
	}
	return *s.current, true
}

func (s *Session) Connected() bool {
	_, ok := s.Current()
	return ok
}

// Capability returns the handle the pipeline signs through.
func (s *Session) Capability() (wallet.Capability, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capability == nil {
		return nil, false
	}
	return s.capability, true
}

func (s *Session) Address() string {
	state, ok := s.Current()
	if !ok {
		return ""
	}
	return state.Address
}
