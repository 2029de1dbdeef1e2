package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	clierr "github.com/dfigueira/walletctl/internal/errors"
	"github.com/dfigueira/walletctl/internal/id"
	"github.com/dfigueira/walletctl/internal/risk"
	"github.com/dfigueira/walletctl/internal/session"
	"github.com/dfigueira/walletctl/internal/wallet"
)

// Confirmer waits for a submitted transaction to land. chain.Client satisfies
// it; tests substitute fakes.
type Confirmer interface {
	WaitConfirmed(ctx context.Context, txHash string, pollInterval time.Duration) error
}

// Observer receives a snapshot after every state transition.
type Observer func(Record)

// Options tune the confirmation phase and the connect fallback.
type Options struct {
	// Provider is connected when an execution starts without a session.
	Provider wallet.ProviderID

	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// Pipeline drives intents through connect, risk evaluation, signing,
// broadcast and confirmation. At most one record is in flight at a time;
// a second Run while one is active fails immediately with CodeBusy.
type Pipeline struct {
	session  *session.Session
	gate     *risk.Gate
	balances session.BalanceSource
	confirm  Confirmer
	journal  *Journal
	observer Observer
	opts     Options
	log      zerolog.Logger

	// mu guards admission and every record field mutation, so Active can
	// snapshot a record that another goroutine is driving. It is never held
	// across a blocking provider or chain call.
	mu     sync.Mutex
	active *Record
}

// New wires a pipeline. journal and confirm may be nil: without a journal
// terminal records are simply not persisted, and without a confirmer the
// confirming phase completes as soon as the provider reports a hash.
func New(sess *session.Session, gate *risk.Gate, balances session.BalanceSource, confirm Confirmer, journal *Journal, opts Options, log zerolog.Logger) *Pipeline {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 2 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Pipeline{
		session:  sess,
		gate:     gate,
		balances: balances,
		confirm:  confirm,
		journal:  journal,
		opts:     opts,
		log:      log,
	}
}

// SetObserver installs a transition callback. Must be called before Run.
func (p *Pipeline) SetObserver(fn Observer) { p.observer = fn }

// Active returns a snapshot of the in-flight or unacknowledged record.
func (p *Pipeline) Active() (Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return Record{}, false
	}
	return p.active.snapshot(), true
}

// Run starts a fresh execution for intent. A terminal record left behind by
// a previous execution is discarded; a non-terminal one blocks the call.
func (p *Pipeline) Run(ctx context.Context, intent Intent) (Record, error) {
	if intent.BuildPayload == nil {
		return Record{}, clierr.New(clierr.CodeInternal, "intent has no payload builder")
	}
	if _, err := id.ParsePositiveDecimal(intent.AmountDecimal); err != nil {
		return Record{}, clierr.Wrap(clierr.CodeUsage, "invalid amount", err)
	}

	now := time.Now().UTC()
	rec := &Record{
		ID:        uuid.NewString(),
		Intent:    intent,
		State:     StateIdle,
		StartedAt: now,
		UpdatedAt: now,
	}

	p.mu.Lock()
	if p.active != nil && !p.active.State.Terminal() {
		snap := p.active.snapshot()
		p.mu.Unlock()
		return snap, clierr.New(clierr.CodeBusy, "execution already in progress")
	}
	p.active = rec
	p.mu.Unlock()
	p.log.Debug().Str("execution", rec.ID).Str("asset", intent.Asset).Str("amount", intent.AmountDecimal).Msg("execution started")

	err := p.runAttempt(ctx, rec)
	return p.snapshot(rec), err
}

// Retry re-runs the active record after an error, keeping its identity.
// Attempts increments only if the retry reaches signing again; risk is
// evaluated against the live balance, so a retry can fail for a different
// reason than the original. The pipeline never caps retries itself.
func (p *Pipeline) Retry(ctx context.Context) (Record, error) {
	p.mu.Lock()
	rec := p.active
	if rec == nil {
		p.mu.Unlock()
		return Record{}, clierr.New(clierr.CodeUsage, "no execution to retry")
	}
	if rec.State != StateError {
		snap := rec.snapshot()
		p.mu.Unlock()
		return snap, clierr.New(clierr.CodeUsage, fmt.Sprintf("execution is %s, not retryable", rec.State))
	}
	rec.State = StateIdle
	rec.LastError = ""
	rec.retried = true
	rec.UpdatedAt = time.Now().UTC()
	attempts := rec.Attempts
	p.mu.Unlock()
	p.log.Debug().Str("execution", rec.ID).Int("attempts", attempts).Msg("retrying execution")

	err := p.runAttempt(ctx, rec)
	return p.snapshot(rec), err
}

// Acknowledge discards a terminal record, making room for the next Run.
func (p *Pipeline) Acknowledge() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return nil
	}
	if !p.active.State.Terminal() {
		return clierr.New(clierr.CodeBusy, "execution still in progress")
	}
	p.active = nil
	return nil
}

func (p *Pipeline) runAttempt(ctx context.Context, rec *Record) error {
	if !p.session.Connected() {
		p.transition(rec, StateConnecting)
		if err := ctx.Err(); err != nil {
			return p.fail(rec, clierr.Wrap(clierr.CodeUsage, "execution cancelled", err))
		}
		if p.opts.Provider == "" {
			return p.fail(rec, clierr.New(clierr.CodeUsage, "no wallet session and no provider configured"))
		}
		if _, err := p.session.Connect(ctx, p.opts.Provider); err != nil {
			return p.fail(rec, err)
		}
	}

	p.transition(rec, StatePreparing)
	if err := ctx.Err(); err != nil {
		return p.fail(rec, clierr.Wrap(clierr.CodeUsage, "execution cancelled", err))
	}

	amount, err := id.ParsePositiveDecimal(rec.Intent.AmountDecimal)
	if err != nil {
		return p.fail(rec, clierr.Wrap(clierr.CodeUsage, "invalid amount", err))
	}
	verdict, err := p.gate.Evaluate(ctx, rec.Intent.Asset, amount, p.liveBalances())
	if err != nil {
		return p.fail(rec, clierr.Wrap(clierr.CodeNetwork, "balance check failed", err))
	}
	p.mu.Lock()
	rec.Warnings = append(rec.Warnings, verdict.Warnings...)
	p.mu.Unlock()
	if rejection := verdict.Err(rec.Intent.Asset); rejection != nil {
		// The wallet capability is never reached for a rejected intent.
		return p.fail(rec, rejection)
	}

	payload, err := rec.Intent.BuildPayload(ctx)
	if err != nil {
		return p.fail(rec, err)
	}
	capability, ok := p.session.Capability()
	if !ok {
		return p.fail(rec, clierr.New(clierr.CodeInternal, "session lost its capability"))
	}
	if err := ctx.Err(); err != nil {
		return p.fail(rec, clierr.Wrap(clierr.CodeUsage, "execution cancelled", err))
	}

	p.mu.Lock()
	if rec.retried {
		rec.Attempts++
		rec.retried = false
	}
	p.mu.Unlock()
	p.transition(rec, StateSigning)

	// Once the signature has been requested the execution is committed;
	// caller cancellation no longer applies.
	signCtx := context.WithoutCancel(ctx)
	hash, err := capability.SignAndSubmit(signCtx, payload)
	if err != nil {
		return p.fail(rec, wallet.NormalizeSubmitError(capability.ID(), err))
	}

	p.transition(rec, StateBroadcasting)
	p.transition(rec, StateConfirming)
	if p.confirm != nil {
		waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.ConfirmTimeout)
		err := p.confirm.WaitConfirmed(waitCtx, hash, p.opts.PollInterval)
		cancel()
		if err != nil {
			return p.fail(rec, mapConfirmError(capability.ID(), err))
		}
	}

	p.mu.Lock()
	rec.ResultHash = hash
	p.mu.Unlock()
	p.transition(rec, StateSuccess)
	p.persist(rec)
	p.log.Debug().Str("execution", rec.ID).Str("hash", hash).Msg("execution confirmed")
	return nil
}

// liveBalances binds the current session address to the balance source so the
// risk gate always reads the live on-chain balance, never a cached figure.
func (p *Pipeline) liveBalances() risk.BalanceReader {
	return liveBalanceReader{p: p}
}

type liveBalanceReader struct{ p *Pipeline }

func (r liveBalanceReader) Balance(ctx context.Context, asset string) (*big.Rat, error) {
	addr := r.p.session.Address()
	if addr == "" {
		return nil, clierr.New(clierr.CodeInternal, "no session address for balance check")
	}
	return r.p.balances.BalanceOf(ctx, addr, asset)
}

func (p *Pipeline) fail(rec *Record, cause error) error {
	p.mu.Lock()
	rec.LastError = cause.Error()
	p.mu.Unlock()
	p.transition(rec, StateError)
	p.persist(rec)
	p.log.Debug().Str("execution", rec.ID).Str("state", string(StateError)).Err(cause).Msg("execution failed")
	return cause
}

func (p *Pipeline) transition(rec *Record, next State) {
	p.mu.Lock()
	if stateRank[next] < stateRank[rec.State] && next != StateError {
		// Transitions only move forward inside an attempt.
		current := rec.State
		p.mu.Unlock()
		panic(fmt.Sprintf("pipeline: transition %s -> %s", current, next))
	}
	rec.State = next
	rec.UpdatedAt = time.Now().UTC()
	snap := rec.snapshot()
	p.mu.Unlock()
	if p.observer != nil {
		p.observer(snap)
	}
}

// snapshot copies a record under the pipeline mutex.
func (p *Pipeline) snapshot(rec *Record) Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return rec.snapshot()
}

func (p *Pipeline) persist(rec *Record) {
	if p.journal == nil {
		return
	}
	if err := p.journal.Save(p.snapshot(rec)); err != nil {
		p.log.Warn().Err(err).Str("execution", rec.ID).Msg("failed to journal execution")
	}
}

func mapConfirmError(provider wallet.ProviderID, err error) error {
	if ce, ok := clierr.As(err); ok && ce.Code == clierr.CodeTimeout {
		return wallet.NewSubmitError(provider, wallet.SubmitTimeout, "transaction not confirmed in time", err)
	}
	return wallet.NewSubmitError(provider, wallet.SubmitNetworkError, "", err)
}
