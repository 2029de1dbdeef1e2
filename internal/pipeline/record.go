package pipeline

import (
	"context"
	"time"

	"github.com/dfigueira/walletctl/internal/wallet"
)

// State is a phase of an execution. States advance monotonically within an
// attempt; success and error are terminal.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StatePreparing    State = "preparing"
	StateSigning      State = "signing"
	StateBroadcasting State = "broadcasting"
	StateConfirming   State = "confirming"
	StateSuccess      State = "success"
	StateError        State = "error"
)

var stateRank = map[State]int{
	StateIdle:         0,
	StateConnecting:   1,
	StatePreparing:    2,
	StateSigning:      3,
	StateBroadcasting: 4,
	StateConfirming:   5,
	StateSuccess:      6,
	StateError:        6,
}

func (s State) Terminal() bool {
	return s == StateSuccess || s == StateError
}

// PayloadBuilder turns an intent into the chain-specific payload. It is an
// external collaborator from the pipeline's point of view.
type PayloadBuilder func(ctx context.Context) (wallet.Payload, error)

// Intent is a proposed transfer/trade. It is immutable once submitted.
type Intent struct {
	Asset         string
	AmountDecimal string
	Recipient     string
	BuildPayload  PayloadBuilder
}

// Record tracks one intent through the pipeline. Its fields are mutated only
// under the pipeline's mutex and it lives until the caller acknowledges a
// terminal state. In-flight records are not durable; only terminal outcomes
// reach the journal.
// Attempts counts retries: it increments only when signing is entered
// again after a prior error, so a first-pass success leaves it at zero.
type Record struct {
	ID         string
	Intent     Intent
	State      State
	Attempts   int
	LastError  string
	ResultHash string
	Warnings   []string
	StartedAt  time.Time
	UpdatedAt  time.Time

	retried bool
}

func (r *Record) snapshot() Record {
	cp := *r
	cp.Warnings = append([]string(nil), r.Warnings...)
	return cp
}
