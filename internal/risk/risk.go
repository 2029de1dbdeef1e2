// Package risk implements the pre-trade assessment every execution must
// pass before a signature is requested: asset allow-list, per-transaction
// ceiling, and a live balance check.
package risk

import (
	"context"
	"fmt"
	"math/big"

	"github.com/dfigueira/walletctl/internal/id"
)

type ReasonCode string

const (
	ReasonOK                  ReasonCode = "ok"
	ReasonNotApproved         ReasonCode = "not_approved"
	ReasonAmountExceedsLimit  ReasonCode = "amount_exceeds_limit"
	ReasonInsufficientBalance ReasonCode = "insufficient_balance"
)

// Verdict is the outcome of a risk evaluation. Warnings do not block
// execution; they are surfaced alongside an accepted verdict.
type Verdict struct {
	Accepted bool
	Reason   ReasonCode
	Warnings []string
}

// Rejection is the error form of a rejected verdict.
type Rejection struct {
	Reason ReasonCode
	Asset  string
}

func (e *Rejection) Error() string {
	switch e.Reason {
	case ReasonNotApproved:
		return fmt.Sprintf("asset %s is not on the approved list", e.Asset)
	case ReasonAmountExceedsLimit:
		return "amount exceeds the configured transaction limit"
	case ReasonInsufficientBalance:
		return fmt.Sprintf("insufficient %s balance for the requested amount", e.Asset)
	}
	return "trade rejected by risk assessment"
}

// BalanceReader supplies live balances. Evaluation never consults a cached
// value: a concurrent refresh must not let a stale balance slip through.
type BalanceReader interface {
	Balance(ctx context.Context, asset string) (*big.Rat, error)
}

type Config struct {
	ApprovedAssets    []string
	MaxTxAmount       string
	MinBalanceWarning string
}

type Gate struct {
	approved    map[string]struct{}
	maxAmount   *big.Rat
	warnBalance *big.Rat
}

func NewGate(cfg Config) (*Gate, error) {
	maxAmount, err := id.ParseDecimal(cfg.MaxTxAmount)
	if err != nil {
		return nil, fmt.Errorf("risk max_transaction_amount: %w", err)
	}
	warnBalance := new(big.Rat)
	if cfg.MinBalanceWarning != "" {
		warnBalance, err = id.ParseDecimal(cfg.MinBalanceWarning)
		if err != nil {
			return nil, fmt.Errorf("risk min_balance_warning: %w", err)
		}
	}
	approved := make(map[string]struct{}, len(cfg.ApprovedAssets))
	for _, asset := range cfg.ApprovedAssets {
		approved[id.NormalizeAsset(asset)] = struct{}{}
	}
	return &Gate{approved: approved, maxAmount: maxAmount, warnBalance: warnBalance}, nil
}

// Evaluate runs the checks in fixed order: allow-list, then ceiling, then
// live balance. The first failing check decides the verdict; checks are not
// combined. The returned error reports infrastructure failure (the balance
// read), never a rejection.
func (g *Gate) Evaluate(ctx context.Context, asset string, amount *big.Rat, balances BalanceReader) (Verdict, error) {
	if _, ok := g.approved[id.NormalizeAsset(asset)]; !ok {
		return Verdict{Accepted: false, Reason: ReasonNotApproved}, nil
	}
	if amount.Cmp(g.maxAmount) > 0 {
		return Verdict{Accepted: false, Reason: ReasonAmountExceedsLimit}, nil
	}

	balance, err := balances.Balance(ctx, asset)
	if err != nil {
		return Verdict{}, fmt.Errorf("read live balance for %s: %w", asset, err)
	}
	if amount.Cmp(balance) > 0 {
		return Verdict{Accepted: false, Reason: ReasonInsufficientBalance}, nil
	}

	verdict := Verdict{Accepted: true, Reason: ReasonOK}
	if g.warnBalance.Sign() > 0 {
		remaining := new(big.Rat).Sub(balance, amount)
		if remaining.Cmp(g.warnBalance) < 0 {
			verdict.Warnings = append(verdict.Warnings,
				fmt.Sprintf("remaining %s balance %s falls below the warning threshold %s",
					id.NormalizeAsset(asset), remaining.FloatString(6), g.warnBalance.FloatString(6)))
		}
	}
	return verdict, nil
}

// Err converts a rejected verdict into its error form; nil when accepted.
func (v Verdict) Err(asset string) error {
	if v.Accepted {
		return nil
	}
	return &Rejection{Reason: v.Reason, Asset: id.NormalizeAsset(asset)}
}
