package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
	Command   string      `json:"command"`
	Cache     CacheStatus `json:"cache"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

// SessionView is the user-facing session state for `status` and `connect`.
type SessionView struct {
	Connected     bool      `json:"connected"`
	Provider      string    `json:"provider,omitempty"`
	Address       string    `json:"address,omitempty"`
	CachedBalance string    `json:"cached_balance,omitempty"`
	ConnectedAt   time.Time `json:"connected_at,omitzero"`
}

// BalanceView reports a live balance read.
type BalanceView struct {
	Asset   string `json:"asset"`
	Balance string `json:"balance"`
	Address string `json:"address"`
}

// ExecutionView is the rendered form of a pipeline execution record.
type ExecutionView struct {
	ID         string    `json:"id"`
	Asset      string    `json:"asset"`
	Amount     string    `json:"amount"`
	Recipient  string    `json:"recipient"`
	State      string    `json:"state"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	ResultHash string    `json:"result_hash,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Opportunity is a candidate action from the opportunity feed.
type Opportunity struct {
	ID              string  `json:"id"`
	Kind            string  `json:"kind"`
	Asset           string  `json:"asset"`
	Protocol        string  `json:"protocol,omitempty"`
	APY             float64 `json:"apy,omitempty"`
	SuggestedAmount string  `json:"suggested_amount"`
	Recipient       string  `json:"recipient"`
	Description     string  `json:"description,omitempty"`
}

// ProviderView lists a wallet provider and its probe state.
type ProviderView struct {
	ID        string `json:"id"`
	Available bool   `json:"available"`
}
