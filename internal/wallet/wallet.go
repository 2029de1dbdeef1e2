// Package wallet defines the capability contract every wallet provider
// implements. The pipeline and CLI never branch on provider identity; they
// select a Capability once at connect time and hold it as an opaque handle.
package wallet

import "context"

// ProviderID names a wallet provider. The set is open: a new provider is
// added by implementing Capability and registering it, not by editing
// consumers.
type ProviderID string

// Payload is the chain-specific transaction a provider is asked to sign and
// forward. Providers treat it as opaque beyond what their transport needs.
type Payload struct {
	ChainID int64
	// From is the sending address of the active session. Providers that hold
	// multiple accounts select by it; key-holding providers may ignore it.
	From string
	To   string
	// Value is the native amount in base units, decimal string.
	Value string
	Data  []byte
}

// Capability is the uniform contract over third-party wallet providers.
type Capability interface {
	ID() ProviderID

	// Probe reports whether the provider is present in the host environment.
	// It must be non-blocking, side-effect free, and must not fail.
	Probe() bool

	// Connect requests address access from the provider. It may prompt the
	// user out-of-band. Fails with a ConnectError.
	Connect(ctx context.Context) (string, error)

	// SignAndSubmit requests a signature for the payload and forwards the
	// signed transaction to the network, returning the transaction hash.
	// Fails with a SubmitError.
	SignAndSubmit(ctx context.Context, payload Payload) (string, error)

	// Disconnect is best-effort local teardown. Callers ignore the error.
	Disconnect(ctx context.Context) error
}
