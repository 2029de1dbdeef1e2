package wallet

import (
	"errors"
	"fmt"
)

// ConnectErrorKind classifies connect failures.
type ConnectErrorKind string

const (
	ConnectUnavailable ConnectErrorKind = "unavailable"
	ConnectRejected    ConnectErrorKind = "rejected"
)

type ConnectError struct {
	Provider ProviderID
	Kind     ConnectErrorKind
	Cause    error
}

func (e *ConnectError) Error() string {
	switch e.Kind {
	case ConnectUnavailable:
		return fmt.Sprintf("wallet provider %s is not available", e.Provider)
	case ConnectRejected:
		return fmt.Sprintf("wallet provider %s rejected the connection request", e.Provider)
	}
	return fmt.Sprintf("wallet provider %s connect failed", e.Provider)
}

func (e *ConnectError) Unwrap() error { return e.Cause }

func NewConnectError(provider ProviderID, kind ConnectErrorKind, cause error) *ConnectError {
	return &ConnectError{Provider: provider, Kind: kind, Cause: cause}
}

// AsConnectError unwraps err into a ConnectError if one is present.
func AsConnectError(err error) (*ConnectError, bool) {
	var target *ConnectError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// SubmitErrorKind classifies sign-and-submit failures.
type SubmitErrorKind string

const (
	SubmitUserRejected SubmitErrorKind = "user_rejected"
	SubmitNetworkError SubmitErrorKind = "network_error"
	SubmitTimeout      SubmitErrorKind = "timeout"
	SubmitUnknown      SubmitErrorKind = "unknown"
)

type SubmitError struct {
	Provider ProviderID
	Kind     SubmitErrorKind
	Message  string
	Cause    error
}

func (e *SubmitError) Error() string {
	msg := e.Message
	if msg == "" {
		switch e.Kind {
		case SubmitUserRejected:
			msg = "user rejected the signature request"
		case SubmitNetworkError:
			msg = "network error while submitting transaction"
		case SubmitTimeout:
			msg = "timed out waiting for transaction submission"
		default:
			msg = "transaction submission failed"
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *SubmitError) Unwrap() error { return e.Cause }

func NewSubmitError(provider ProviderID, kind SubmitErrorKind, message string, cause error) *SubmitError {
	return &SubmitError{Provider: provider, Kind: kind, Message: message, Cause: cause}
}

// AsSubmitError unwraps err into a SubmitError if one is present.
func AsSubmitError(err error) (*SubmitError, bool) {
	var target *SubmitError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// NormalizeSubmitError guarantees the pipeline only ever observes the submit
// taxonomy: anything a provider surfaces that is not already classified is
// downgraded to SubmitUnknown with the original message preserved.
func NormalizeSubmitError(provider ProviderID, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsSubmitError(err); ok {
		return err
	}
	return NewSubmitError(provider, SubmitUnknown, err.Error(), err)
}
