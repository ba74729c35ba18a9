package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned when encryption or decryption is attempted
	// before a shared secret has been derived. This is a sequencing defect
	// in the caller, not a retryable condition.
	ErrNoSession = errors.New("no wallet session established")

	// ErrDecryptionFailed is returned when an inbound payload fails
	// authentication: wrong key, tampered data or a mismatched nonce.
	ErrDecryptionFailed = errors.New("failed to decrypt wallet payload")

	// ErrTimeout is returned when no matching redirect arrives within the
	// roundtrip window.
	ErrTimeout = errors.New("timeout waiting for wallet response")

	// ErrOnChainFailure is returned when the transaction landed but its
	// execution failed.
	ErrOnChainFailure = errors.New("transaction failed on-chain")

	// ErrPaymentInFlight is returned when ExecutePayment is called while a
	// previous attempt is still pending. Callers must serialize attempts.
	ErrPaymentInFlight = errors.New("another payment attempt is in flight")

	// ErrUnsupportedToken is returned for a token missing from the table.
	ErrUnsupportedToken = errors.New("unsupported payment token")
)

// WalletRejectedError carries the error code and message the remote wallet
// returned on a redirect, e.g. a user declining the connect prompt.
type WalletRejectedError struct {
	Stage   string // "connect" or "signAndSendTransaction"
	Code    string
	Message string
}

func (e *WalletRejectedError) Error() string {
	if e.Stage == "connect" {
		return fmt.Sprintf("Phantom connect error: %s - %s", e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("transaction rejected: %s", e.Message)
	}
	return fmt.Sprintf("transaction rejected: %s", e.Code)
}

// TransportError wraps an underlying network failure while talking to the
// chain: blockhash fetch, account lookup or confirmation polling.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
