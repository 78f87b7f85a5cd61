package broker

import (
	"errors"
	"fmt"
)

// Failure classes consumed by the trading loop. The loop matches these with
// errors.Is and degrades per class: skip the symbol, fall back to the
// technical-only path, or log and carry on.
var (
	// ErrDataUnavailable means the venue could not serve history for the
	// symbol this cycle (market closed, invalid symbol, feed outage).
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrInsufficientHistory means fewer bars than the indicator warm-up
	// window were returned.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrOrderRejected, ErrModifyRejected and ErrCloseRejected carry the venue
	// reason code. None of them is retried automatically: retrying blind order
	// placement risks duplicate trades.
	ErrOrderRejected  = errors.New("order rejected")
	ErrModifyRejected = errors.New("modify rejected")
	ErrCloseRejected  = errors.New("close rejected")

	// ErrConnectivity marks transport-level failures eligible for retry.
	ErrConnectivity = errors.New("broker connectivity failure")
)

// RejectionError wraps a rejection sentinel with the venue's reason code.
type RejectionError struct {
	Kind   error // one of ErrOrderRejected, ErrModifyRejected, ErrCloseRejected
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
}

func (e *RejectionError) Unwrap() error { return e.Kind }

// NewRejection builds a RejectionError for the given sentinel.
func NewRejection(kind error, reason string) error {
	return &RejectionError{Kind: kind, Reason: reason}
}
