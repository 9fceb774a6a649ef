package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the trading core. Callers match them
// with errors.Is after any number of %w wraps.
var (
	ErrDataUnavailable     = errors.New("market data unavailable")
	ErrStaleData           = errors.New("market data stale")
	ErrInsufficientCapital = errors.New("insufficient capital")
	ErrNoSuchPosition      = errors.New("no such position")
	ErrBelowMinNotional    = errors.New("order below minimum notional")
	ErrMaxPositionsReached = errors.New("maximum open positions reached")
	ErrRunActive           = errors.New("run already active")
	ErrRunNotFound         = errors.New("run not found")
	ErrAuthentication      = errors.New("exchange authentication failed")
)

// TransientError marks a failure worth retrying, such as a network
// timeout or an exchange 5xx.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether any error in the chain is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
