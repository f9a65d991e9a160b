package game

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFunds is the sentinel wrapped by InsufficientFundsError.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrProfileNotFound is returned by stores when an update targets no row.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrInvalidProfile wraps profile validation failures.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrStopped is returned by manager calls after Run has exited.
	ErrStopped = errors.New("match manager stopped")
)

// InsufficientFundsError names the player whose balance could not cover a debit.
type InsufficientFundsError struct {
	Identity string
	Currency Currency
	Balance  int64
	Required int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient %s for %s: have %d, need %d", e.Currency, e.Identity, e.Balance, e.Required)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// Client-facing reasons carried by matchError and profileError.
const (
	reasonInsufficientFunds = "insufficient funds"
	reasonUnavailable       = "matchmaking unavailable"
	reasonProfileSave       = "could not save profile"
)
