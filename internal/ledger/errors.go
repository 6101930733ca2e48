package ledger

import "errors"

// Ledger errors. Both are returned before any state is mutated.
var (
	// ErrInvalidInput is returned when an open request is missing or has inconsistent fields.
	ErrInvalidInput = errors.New("invalid position input")

	// ErrInsufficientBalance is returned when the required margin exceeds free balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)
