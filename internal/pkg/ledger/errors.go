package ledger

import "errors"

var (
	// ErrInsufficientCredits is returned when a debit would overdraw the account.
	ErrInsufficientCredits = errors.New("ledger: insufficient credits")
	// ErrAccountNotFound is returned when the account does not exist.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrGrantKeyRequired is returned when CreditOnce is called without a key.
	ErrGrantKeyRequired = errors.New("ledger: grant key is required")
)
