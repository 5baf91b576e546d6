package domain

import "errors"

var (
	// ErrAccountNotFound is returned when an account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when creating an account whose id or
	// username is already taken.
	ErrAccountExists = errors.New("account already exists")

	// ErrInvalidUsername is returned when creating an account with a blank username.
	ErrInvalidUsername = errors.New("username is required")

	// ErrSelfTransfer is returned when sender and recipient are the same account.
	ErrSelfTransfer = errors.New("sender and recipient must be different accounts")

	// ErrInvalidAmount is returned when the transfer amount is not positive.
	ErrInvalidAmount = errors.New("invalid amount: must be positive")

	// ErrMissingIdempotencyKey is returned when a transfer intent carries no key.
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")

	// ErrInsufficientFunds is returned when the sender doesn't have enough
	// balance. The outcome is recorded, so a retry with the same key replays
	// the same failure without re-checking the current balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateKey is returned by TransactionLog.Append when a record with
	// the same idempotency key already exists. The engine absorbs it into an
	// idempotent replay; callers never see it.
	ErrDuplicateKey = errors.New("transaction record already exists for idempotency key")

	// ErrStorageUnavailable wraps transient storage faults. No partial state
	// is left behind and retrying with the same idempotency key is safe.
	ErrStorageUnavailable = errors.New("ledger storage unavailable")
)
