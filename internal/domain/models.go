package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account holds a user's balance in minor currency units (e.g. cents).
// Balance is never negative; only the ledger engine mutates it.
type Account struct {
	ID          uuid.UUID // Unique, immutable identifier of the account
	Username    string    // Login name, unique across accounts
	DisplayName string    // Human-readable name shown in the recipient picker
	Balance     int64     // Current balance in minor units, >= 0
	CreatedAt   time.Time // Timestamp when the account was created
	UpdatedAt   time.Time // Timestamp of the last balance change
}

// TransferIntent describes one logical transfer attempt. It is not persisted;
// the outcome is persisted as a TransactionRecord keyed by IdempotencyKey.
type TransferIntent struct {
	FromAccount    uuid.UUID // Account to debit
	ToAccount      uuid.UUID // Account to credit, must differ from FromAccount
	Amount         int64     // Amount in minor units, must be positive
	IdempotencyKey string    // Caller-chosen token identifying this logical attempt
}

// RecordStatus represents the terminal outcome of a transfer attempt.
type RecordStatus string

const (
	// RecordStatusCompleted indicates the debit and credit were both applied.
	RecordStatusCompleted RecordStatus = "COMPLETED"

	// RecordStatusFailed indicates the attempt was refused by a business rule.
	RecordStatusFailed RecordStatus = "FAILED"
)

// Failure reasons stored on failed TransactionRecords.
const (
	ReasonInsufficientFunds = "INSUFFICIENT_FUNDS"
)

// TransactionRecord is the append-only outcome of a transfer attempt.
// At most one record ever exists per idempotency key; it is the single source
// of truth for "did this transfer already happen" and is never mutated.
type TransactionRecord struct {
	IdempotencyKey       string       // Unique key of the logical transfer attempt
	FromAccount          uuid.UUID    // Debited account
	ToAccount            uuid.UUID    // Credited account
	Amount               int64        // Amount in minor units
	Status               RecordStatus // COMPLETED or FAILED
	FailureReason        string       // Set when Status is FAILED
	ResultingFromBalance int64        // Sender balance after the attempt concluded
	ResultingToBalance   int64        // Recipient balance after the attempt concluded
	Timestamp            time.Time    // When the attempt concluded
}

// NewAccount creates an Account with a fresh id and a zero balance.
func NewAccount(username, displayName string) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:          uuid.New(),
		Username:    username,
		DisplayName: displayName,
		Balance:     0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Completed reports whether the record describes an applied transfer.
func (r *TransactionRecord) Completed() bool {
	return r.Status == RecordStatusCompleted
}
