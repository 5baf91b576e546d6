package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransferObserver receives transfer outcome notifications (e.g. metrics).
type TransferObserver interface {
	TransferCompleted()
	TransferReplayed()
	TransferFailed(reason string)
}

// LedgerEngine orchestrates transfers: it validates the intent, acquires
// exclusive access to both accounts in a fixed global order, applies the
// debit/credit pair, and records the outcome. It is the sole writer of both
// the AccountStore and the TransactionLog.
type LedgerEngine struct {
	accounts  AccountStore
	log       TransactionLog
	tx        TxManager
	publisher EventPublisher
	observer  TransferObserver
	logger    *zap.Logger
}

// NewLedgerEngine creates a LedgerEngine. Publisher and observer may be nil;
// a nil logger is replaced with a no-op logger.
func NewLedgerEngine(
	accounts AccountStore,
	log TransactionLog,
	tx TxManager,
	publisher EventPublisher,
	observer TransferObserver,
	logger *zap.Logger,
) *LedgerEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerEngine{
		accounts:  accounts,
		log:       log,
		tx:        tx,
		publisher: publisher,
		observer:  observer,
		logger:    logger,
	}
}

// Transfer executes a transfer intent and returns its TransactionRecord.
//
// The operation is idempotent: a retry with the same idempotency key returns
// the stored outcome of the original attempt verbatim, completed or failed,
// without touching any balance again. Validation failures on never-recorded
// intents (self-transfer, non-positive amount, unknown account) produce no
// record at all.
//
// Execution locks both accounts in canonical id order inside one storage
// transaction, re-checks funds under the held locks, and makes the debit, the
// credit, and the record append visible together or not at all. Storage
// faults surface as ErrStorageUnavailable with no partial state.
//
// A failed outcome is returned as the record plus its matching error, so
// callers can distinguish a fresh or replayed failure from a completed
// transfer without inspecting the record status themselves.
func (e *LedgerEngine) Transfer(ctx context.Context, intent TransferIntent) (*TransactionRecord, error) {
	if intent.FromAccount == intent.ToAccount {
		return nil, ErrSelfTransfer
	}
	if intent.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(intent.IdempotencyKey) == "" {
		return nil, ErrMissingIdempotencyKey
	}

	// Fail fast when either account is unknown. This happens before the
	// replay check is even reachable for a fresh key, and a target that was
	// never validated as existing yields no log entry at all.
	if _, err := e.accounts.Get(ctx, intent.FromAccount); err != nil {
		return nil, err
	}
	if _, err := e.accounts.Get(ctx, intent.ToAccount); err != nil {
		return nil, err
	}

	// Idempotent replay outside any lock: the common retry case should not
	// contend with live transfers.
	prior, err := e.log.Find(ctx, intent.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return e.replay(prior)
	}

	var (
		record   *TransactionRecord
		replayed bool
	)
	err = e.tx.WithTransaction(ctx, func(ctx context.Context) error {
		first, second := lockOrder(intent.FromAccount, intent.ToAccount)
		if _, err := e.accounts.Lock(ctx, first); err != nil {
			return fmt.Errorf("lock %s: %w", first, err)
		}
		if _, err := e.accounts.Lock(ctx, second); err != nil {
			return fmt.Errorf("lock %s: %w", second, err)
		}

		// Re-check the key under the held locks. A concurrent attempt with
		// the same key serializes on the same account locks, so exactly one
		// of them appends; the other observes the record here.
		stored, err := e.log.Find(ctx, intent.IdempotencyKey)
		if err != nil {
			return err
		}
		if stored != nil {
			record, replayed = stored, true
			return nil
		}

		from, err := e.accounts.Get(ctx, intent.FromAccount)
		if err != nil {
			return err
		}
		to, err := e.accounts.Get(ctx, intent.ToAccount)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if from.Balance < intent.Amount {
			record = &TransactionRecord{
				IdempotencyKey:       intent.IdempotencyKey,
				FromAccount:          intent.FromAccount,
				ToAccount:            intent.ToAccount,
				Amount:               intent.Amount,
				Status:               RecordStatusFailed,
				FailureReason:        ReasonInsufficientFunds,
				ResultingFromBalance: from.Balance,
				ResultingToBalance:   to.Balance,
				Timestamp:            now,
			}
			// The failed record commits; balances stay untouched.
			return e.log.Append(ctx, record)
		}

		newFrom, err := e.accounts.ApplyDelta(ctx, intent.FromAccount, -intent.Amount)
		if err != nil {
			return err
		}
		newTo, err := e.accounts.ApplyDelta(ctx, intent.ToAccount, intent.Amount)
		if err != nil {
			return err
		}

		record = &TransactionRecord{
			IdempotencyKey:       intent.IdempotencyKey,
			FromAccount:          intent.FromAccount,
			ToAccount:            intent.ToAccount,
			Amount:               intent.Amount,
			Status:               RecordStatusCompleted,
			ResultingFromBalance: newFrom,
			ResultingToBalance:   newTo,
			Timestamp:            now,
		}
		return e.log.Append(ctx, record)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			// Lost an append race with a same-key attempt on a different
			// account pair, which shares no locks with this one. The stored
			// record is the single source of truth.
			if stored, ferr := e.log.Find(ctx, intent.IdempotencyKey); ferr == nil && stored != nil {
				return e.replay(stored)
			}
		}
		return nil, err
	}

	if replayed {
		return e.replay(record)
	}

	if record.Status == RecordStatusFailed {
		if e.observer != nil {
			e.observer.TransferFailed(record.FailureReason)
		}
		return record, failureError(record)
	}

	if e.observer != nil {
		e.observer.TransferCompleted()
	}
	e.logger.Info("transfer completed",
		zap.String("idempotency_key", record.IdempotencyKey),
		zap.String("from", record.FromAccount.String()),
		zap.String("to", record.ToAccount.String()),
		zap.Int64("amount", record.Amount),
	)

	// Best-effort event publish after commit. A transient broker failure must
	// not make the already-committed transfer appear to fail.
	if e.publisher != nil {
		go func(rec TransactionRecord) {
			if err := e.publisher.PublishTransferCompleted(context.Background(), &rec); err != nil {
				e.logger.Warn("failed to publish transfer completed event",
					zap.String("idempotency_key", rec.IdempotencyKey),
					zap.Error(err),
				)
			}
		}(*record)
	}

	return record, nil
}

// CreateAccount creates an account with a zero balance. Used once at signup.
func (e *LedgerEngine) CreateAccount(ctx context.Context, username, displayName string) (*Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalidUsername
	}
	account := NewAccount(username, displayName)
	if err := e.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccount retrieves an account snapshot by id.
func (e *LedgerEngine) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return e.accounts.Get(ctx, id)
}

// GetAccountByUsername retrieves an account snapshot by username.
func (e *LedgerEngine) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	return e.accounts.GetByUsername(ctx, username)
}

// GetBalance retrieves the current committed balance of an account.
func (e *LedgerEngine) GetBalance(ctx context.Context, id uuid.UUID) (int64, error) {
	account, err := e.accounts.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// ListAccounts returns accounts matching filter, for the recipient picker.
func (e *LedgerEngine) ListAccounts(ctx context.Context, filter string) ([]*Account, error) {
	return e.accounts.List(ctx, filter)
}

// History returns the transfer records involving the account, newest first.
func (e *LedgerEngine) History(ctx context.Context, id uuid.UUID, limit int) ([]*TransactionRecord, error) {
	if _, err := e.accounts.Get(ctx, id); err != nil {
		return nil, err
	}
	return e.log.ListByAccount(ctx, id, limit)
}

// replay returns a stored record verbatim: the caller receives exactly what
// the original attempt returned, including its failure.
func (e *LedgerEngine) replay(record *TransactionRecord) (*TransactionRecord, error) {
	if e.observer != nil {
		e.observer.TransferReplayed()
	}
	if record.Status == RecordStatusFailed {
		return record, failureError(record)
	}
	return record, nil
}

// failureError maps a failed record back to its sentinel error.
func failureError(record *TransactionRecord) error {
	switch record.FailureReason {
	case ReasonInsufficientFunds:
		return ErrInsufficientFunds
	default:
		return fmt.Errorf("transfer failed: %s", record.FailureReason)
	}
}

// lockOrder returns the two account ids in the fixed global locking order
// (lexicographic by id), preventing deadlock between two transfers moving
// funds in opposite directions between the same pair of accounts.
func lockOrder(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() < b.String() {
		return a, b
	}
	return b, a
}
