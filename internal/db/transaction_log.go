package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pavelzar/paylink/internal/domain"
)

// TransactionLog implements domain.TransactionLog using PostgreSQL. Records
// are append-only; the primary key on idempotency_key enforces at most one
// record per logical transfer attempt.
type TransactionLog struct {
	pool *pgxpool.Pool
}

// NewTransactionLog creates a new TransactionLog.
func NewTransactionLog(pool *pgxpool.Pool) *TransactionLog {
	return &TransactionLog{pool: pool}
}

const recordColumns = `idempotency_key, from_account, to_account, amount,
	status, failure_reason, resulting_from_balance, resulting_to_balance, ts`

func scanRecord(row pgx.Row) (*domain.TransactionRecord, error) {
	var (
		record domain.TransactionRecord
		status string
	)
	err := row.Scan(
		&record.IdempotencyKey,
		&record.FromAccount,
		&record.ToAccount,
		&record.Amount,
		&status,
		&record.FailureReason,
		&record.ResultingFromBalance,
		&record.ResultingToBalance,
		&record.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	record.Status = domain.RecordStatus(status)
	return &record, nil
}

// Find retrieves the record for an idempotency key, or (nil, nil) when no
// attempt with that key has concluded.
func (l *TransactionLog) Find(ctx context.Context, idempotencyKey string) (*domain.TransactionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM transaction_records WHERE idempotency_key = $1`
	record, err := scanRecord(runner(ctx, l.pool).QueryRow(ctx, query, idempotencyKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("find transaction record", err)
	}
	return record, nil
}

// Append durably persists a record. A duplicate idempotency key maps to
// domain.ErrDuplicateKey so the engine can absorb the race into a replay.
func (l *TransactionLog) Append(ctx context.Context, record *domain.TransactionRecord) error {
	query := `
		INSERT INTO transaction_records (
			idempotency_key, from_account, to_account, amount,
			status, failure_reason, resulting_from_balance, resulting_to_balance, ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := runner(ctx, l.pool).Exec(ctx, query,
		record.IdempotencyKey,
		record.FromAccount,
		record.ToAccount,
		record.Amount,
		string(record.Status),
		record.FailureReason,
		record.ResultingFromBalance,
		record.ResultingToBalance,
		record.Timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateKey
		}
		return storageErr("append transaction record", err)
	}
	return nil
}

// ListByAccount returns records where the account is sender or recipient,
// newest first. The (from_account, ts) and (to_account, ts) indexes serve the
// two sides of the OR.
func (l *TransactionLog) ListByAccount(ctx context.Context, id uuid.UUID, limit int) ([]*domain.TransactionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM transaction_records
		WHERE from_account = $1 OR to_account = $1
		ORDER BY ts DESC
	`
	args := []any{id}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := runner(ctx, l.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list transaction records", err)
	}
	defer rows.Close()

	var out []*domain.TransactionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, storageErr("list transaction records", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list transaction records", err)
	}
	return out, nil
}
