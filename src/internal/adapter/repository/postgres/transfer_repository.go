package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/api-sage/ledger-transfer-engine/src/internal/domain"
	"github.com/api-sage/ledger-transfer-engine/src/internal/logger"
)

type TransferRepository struct {
	db *sql.DB
}

func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

const transferColumns = `
id, type, status, idempotency_key, source_account_id, target_account_id,
currency, amount, value_date, failure_reason, version, created_at,
updated_at, completed_at`

const entryColumns = `
id, transfer_id, account_id, direction, currency, amount, status,
value_date, posted_at, transaction_id, idempotency_key, created_at,
updated_at`

// Create persists the transfer and both ledger entries in one
// transaction. The unique constraint on (source_account_id,
// idempotency_key) surfaces as a pq 23505 error for concurrent callers.
func (r *TransferRepository) Create(ctx context.Context, transfer *domain.Transfer) (*domain.Transfer, error) {
	logger.Info("transfer repository create", logger.Fields{
		"transferId":      transfer.ID,
		"idempotencyKey":  transfer.IdempotencyKey,
		"sourceAccountId": transfer.SourceAccountID,
		"targetAccountId": transfer.TargetAccountID,
		"status":          transfer.Status,
	})

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create transfer tx: %w", err)
	}

	const insertTransfer = `
INSERT INTO transfers (
	id, type, status, idempotency_key, source_account_id,
	target_account_id, currency, amount, value_date, version
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING created_at, updated_at`

	if err := tx.QueryRowContext(
		ctx,
		insertTransfer,
		transfer.ID,
		transfer.Type,
		transfer.Status,
		transfer.IdempotencyKey,
		transfer.SourceAccountID,
		transfer.TargetAccountID,
		transfer.Amount.Currency,
		transfer.Amount.Amount,
		transfer.ValueDate,
		transfer.Version,
	).Scan(&transfer.CreatedAt, &transfer.UpdatedAt); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("insert transfer: %w", err)
	}

	const insertEntry = `
INSERT INTO ledger_entries (
	id, transfer_id, account_id, direction, currency, amount, status,
	value_date, idempotency_key
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at, updated_at`

	for i := range transfer.Entries {
		entry := &transfer.Entries[i]
		if err := tx.QueryRowContext(
			ctx,
			insertEntry,
			entry.ID,
			entry.TransferID,
			entry.AccountID,
			entry.Direction,
			entry.Amount.Currency,
			entry.Amount.Amount,
			entry.Status,
			entry.ValueDate,
			entry.IdempotencyKey,
		).Scan(&entry.CreatedAt, &entry.UpdatedAt); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("insert %s ledger entry: %w", entry.Direction, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create transfer: %w", err)
	}

	return transfer, nil
}

func (r *TransferRepository) GetByIdempotencyKey(ctx context.Context, sourceAccountID string, idempotencyKey string) (*domain.Transfer, error) {
	const query = `
SELECT ` + transferColumns + `
FROM transfers
WHERE source_account_id = $1 AND idempotency_key = $2`

	transfer, err := scanTransfer(r.db.QueryRowContext(ctx, query, sourceAccountID, idempotencyKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("query transfer by idempotency key: %w", err)
	}

	entries, err := r.entriesForTransfer(ctx, transfer.ID)
	if err != nil {
		return nil, err
	}

	return domain.RestoreTransfer(transfer, entries)
}

// ClaimRequested bumps the row version while the transfer is still in
// its initial state. Losing callers observe zero rows updated.
func (r *TransferRepository) ClaimRequested(ctx context.Context, transferID uuid.UUID, version int64) (int64, error) {
	const query = `
UPDATE transfers
SET version = version + 1, updated_at = NOW()
WHERE id = $1 AND version = $2 AND status = $3
RETURNING version`

	var newVersion int64
	if err := r.db.QueryRowContext(ctx, query, transferID, version, domain.TransferStatusRequested).Scan(&newVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrTransferInProgress
		}
		return 0, fmt.Errorf("claim transfer %s: %w", transferID, err)
	}

	return newVersion, nil
}

// Update writes transfer status and entry states under an optimistic
// version check.
func (r *TransferRepository) Update(ctx context.Context, transfer *domain.Transfer) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update transfer tx: %w", err)
	}

	const updateTransfer = `
UPDATE transfers
SET status = $3,
    failure_reason = $4,
    completed_at = $5,
    version = version + 1,
    updated_at = NOW()
WHERE id = $1 AND version = $2
RETURNING version, updated_at`

	if err := tx.QueryRowContext(
		ctx,
		updateTransfer,
		transfer.ID,
		transfer.Version,
		transfer.Status,
		transfer.FailureReason,
		transfer.CompletedAt,
	).Scan(&transfer.Version, &transfer.UpdatedAt); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			logger.Info("transfer repository update version conflict", logger.Fields{
				"transferId": transfer.ID,
				"version":    transfer.Version,
			})
			return domain.ErrTransferConflict
		}
		return fmt.Errorf("update transfer %s: %w", transfer.ID, err)
	}

	const updateEntry = `
UPDATE ledger_entries
SET status = $2, posted_at = $3, transaction_id = $4, updated_at = NOW()
WHERE id = $1`

	for i := range transfer.Entries {
		entry := &transfer.Entries[i]
		if _, err := tx.ExecContext(
			ctx,
			updateEntry,
			entry.ID,
			entry.Status,
			entry.PostedAt,
			entry.TransactionID,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("update %s ledger entry: %w", entry.Direction, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update transfer: %w", err)
	}

	return nil
}

func (r *TransferRepository) ListInFlight(ctx context.Context, updatedBefore time.Time) ([]*domain.Transfer, error) {
	const query = `
SELECT ` + transferColumns + `
FROM transfers
WHERE status IN ($1, $2, $3) AND updated_at < $4
ORDER BY updated_at`

	rows, err := r.db.QueryContext(
		ctx,
		query,
		domain.TransferStatusRequested,
		domain.TransferStatusDebitPosted,
		domain.TransferStatusCreditPosted,
		updatedBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("query in-flight transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*domain.Transfer
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan in-flight transfer: %w", err)
		}
		transfers = append(transfers, &transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate in-flight transfers: %w", err)
	}

	restored := make([]*domain.Transfer, 0, len(transfers))
	for _, transfer := range transfers {
		entries, err := r.entriesForTransfer(ctx, transfer.ID)
		if err != nil {
			return nil, err
		}
		full, err := domain.RestoreTransfer(*transfer, entries)
		if err != nil {
			return nil, err
		}
		restored = append(restored, full)
	}

	return restored, nil
}

func (r *TransferRepository) entriesForTransfer(ctx context.Context, transferID uuid.UUID) ([]domain.LedgerEntry, error) {
	const query = `
SELECT ` + entryColumns + `
FROM ledger_entries
WHERE transfer_id = $1
ORDER BY direction`

	rows, err := r.db.QueryContext(ctx, query, transferID)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries for transfer %s: %w", transferID, err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			entry         domain.LedgerEntry
			currency      string
			amount        int64
			postedAt      sql.NullTime
			transactionID sql.NullString
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.TransferID,
			&entry.AccountID,
			&entry.Direction,
			&currency,
			&amount,
			&entry.Status,
			&entry.ValueDate,
			&postedAt,
			&transactionID,
			&entry.IdempotencyKey,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}

		money, err := domain.NewMoney(amount, currency)
		if err != nil {
			return nil, fmt.Errorf("restore ledger entry amount: %w", err)
		}
		entry.Amount = money
		if postedAt.Valid {
			value := postedAt.Time
			entry.PostedAt = &value
		}
		if transactionID.Valid {
			value := transactionID.String
			entry.TransactionID = &value
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}

	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (domain.Transfer, error) {
	var (
		transfer      domain.Transfer
		currency      string
		amount        int64
		failureReason sql.NullString
		completedAt   sql.NullTime
	)
	if err := row.Scan(
		&transfer.ID,
		&transfer.Type,
		&transfer.Status,
		&transfer.IdempotencyKey,
		&transfer.SourceAccountID,
		&transfer.TargetAccountID,
		&currency,
		&amount,
		&transfer.ValueDate,
		&failureReason,
		&transfer.Version,
		&transfer.CreatedAt,
		&transfer.UpdatedAt,
		&completedAt,
	); err != nil {
		return domain.Transfer{}, err
	}

	money, err := domain.NewMoney(amount, currency)
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("restore transfer amount: %w", err)
	}
	transfer.Amount = money
	if failureReason.Valid {
		value := failureReason.String
		transfer.FailureReason = &value
	}
	if completedAt.Valid {
		value := completedAt.Time
		transfer.CompletedAt = &value
	}

	return transfer, nil
}
