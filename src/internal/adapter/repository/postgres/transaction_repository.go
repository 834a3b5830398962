package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/api-sage/ledger-transfer-engine/src/internal/domain"
	"github.com/api-sage/ledger-transfer-engine/src/internal/logger"
)

// TransactionRepository persists the human-readable transaction records
// produced for each posted leg and for compensating reversals.
type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) RecordTransaction(ctx context.Context, record domain.Transaction) (string, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	const query = `
INSERT INTO transactions (
	id, account_id, type, direction, currency, amount, balance_after,
	value_date, description, posted_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`

	var transactionID string
	if err := r.db.QueryRowContext(
		ctx,
		query,
		record.ID,
		record.AccountID,
		record.Type,
		record.Direction,
		record.Amount.Currency,
		record.Amount.Amount,
		record.BalanceAfter,
		record.ValueDate,
		record.Description,
		record.PostedAt,
	).Scan(&transactionID); err != nil {
		logger.Error("transaction repository record failed", err, logger.Fields{
			"accountId": record.AccountID,
			"type":      record.Type,
			"direction": record.Direction,
		})
		return "", fmt.Errorf("record transaction: %w", err)
	}

	return transactionID, nil
}

// LinkRelated points the debit and credit records at each other so either
// side of a settled transfer can be traced to its counterpart.
func (r *TransactionRepository) LinkRelated(ctx context.Context, transactionIDA string, transactionIDB string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin link transactions tx: %w", err)
	}

	const query = `
UPDATE transactions SET related_transaction_id = $2 WHERE id = $1`

	if _, err := tx.ExecContext(ctx, query, transactionIDA, transactionIDB); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("link transaction %s: %w", transactionIDA, err)
	}
	if _, err := tx.ExecContext(ctx, query, transactionIDB, transactionIDA); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("link transaction %s: %w", transactionIDB, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit link transactions: %w", err)
	}

	return nil
}
