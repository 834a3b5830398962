package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/api-sage/ledger-transfer-engine/src/internal/domain"
	"github.com/api-sage/ledger-transfer-engine/src/internal/logger"
)

// AccountGateway is the storage-backed implementation of the account
// balance boundary. Balance consistency is owned here, not by the
// transfer core: debits and credits are single guarded UPDATE statements.
type AccountGateway struct {
	db *sql.DB
}

func NewAccountGateway(db *sql.DB) *AccountGateway {
	return &AccountGateway{db: db}
}

func (g *AccountGateway) GetAccount(ctx context.Context, accountID string) (domain.AccountSnapshot, error) {
	const query = `
SELECT id, customer_id, currency, balance, status
FROM accounts
WHERE id = $1`

	var snapshot domain.AccountSnapshot
	if err := g.db.QueryRowContext(ctx, query, accountID).Scan(
		&snapshot.AccountID,
		&snapshot.CustomerID,
		&snapshot.Currency,
		&snapshot.Balance,
		&snapshot.Status,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AccountSnapshot{}, domain.ErrRecordNotFound
		}
		return domain.AccountSnapshot{}, fmt.Errorf("query account %s: %w", accountID, err)
	}

	return snapshot, nil
}

func (g *AccountGateway) Withdraw(ctx context.Context, accountID string, amount domain.Money) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("withdraw amount must be positive")
	}

	const query = `
UPDATE accounts
SET balance = balance - $2, updated_at = NOW()
WHERE id = $1 AND status = $3 AND balance >= $2
RETURNING balance`

	var newBalance int64
	err := g.db.QueryRowContext(ctx, query, accountID, amount.Amount, domain.AccountStatusActive).Scan(&newBalance)
	if err == nil {
		logger.Info("account gateway withdraw", logger.Fields{
			"accountId": accountID,
			"amount":    amount.String(),
		})
		return newBalance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("withdraw from account %s: %w", accountID, err)
	}

	return 0, g.explainRejection(ctx, accountID, amount)
}

func (g *AccountGateway) Deposit(ctx context.Context, accountID string, amount domain.Money) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("deposit amount must be positive")
	}

	const query = `
UPDATE accounts
SET balance = balance + $2, updated_at = NOW()
WHERE id = $1 AND status = $3
RETURNING balance`

	var newBalance int64
	err := g.db.QueryRowContext(ctx, query, accountID, amount.Amount, domain.AccountStatusActive).Scan(&newBalance)
	if err == nil {
		logger.Info("account gateway deposit", logger.Fields{
			"accountId": accountID,
			"amount":    amount.String(),
		})
		return newBalance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("deposit to account %s: %w", accountID, err)
	}

	snapshot, lookupErr := g.GetAccount(ctx, accountID)
	if lookupErr != nil {
		return 0, lookupErr
	}
	return 0, fmt.Errorf("%w: account %s is %s", domain.ErrAccountNotTransactable, accountID, snapshot.Status)
}

// explainRejection names the reason a guarded withdraw matched no row so
// the orchestrator can tell business failures from infrastructure ones.
func (g *AccountGateway) explainRejection(ctx context.Context, accountID string, amount domain.Money) error {
	snapshot, err := g.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !snapshot.Transactable() {
		return fmt.Errorf("%w: account %s is %s", domain.ErrAccountNotTransactable, accountID, snapshot.Status)
	}
	if snapshot.Balance < amount.Amount {
		return domain.ErrInsufficientBalance
	}
	return fmt.Errorf("withdraw from account %s rejected", accountID)
}
