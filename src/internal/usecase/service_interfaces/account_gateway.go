package service_interfaces

import (
	"context"

	"github.com/api-sage/ledger-transfer-engine/src/internal/domain"
)

// AccountGateway is the boundary to the bounded context that owns
// account balances. Every operation fails explicitly when the account is
// missing, inactive, or the amount is invalid, so the orchestrator can
// tell retryable infrastructure errors from terminal business errors.
type AccountGateway interface {
	GetAccount(ctx context.Context, accountID string) (domain.AccountSnapshot, error)
	Withdraw(ctx context.Context, accountID string, amount domain.Money) (newBalance int64, err error)
	Deposit(ctx context.Context, accountID string, amount domain.Money) (newBalance int64, err error)
}
