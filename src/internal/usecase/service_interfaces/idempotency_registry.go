package service_interfaces

import (
	"context"
	"time"

	"github.com/api-sage/ledger-transfer-engine/src/internal/domain"
)

// IdempotencyRegistry guarantees at most one transfer per
// (source account, idempotency key). InitializeTransfer returns the
// existing transfer untouched when the key has been seen before.
type IdempotencyRegistry interface {
	InitializeTransfer(
		ctx context.Context,
		idempotencyKey string,
		sourceAccountID string,
		targetAccountID string,
		amount domain.Money,
		valueDate time.Time,
		transferType domain.TransferType,
	) (transfer *domain.Transfer, created bool, err error)
}
