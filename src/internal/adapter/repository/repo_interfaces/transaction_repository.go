package repo_interfaces

import (
	"context"

	"github.com/api-sage/ledger-transfer-engine/src/internal/domain"
)

type TransactionRepository interface {
	RecordTransaction(ctx context.Context, record domain.Transaction) (string, error)
	LinkRelated(ctx context.Context, transactionIDA string, transactionIDB string) error
}
