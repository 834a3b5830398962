package service_interfaces

import (
	"context"

	"github.com/api-sage/ledger-transfer-engine/src/internal/domain"
)

// TransactionRecorder persists human-readable transaction records and
// links debit/credit pairs. It sits outside the ledger's consistency
// boundary.
type TransactionRecorder interface {
	RecordTransaction(ctx context.Context, record domain.Transaction) (transactionID string, err error)
	LinkRelated(ctx context.Context, transactionIDA string, transactionIDB string) error
}
