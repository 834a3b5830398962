package repo_interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/api-sage/ledger-transfer-engine/src/internal/domain"
)

type TransferRepository interface {
	// Create persists the transfer together with both ledger entries in
	// one transaction. The (source account, idempotency key) pair is
	// protected by a unique constraint.
	Create(ctx context.Context, transfer *domain.Transfer) (*domain.Transfer, error)

	// GetByIdempotencyKey loads the transfer and its entries, restoring
	// the aggregate. Returns domain.ErrRecordNotFound when absent.
	GetByIdempotencyKey(ctx context.Context, sourceAccountID string, idempotencyKey string) (*domain.Transfer, error)

	// ClaimRequested bumps the row version while the transfer is still
	// REQUESTED. Exactly one of any set of concurrent callers holding the
	// same version succeeds; the rest get domain.ErrTransferInProgress.
	ClaimRequested(ctx context.Context, transferID uuid.UUID, version int64) (newVersion int64, err error)

	// Update writes the transfer status, failure reason and entry states
	// under an optimistic version check; domain.ErrTransferConflict is
	// returned when the row moved underneath the caller.
	Update(ctx context.Context, transfer *domain.Transfer) error

	// ListInFlight returns non-terminal transfers last touched before the
	// cutoff, restored with their entries.
	ListInFlight(ctx context.Context, updatedBefore time.Time) ([]*domain.Transfer, error)
}
