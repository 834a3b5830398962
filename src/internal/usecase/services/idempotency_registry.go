package services

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/api-sage/ledger-transfer-engine/src/internal/adapter/repository/repo_interfaces"
	"github.com/api-sage/ledger-transfer-engine/src/internal/domain"
	"github.com/api-sage/ledger-transfer-engine/src/internal/logger"
)

// IdempotencyRegistry maps a caller-supplied idempotency key to at most
// one transfer per source account. Lookup-or-create is atomic with
// respect to concurrent callers: the unique constraint on
// (source account, key) arbitrates, and the loser re-fetches the
// winner's row.
type IdempotencyRegistry struct {
	transferRepo repo_interfaces.TransferRepository
}

func NewIdempotencyRegistry(transferRepo repo_interfaces.TransferRepository) *IdempotencyRegistry {
	return &IdempotencyRegistry{transferRepo: transferRepo}
}

func (r *IdempotencyRegistry) InitializeTransfer(
	ctx context.Context,
	idempotencyKey string,
	sourceAccountID string,
	targetAccountID string,
	amount domain.Money,
	valueDate time.Time,
	transferType domain.TransferType,
) (*domain.Transfer, bool, error) {
	existing, err := r.transferRepo.GetByIdempotencyKey(ctx, sourceAccountID, idempotencyKey)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrRecordNotFound) {
		return nil, false, err
	}

	transfer, err := domain.NewTransfer(
		sourceAccountID,
		targetAccountID,
		amount,
		valueDate,
		transferType,
		idempotencyKey,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, false, err
	}

	created, err := r.transferRepo.Create(ctx, transfer)
	if err == nil {
		logger.Info("idempotency registry created transfer", logger.Fields{
			"transferId":      created.ID,
			"idempotencyKey":  idempotencyKey,
			"sourceAccountId": sourceAccountID,
		})
		return created, true, nil
	}

	if isUniqueViolation(err) {
		// A concurrent caller won the insert; their transfer is the one
		// this key resolves to.
		winner, fetchErr := r.transferRepo.GetByIdempotencyKey(ctx, sourceAccountID, idempotencyKey)
		if fetchErr != nil {
			return nil, false, fetchErr
		}
		return winner, false, nil
	}

	return nil, false, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == "23505"
	}
	return false
}
