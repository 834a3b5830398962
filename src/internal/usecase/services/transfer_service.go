package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/api-sage/ledger-transfer-engine/src/internal/adapter/http/models"
	"github.com/api-sage/ledger-transfer-engine/src/internal/adapter/repository/repo_interfaces"
	"github.com/api-sage/ledger-transfer-engine/src/internal/commons"
	"github.com/api-sage/ledger-transfer-engine/src/internal/domain"
	"github.com/api-sage/ledger-transfer-engine/src/internal/logger"
	"github.com/api-sage/ledger-transfer-engine/src/internal/usecase/service_interfaces"
)

type TransferService struct {
	registry            service_interfaces.IdempotencyRegistry
	transferRepo        repo_interfaces.TransferRepository
	accountGateway      service_interfaces.AccountGateway
	transactionRecorder service_interfaces.TransactionRecorder
	maxValueDatePast    time.Duration
	maxValueDateFuture  time.Duration
}

func NewTransferService(
	registry service_interfaces.IdempotencyRegistry,
	transferRepo repo_interfaces.TransferRepository,
	accountGateway service_interfaces.AccountGateway,
	transactionRecorder service_interfaces.TransactionRecorder,
	maxValueDatePast time.Duration,
	maxValueDateFuture time.Duration,
) *TransferService {
	return &TransferService{
		registry:            registry,
		transferRepo:        transferRepo,
		accountGateway:      accountGateway,
		transactionRecorder: transactionRecorder,
		maxValueDatePast:    maxValueDatePast,
		maxValueDateFuture:  maxValueDateFuture,
	}
}

// Transfer drives the full transfer protocol: initialize through the
// idempotency registry, validate preconditions against account
// snapshots, debit then credit through the account gateway, advance the
// ledger after each successful external call, and settle. A failure
// after the debit posted triggers compensation before the transfer is
// failed; the original error is re-raised to the caller.
func (s *TransferService) Transfer(ctx context.Context, req models.TransferRequest) (commons.Response[models.TransferResponse], error) {
	logger.Info("transfer service request", logger.Fields{
		"payload": logger.SanitizePayload(req),
	})

	if err := req.Validate(); err != nil {
		logger.Error("transfer service validation failed", err, nil)
		return commons.ErrorResponse[models.TransferResponse]("validation failed", err.Error()), err
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey == "" {
		err := domain.ErrMissingIdempotencyKey
		return commons.ErrorResponse[models.TransferResponse]("validation failed", err.Error()), err
	}

	amount, err := domain.MoneyFromDecimal(req.Amount, req.Currency)
	if err != nil {
		return commons.ErrorResponse[models.TransferResponse]("validation failed", err.Error()), err
	}
	if !amount.IsPositive() {
		err := fmt.Errorf("amount must be greater than zero")
		return commons.ErrorResponse[models.TransferResponse]("validation failed", err.Error()), err
	}

	valueDate, err := time.Parse(models.ValueDateLayout, strings.TrimSpace(req.ValueDate))
	if err != nil {
		err := fmt.Errorf("valueDate must be formatted as %s", models.ValueDateLayout)
		return commons.ErrorResponse[models.TransferResponse]("validation failed", err.Error()), err
	}
	if err := s.checkValueDateWindow(valueDate); err != nil {
		return commons.ErrorResponse[models.TransferResponse]("validation failed", err.Error()), err
	}

	sourceAccountID := strings.TrimSpace(req.SourceAccountID)
	targetAccountID := strings.TrimSpace(req.TargetAccountID)

	transfer, created, err := s.registry.InitializeTransfer(
		ctx,
		idempotencyKey,
		sourceAccountID,
		targetAccountID,
		amount,
		valueDate,
		domain.TransferTypeInternal,
	)
	if err != nil {
		logger.Error("transfer service initialize failed", err, logger.Fields{
			"sourceAccountId": sourceAccountID,
		})
		return commons.ErrorResponse[models.TransferResponse]("failed to process transfer", "Unable to process transfer right now"), err
	}

	if !created {
		if transfer.Status.IsTerminal() {
			err := fmt.Errorf("%w: key already resolved to a %s transfer", domain.ErrDuplicateRequest, transfer.Status)
			response := models.TransferResponseFromSnapshot(transfer.Snapshot())
			resp := commons.ErrorResponse[models.TransferResponse]("duplicate request", err.Error())
			resp.Data = &response
			return resp, err
		}
		if transfer.Status != domain.TransferStatusRequested {
			err := fmt.Errorf("%w: transfer is %s", domain.ErrTransferInProgress, transfer.Status)
			return commons.ErrorResponse[models.TransferResponse]("transfer in progress", err.Error()), err
		}
		// A retry of a still-REQUESTED key must carry the same transfer
		// details; the stored aggregate is authoritative for what moves.
		if err := retryMatchesTransfer(transfer, targetAccountID, amount, valueDate); err != nil {
			logger.Error("transfer service idempotency key conflict", err, logger.Fields{
				"transferId":     transfer.ID,
				"idempotencyKey": idempotencyKey,
			})
			return commons.ErrorResponse[models.TransferResponse]("idempotency key conflict", err.Error()), err
		}
	}

	// Claim the REQUESTED row so a concurrent retry with the same key
	// cannot also proceed past this point.
	newVersion, err := s.transferRepo.ClaimRequested(ctx, transfer.ID, transfer.Version)
	if err != nil {
		if errors.Is(err, domain.ErrTransferInProgress) {
			return commons.ErrorResponse[models.TransferResponse]("transfer in progress", err.Error()), err
		}
		logger.Error("transfer service claim failed", err, logger.Fields{
			"transferId": transfer.ID,
		})
		return commons.ErrorResponse[models.TransferResponse]("failed to process transfer", "Unable to process transfer right now"), err
	}
	transfer.Version = newVersion

	source, target, err := s.fetchSnapshots(ctx, transfer.SourceAccountID, transfer.TargetAccountID)
	if err != nil {
		return s.respondGatewayError(err)
	}

	if err := s.checkPreconditions(transfer, source, target); err != nil {
		// Precondition failures reject the request before any side
		// effect; the transfer stays REQUESTED and a later retry with
		// the same key may proceed.
		logger.Error("transfer service preconditions failed", err, logger.Fields{
			"transferId": transfer.ID,
		})
		return s.respondGatewayError(err)
	}

	memo := strings.TrimSpace(req.Memo)

	// Debit leg. The ledger only advances after the gateway call has
	// durably succeeded. From here on amounts and account ids come from
	// the aggregate, never from the request.
	debitBalance, err := s.accountGateway.Withdraw(ctx, transfer.SourceAccountID, transfer.Amount)
	if err != nil {
		s.failTransfer(ctx, transfer, fmt.Sprintf("debit failed: %s", err.Error()))
		return s.respondGatewayError(err)
	}

	debitedAt := time.Now().UTC()
	debitTransactionID, err := s.transactionRecorder.RecordTransaction(ctx, domain.Transaction{
		AccountID:    transfer.SourceAccountID,
		Type:         domain.TransactionTypeTransfer,
		Direction:    domain.EntryDirectionDebit,
		Amount:       transfer.Amount,
		BalanceAfter: debitBalance,
		ValueDate:    transfer.ValueDate,
		Description:  transferDescription(memo, transfer.TargetAccountID),
		PostedAt:     debitedAt,
	})
	if err != nil {
		return s.failWithCompensation(ctx, transfer, fmt.Errorf("record debit transaction: %w", err))
	}

	if err := transfer.MarkEntryPosted(domain.EntryDirectionDebit, debitTransactionID, debitedAt); err != nil {
		return s.failWithCompensation(ctx, transfer, err)
	}
	if err := s.transferRepo.Update(ctx, transfer); err != nil {
		return s.failWithCompensation(ctx, transfer, fmt.Errorf("persist debit posting: %w", err))
	}

	// Credit leg.
	creditBalance, err := s.accountGateway.Deposit(ctx, transfer.TargetAccountID, transfer.Amount)
	if err != nil {
		return s.failWithCompensation(ctx, transfer, fmt.Errorf("credit failed: %w", err))
	}

	creditedAt := time.Now().UTC()
	creditTransactionID, err := s.transactionRecorder.RecordTransaction(ctx, domain.Transaction{
		AccountID:    transfer.TargetAccountID,
		Type:         domain.TransactionTypeTransfer,
		Direction:    domain.EntryDirectionCredit,
		Amount:       transfer.Amount,
		BalanceAfter: creditBalance,
		ValueDate:    transfer.ValueDate,
		Description:  transferDescription(memo, transfer.SourceAccountID),
		PostedAt:     creditedAt,
	})
	if err != nil {
		return s.failWithCreditReversal(ctx, transfer, fmt.Errorf("record credit transaction: %w", err))
	}

	if err := transfer.MarkEntryPosted(domain.EntryDirectionCredit, creditTransactionID, creditedAt); err != nil {
		return s.failWithCreditReversal(ctx, transfer, err)
	}
	if err := s.transferRepo.Update(ctx, transfer); err != nil {
		// The ledger never accepted the credit posting, so reality is
		// rolled back to match it before the transfer is failed.
		return s.failWithCreditReversal(ctx, transfer, fmt.Errorf("persist credit posting: %w", err))
	}

	// Settlement. Both legs are posted and durably recorded by now; a
	// failure here is never unwound, because the funds movement itself is
	// correct. The reconciliation sweep fast-forwards the transfer.
	if err := transfer.MarkSettled(time.Now().UTC()); err != nil {
		logger.Error("transfer service settle rejected", err, logger.Fields{
			"transferId": transfer.ID,
		})
		return commons.ErrorResponse[models.TransferResponse]("failed to process transfer", err.Error()), err
	}
	if err := s.transferRepo.Update(ctx, transfer); err != nil {
		err = fmt.Errorf("persist settlement: %w", err)
		logger.Error("transfer service persist settlement failed", err, logger.Fields{
			"transferId": transfer.ID,
		})
		return commons.ErrorResponse[models.TransferResponse]("failed to process transfer", "Unable to process transfer right now"), err
	}

	if err := s.transactionRecorder.LinkRelated(ctx, debitTransactionID, creditTransactionID); err != nil {
		// The ledger is settled and both legs are posted; a missing
		// audit link is repairable and must not fail the transfer.
		logger.Error("transfer service link transactions failed", err, logger.Fields{
			"transferId":          transfer.ID,
			"debitTransactionId":  debitTransactionID,
			"creditTransactionId": creditTransactionID,
		})
	}

	logger.Info("transfer service settled", logger.Fields{
		"transferId":     transfer.ID,
		"idempotencyKey": transfer.IdempotencyKey,
		"amount":         transfer.Amount.String(),
	})

	response := models.TransferResponseFromSnapshot(transfer.Snapshot())
	return commons.SuccessResponse("Transfer settled", response), nil
}

// GetStatus reports the transfer status for an idempotency key, or
// REQUESTED when no transfer exists for it yet.
func (s *TransferService) GetStatus(ctx context.Context, sourceAccountID string, idempotencyKey string) (domain.TransferStatus, error) {
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		return "", domain.ErrMissingIdempotencyKey
	}

	transfer, err := s.transferRepo.GetByIdempotencyKey(ctx, strings.TrimSpace(sourceAccountID), key)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return domain.TransferStatusRequested, nil
		}
		return "", err
	}
	return transfer.Status, nil
}

func (s *TransferService) fetchSnapshots(ctx context.Context, sourceAccountID, targetAccountID string) (domain.AccountSnapshot, domain.AccountSnapshot, error) {
	var source, target domain.AccountSnapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snapshot, err := s.accountGateway.GetAccount(gctx, sourceAccountID)
		if err != nil {
			return fmt.Errorf("source account %s: %w", sourceAccountID, err)
		}
		source = snapshot
		return nil
	})
	g.Go(func() error {
		snapshot, err := s.accountGateway.GetAccount(gctx, targetAccountID)
		if err != nil {
			return fmt.Errorf("target account %s: %w", targetAccountID, err)
		}
		target = snapshot
		return nil
	})

	if err := g.Wait(); err != nil {
		return domain.AccountSnapshot{}, domain.AccountSnapshot{}, err
	}
	return source, target, nil
}

func (s *TransferService) checkPreconditions(transfer *domain.Transfer, source, target domain.AccountSnapshot) error {
	if !source.Transactable() {
		return fmt.Errorf("%w: source account %s is %s", domain.ErrAccountNotTransactable, source.AccountID, source.Status)
	}
	if !target.Transactable() {
		return fmt.Errorf("%w: target account %s is %s", domain.ErrAccountNotTransactable, target.AccountID, target.Status)
	}
	if !strings.EqualFold(source.Currency, transfer.Amount.Currency) {
		return fmt.Errorf("%w: transfer currency %s does not match source account currency %s", domain.ErrCurrencyMismatch, transfer.Amount.Currency, source.Currency)
	}
	if !strings.EqualFold(target.Currency, transfer.Amount.Currency) {
		return fmt.Errorf("%w: transfer currency %s does not match target account currency %s", domain.ErrCurrencyMismatch, transfer.Amount.Currency, target.Currency)
	}
	if source.Balance < transfer.Amount.Amount {
		return domain.ErrInsufficientBalance
	}
	return nil
}

func (s *TransferService) checkValueDateWindow(valueDate time.Time) error {
	now := time.Now().UTC()
	if valueDate.After(now.Add(s.maxValueDateFuture)) {
		return fmt.Errorf("valueDate cannot be more than %s in the future", s.maxValueDateFuture)
	}
	if valueDate.Before(now.Add(-s.maxValueDatePast)) {
		return fmt.Errorf("valueDate cannot be more than %s in the past", s.maxValueDatePast)
	}
	return nil
}

// failTransfer marks the transfer FAILED without compensation. Used when
// no external effect has happened yet.
func (s *TransferService) failTransfer(ctx context.Context, transfer *domain.Transfer, reason string) {
	if err := transfer.MarkFailed(reason, time.Now().UTC()); err != nil {
		logger.Error("transfer service mark failed rejected", err, logger.Fields{
			"transferId": transfer.ID,
		})
		return
	}
	if err := s.transferRepo.Update(ctx, transfer); err != nil {
		logger.Error("transfer service persist failed status", err, logger.Fields{
			"transferId": transfer.ID,
		})
	}
}

// failWithCompensation reverses a posted debit by crediting the source
// account back the full amount, records a REVERSAL transaction, appends
// the compensation outcome to the failure reason and fails the transfer.
// Compensation is best effort: a failed reversal is recorded in the
// reason for manual reconciliation, never retried automatically.
func (s *TransferService) failWithCompensation(
	ctx context.Context,
	transfer *domain.Transfer,
	cause error,
) (commons.Response[models.TransferResponse], error) {
	logger.Error("transfer service compensating", cause, logger.Fields{
		"transferId":      transfer.ID,
		"sourceAccountId": transfer.SourceAccountID,
	})

	reason := cause.Error()

	reversalBalance, compErr := s.accountGateway.Deposit(ctx, transfer.SourceAccountID, transfer.Amount)
	if compErr != nil {
		reason = fmt.Sprintf("%s; compensationStatus=FAILED: %s", reason, compErr.Error())
		logger.Error("transfer service compensation failed", compErr, logger.Fields{
			"transferId": transfer.ID,
		})
	} else {
		reason = fmt.Sprintf("%s; compensationStatus=SUCCESS", reason)
		reversedAt := time.Now().UTC()
		if _, err := s.transactionRecorder.RecordTransaction(ctx, domain.Transaction{
			AccountID:    transfer.SourceAccountID,
			Type:         domain.TransactionTypeReversal,
			Direction:    domain.EntryDirectionCredit,
			Amount:       transfer.Amount,
			BalanceAfter: reversalBalance,
			ValueDate:    transfer.ValueDate,
			Description:  fmt.Sprintf("Reversal of transfer %s", transfer.ID),
			PostedAt:     reversedAt,
		}); err != nil {
			logger.Error("transfer service record reversal failed", err, logger.Fields{
				"transferId": transfer.ID,
			})
		}
	}

	s.failTransfer(ctx, transfer, reason)

	return commons.ErrorResponse[models.TransferResponse]("transfer failed", reason), cause
}

// failWithCreditReversal unwinds a credit the gateway already applied
// but the ledger never accepted, then compensates the posted debit. If
// the target withdrawal fails the source is NOT refunded: refunding the
// source while the target keeps the credit would create money, so the
// reason records the stuck credit for manual reconciliation instead.
func (s *TransferService) failWithCreditReversal(
	ctx context.Context,
	transfer *domain.Transfer,
	cause error,
) (commons.Response[models.TransferResponse], error) {
	logger.Error("transfer service unwinding credit", cause, logger.Fields{
		"transferId":      transfer.ID,
		"targetAccountId": transfer.TargetAccountID,
	})

	reclaimedBalance, reversalErr := s.accountGateway.Withdraw(ctx, transfer.TargetAccountID, transfer.Amount)
	if reversalErr != nil {
		reason := fmt.Sprintf("%s; creditReversalStatus=FAILED: %s", cause.Error(), reversalErr.Error())
		logger.Error("transfer service credit reversal failed", reversalErr, logger.Fields{
			"transferId": transfer.ID,
		})
		s.failTransfer(ctx, transfer, reason)
		return commons.ErrorResponse[models.TransferResponse]("transfer failed", reason), cause
	}

	reversedAt := time.Now().UTC()
	if _, err := s.transactionRecorder.RecordTransaction(ctx, domain.Transaction{
		AccountID:    transfer.TargetAccountID,
		Type:         domain.TransactionTypeReversal,
		Direction:    domain.EntryDirectionDebit,
		Amount:       transfer.Amount,
		BalanceAfter: reclaimedBalance,
		ValueDate:    transfer.ValueDate,
		Description:  fmt.Sprintf("Reversal of transfer %s", transfer.ID),
		PostedAt:     reversedAt,
	}); err != nil {
		logger.Error("transfer service record credit reversal failed", err, logger.Fields{
			"transferId": transfer.ID,
		})
	}

	return s.failWithCompensation(ctx, transfer, fmt.Errorf("%w; creditReversalStatus=SUCCESS", cause))
}

func retryMatchesTransfer(transfer *domain.Transfer, targetAccountID string, amount domain.Money, valueDate time.Time) error {
	if transfer.TargetAccountID != targetAccountID || !transfer.Amount.Equal(amount) || !transfer.ValueDate.Equal(valueDate) {
		return fmt.Errorf(
			"%w: stored transfer moves %s to account %s on %s",
			domain.ErrIdempotencyKeyMismatch,
			transfer.Amount,
			transfer.TargetAccountID,
			transfer.ValueDate.Format(models.ValueDateLayout),
		)
	}
	return nil
}

func (s *TransferService) respondGatewayError(err error) (commons.Response[models.TransferResponse], error) {
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		return commons.ErrorResponse[models.TransferResponse]("account not found", err.Error()), err
	case errors.Is(err, domain.ErrInsufficientBalance):
		return commons.ErrorResponse[models.TransferResponse]("Insufficient balance", err.Error()), err
	case errors.Is(err, domain.ErrAccountNotTransactable), errors.Is(err, domain.ErrCurrencyMismatch):
		return commons.ErrorResponse[models.TransferResponse]("validation failed", err.Error()), err
	default:
		return commons.ErrorResponse[models.TransferResponse]("failed to process transfer", err.Error()), err
	}
}

func transferDescription(memo string, counterpartyAccountID string) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Internal transfer with account %s", counterpartyAccountID)
}
