package services

import (
	"context"
	"fmt"
	"time"

	"github.com/api-sage/ledger-transfer-engine/src/internal/adapter/repository/repo_interfaces"
	"github.com/api-sage/ledger-transfer-engine/src/internal/domain"
	"github.com/api-sage/ledger-transfer-engine/src/internal/logger"
	"github.com/api-sage/ledger-transfer-engine/src/internal/usecase/service_interfaces"
)

// ReconciliationService resolves transfers stranded in a non-terminal
// state, typically by a crash between an account gateway call and the
// ledger write that should have followed it. The ledger's posted entries
// are treated as ground truth for what the gateway durably did: a
// transfer whose debit never posted is failed outright, a transfer with
// both entries posted is fast-forwarded to SETTLED (the funds already
// moved correctly, only the settlement write is missing), and a transfer
// whose debit posted but whose credit did not is compensated and failed.
// Credits are never re-issued, so every stranded transfer converges to a
// terminal state with funds conserved.
type ReconciliationService struct {
	transferRepo        repo_interfaces.TransferRepository
	accountGateway      service_interfaces.AccountGateway
	transactionRecorder service_interfaces.TransactionRecorder
	cutoff              time.Duration
}

func NewReconciliationService(
	transferRepo repo_interfaces.TransferRepository,
	accountGateway service_interfaces.AccountGateway,
	transactionRecorder service_interfaces.TransactionRecorder,
	cutoff time.Duration,
) *ReconciliationService {
	return &ReconciliationService{
		transferRepo:        transferRepo,
		accountGateway:      accountGateway,
		transactionRecorder: transactionRecorder,
		cutoff:              cutoff,
	}
}

func (s *ReconciliationService) Reconcile(ctx context.Context) (service_interfaces.ReconciliationReport, error) {
	report := service_interfaces.ReconciliationReport{}

	stranded, err := s.transferRepo.ListInFlight(ctx, time.Now().UTC().Add(-s.cutoff))
	if err != nil {
		return report, fmt.Errorf("list in-flight transfers: %w", err)
	}

	for _, transfer := range stranded {
		report.Examined++

		debit, err := transfer.Entry(domain.EntryDirectionDebit)
		if err != nil {
			logger.Error("reconciliation found corrupted transfer", err, logger.Fields{
				"transferId": transfer.ID,
			})
			continue
		}

		credit, err := transfer.Entry(domain.EntryDirectionCredit)
		if err != nil {
			logger.Error("reconciliation found corrupted transfer", err, logger.Fields{
				"transferId": transfer.ID,
			})
			continue
		}

		if debit.Status != domain.EntryStatusPosted {
			s.fail(ctx, transfer, "reconciliation: debit never posted")
			report.Failed++
			continue
		}

		// Both legs posted: the movement itself completed, only the
		// settlement write was lost. Compensating here would hand the
		// source its money back while the target keeps the credit.
		if credit.Status == domain.EntryStatusPosted {
			s.settle(ctx, transfer, debit, credit)
			report.Settled++
			continue
		}

		reason := "reconciliation: credit never posted"
		reversalBalance, compErr := s.accountGateway.Deposit(ctx, transfer.SourceAccountID, transfer.Amount)
		if compErr != nil {
			reason = fmt.Sprintf("%s; compensationStatus=FAILED: %s", reason, compErr.Error())
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
				logger.Error("reconciliation record reversal failed", err, logger.Fields{
					"transferId": transfer.ID,
				})
			}
		}

		s.fail(ctx, transfer, reason)
		report.Compensated++
	}

	logger.Info("reconciliation sweep complete", logger.Fields{
		"examined":    report.Examined,
		"settled":     report.Settled,
		"failed":      report.Failed,
		"compensated": report.Compensated,
	})
	return report, nil
}

func (s *ReconciliationService) settle(ctx context.Context, transfer *domain.Transfer, debit, credit *domain.LedgerEntry) {
	if err := transfer.MarkSettled(time.Now().UTC()); err != nil {
		logger.Error("reconciliation settle rejected", err, logger.Fields{
			"transferId": transfer.ID,
		})
		return
	}
	if err := s.transferRepo.Update(ctx, transfer); err != nil {
		logger.Error("reconciliation persist settlement failed", err, logger.Fields{
			"transferId": transfer.ID,
		})
		return
	}

	if debit.TransactionID != nil && credit.TransactionID != nil {
		if err := s.transactionRecorder.LinkRelated(ctx, *debit.TransactionID, *credit.TransactionID); err != nil {
			logger.Error("reconciliation link transactions failed", err, logger.Fields{
				"transferId": transfer.ID,
			})
		}
	}
}

func (s *ReconciliationService) fail(ctx context.Context, transfer *domain.Transfer, reason string) {
	if err := transfer.MarkFailed(reason, time.Now().UTC()); err != nil {
		logger.Error("reconciliation mark failed rejected", err, logger.Fields{
			"transferId": transfer.ID,
		})
		return
	}
	if err := s.transferRepo.Update(ctx, transfer); err != nil {
		logger.Error("reconciliation persist failed status", err, logger.Fields{
			"transferId": transfer.ID,
		})
	}
}
