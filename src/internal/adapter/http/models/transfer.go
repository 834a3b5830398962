package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/api-sage/ledger-transfer-engine/src/internal/domain"
)

const ValueDateLayout = "2006-01-02"

const maxMemoLength = 140

type TransferRequest struct {
	IdempotencyKey  string          `json:"idempotencyKey"`
	SourceAccountID string          `json:"sourceAccountId"`
	TargetAccountID string          `json:"targetAccountId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	ValueDate       string          `json:"valueDate"`
	Memo            string          `json:"memo"`
}

func (r TransferRequest) Validate() error {
	var errs []string

	if strings.TrimSpace(r.IdempotencyKey) == "" {
		errs = append(errs, "idempotencyKey is required")
	}

	sourceAccountID := strings.TrimSpace(r.SourceAccountID)
	targetAccountID := strings.TrimSpace(r.TargetAccountID)
	if sourceAccountID == "" {
		errs = append(errs, "sourceAccountId is required")
	}
	if targetAccountID == "" {
		errs = append(errs, "targetAccountId is required")
	}
	if sourceAccountID != "" && sourceAccountID == targetAccountID {
		errs = append(errs, "sourceAccountId and targetAccountId cannot be the same")
	}

	if r.Amount.LessThanOrEqual(decimal.Zero) {
		errs = append(errs, "amount must be greater than zero")
	}
	if r.Amount.Exponent() < -2 {
		errs = append(errs, "amount cannot have more than two decimal places")
	}

	currency := strings.ToUpper(strings.TrimSpace(r.Currency))
	if len(currency) != 3 {
		errs = append(errs, "currency must be 3 characters")
	}

	if _, err := time.Parse(ValueDateLayout, strings.TrimSpace(r.ValueDate)); err != nil {
		errs = append(errs, "valueDate must be formatted as "+ValueDateLayout)
	}

	if len(strings.TrimSpace(r.Memo)) > maxMemoLength {
		errs = append(errs, "memo cannot exceed 140 characters")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

type TransferResponse struct {
	TransferID          string           `json:"transferId"`
	IdempotencyKey      string           `json:"idempotencyKey"`
	SourceAccountID     string           `json:"sourceAccountId"`
	TargetAccountID     string           `json:"targetAccountId"`
	Amount              *decimal.Decimal `json:"amount"`
	Currency            string           `json:"currency"`
	ValueDate           string           `json:"valueDate"`
	DebitTransactionID  *string          `json:"debitTransactionId"`
	CreditTransactionID *string          `json:"creditTransactionId"`
	RequestedAt         time.Time        `json:"requestedAt"`
	Status              string           `json:"status"`
	CompletedAt         *time.Time       `json:"completedAt"`
	FailureReason       *string          `json:"failureReason"`
}

func TransferResponseFromSnapshot(snapshot domain.TransferSnapshot) TransferResponse {
	amount := snapshot.Amount.Decimal()
	return TransferResponse{
		TransferID:          snapshot.TransferID.String(),
		IdempotencyKey:      snapshot.IdempotencyKey,
		SourceAccountID:     snapshot.SourceAccountID,
		TargetAccountID:     snapshot.TargetAccountID,
		Amount:              &amount,
		Currency:            snapshot.Amount.Currency,
		ValueDate:           snapshot.ValueDate.Format(ValueDateLayout),
		DebitTransactionID:  snapshot.DebitTransactionID,
		CreditTransactionID: snapshot.CreditTransactionID,
		RequestedAt:         snapshot.RequestedAt,
		Status:              string(snapshot.Status),
		CompletedAt:         snapshot.CompletedAt,
		FailureReason:       snapshot.FailureReason,
	}
}

type TransferStatusResponse struct {
	IdempotencyKey  string `json:"idempotencyKey"`
	SourceAccountID string `json:"sourceAccountId"`
	Status          string `json:"status"`
}
