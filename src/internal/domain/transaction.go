package domain

import "time"

type TransactionType string

const (
	TransactionTypeTransfer TransactionType = "TRANSFER"
	TransactionTypeReversal TransactionType = "REVERSAL"
)

// Transaction is the human-readable record persisted by the transaction
// recorder. It sits outside the ledger's consistency boundary; debit and
// credit records are linked to each other for audit traceability.
type Transaction struct {
	ID                   string
	AccountID            string
	Type                 TransactionType
	Direction            EntryDirection
	Amount               Money
	BalanceAfter         int64
	ValueDate            time.Time
	Description          string
	PostedAt             time.Time
	RelatedTransactionID *string
	CreatedAt            time.Time
}
