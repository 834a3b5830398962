package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EntryDirection string

const (
	EntryDirectionDebit  EntryDirection = "DEBIT"
	EntryDirectionCredit EntryDirection = "CREDIT"
)

type EntryStatus string

const (
	EntryStatusRequested EntryStatus = "REQUESTED"
	EntryStatusPending   EntryStatus = "PENDING"
	EntryStatusPosted    EntryStatus = "POSTED"
	EntryStatusFailed    EntryStatus = "FAILED"
	EntryStatusVoid      EntryStatus = "VOID"
)

func (s EntryStatus) IsTerminal() bool {
	switch s {
	case EntryStatusPosted, EntryStatusFailed, EntryStatusVoid:
		return true
	default:
		return false
	}
}

// LedgerEntry is one leg of a transfer. Entries exist only inside their
// owning Transfer; once POSTED an entry is immutable apart from the
// external transaction id recorded at posting time.
type LedgerEntry struct {
	ID             uuid.UUID
	TransferID     uuid.UUID
	AccountID      string
	Direction      EntryDirection
	Amount         Money
	Status         EntryStatus
	ValueDate      time.Time
	PostedAt       *time.Time
	TransactionID  *string
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func newLedgerEntry(
	transferID uuid.UUID,
	accountID string,
	direction EntryDirection,
	amount Money,
	valueDate time.Time,
	idempotencyKey string,
	now time.Time,
) LedgerEntry {
	return LedgerEntry{
		ID:             uuid.New(),
		TransferID:     transferID,
		AccountID:      accountID,
		Direction:      direction,
		Amount:         amount,
		Status:         EntryStatusRequested,
		ValueDate:      valueDate,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (e *LedgerEntry) markPosted(externalTransactionID string, postedAt time.Time) error {
	switch e.Status {
	case EntryStatusRequested, EntryStatusPending:
	case EntryStatusPosted:
		return nil
	default:
		return fmt.Errorf("%w: cannot post %s entry %s in status %s", ErrStateIntegrity, e.Direction, e.ID, e.Status)
	}
	if externalTransactionID == "" {
		return fmt.Errorf("%w: posting %s entry %s requires an external transaction id", ErrStateIntegrity, e.Direction, e.ID)
	}

	e.Status = EntryStatusPosted
	e.TransactionID = &externalTransactionID
	e.PostedAt = &postedAt
	e.UpdatedAt = postedAt
	return nil
}
