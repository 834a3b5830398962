package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TransferType string

const (
	TransferTypeInternal TransferType = "INTERNAL"
)

type TransferStatus string

const (
	TransferStatusRequested    TransferStatus = "REQUESTED"
	TransferStatusDebitPosted  TransferStatus = "DEBIT_POSTED"
	TransferStatusCreditPosted TransferStatus = "CREDIT_POSTED"
	TransferStatusSettled      TransferStatus = "SETTLED"
	TransferStatusFailed       TransferStatus = "FAILED"
	TransferStatusVoid         TransferStatus = "VOID"
)

func (s TransferStatus) IsTerminal() bool {
	switch s {
	case TransferStatusSettled, TransferStatusFailed, TransferStatusVoid:
		return true
	default:
		return false
	}
}

// Transfer is the aggregate root for one funds movement. It owns exactly
// two ledger entries, one DEBIT on the source account and one CREDIT on
// the target account, both carrying the transfer's amount and value date.
type Transfer struct {
	ID              uuid.UUID
	Type            TransferType
	Status          TransferStatus
	IdempotencyKey  string
	SourceAccountID string
	TargetAccountID string
	Amount          Money
	ValueDate       time.Time
	FailureReason   *string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	Entries         []LedgerEntry
}

// TransferSnapshot is the immutable view handed across component
// boundaries. The mutable aggregate never leaves the orchestration core.
type TransferSnapshot struct {
	TransferID          uuid.UUID
	Type                TransferType
	Status              TransferStatus
	IdempotencyKey      string
	SourceAccountID     string
	TargetAccountID     string
	Amount              Money
	ValueDate           time.Time
	DebitTransactionID  *string
	CreditTransactionID *string
	RequestedAt         time.Time
	CompletedAt         *time.Time
	FailureReason       *string
}

func NewTransfer(
	sourceAccountID string,
	targetAccountID string,
	amount Money,
	valueDate time.Time,
	transferType TransferType,
	idempotencyKey string,
	now time.Time,
) (*Transfer, error) {
	if sourceAccountID == "" || targetAccountID == "" {
		return nil, fmt.Errorf("%w: transfer requires source and target accounts", ErrStateIntegrity)
	}
	if sourceAccountID == targetAccountID {
		return nil, fmt.Errorf("%w: source and target accounts must differ", ErrStateIntegrity)
	}
	if idempotencyKey == "" {
		return nil, ErrMissingIdempotencyKey
	}

	transferID := uuid.New()
	transfer := &Transfer{
		ID:              transferID,
		Type:            transferType,
		Status:          TransferStatusRequested,
		IdempotencyKey:  idempotencyKey,
		SourceAccountID: sourceAccountID,
		TargetAccountID: targetAccountID,
		Amount:          amount,
		ValueDate:       valueDate,
		CreatedAt:       now,
		UpdatedAt:       now,
		Entries: []LedgerEntry{
			newLedgerEntry(transferID, sourceAccountID, EntryDirectionDebit, amount, valueDate, idempotencyKey, now),
			newLedgerEntry(transferID, targetAccountID, EntryDirectionCredit, amount, valueDate, idempotencyKey, now),
		},
	}

	if err := transfer.validateEntries(); err != nil {
		return nil, err
	}
	return transfer, nil
}

// RestoreTransfer rebuilds the aggregate from persisted state and
// re-checks the double-entry invariant before the transfer is mutated.
func RestoreTransfer(transfer Transfer, entries []LedgerEntry) (*Transfer, error) {
	transfer.Entries = entries
	if err := transfer.validateEntries(); err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (t *Transfer) validateEntries() error {
	if len(t.Entries) != 2 {
		return fmt.Errorf("%w: transfer %s has %d ledger entries, want 2", ErrStateIntegrity, t.ID, len(t.Entries))
	}

	var debits, credits int
	for i := range t.Entries {
		entry := &t.Entries[i]
		switch entry.Direction {
		case EntryDirectionDebit:
			debits++
			if entry.AccountID != t.SourceAccountID {
				return fmt.Errorf("%w: debit entry account %s does not match source account %s", ErrStateIntegrity, entry.AccountID, t.SourceAccountID)
			}
		case EntryDirectionCredit:
			credits++
			if entry.AccountID != t.TargetAccountID {
				return fmt.Errorf("%w: credit entry account %s does not match target account %s", ErrStateIntegrity, entry.AccountID, t.TargetAccountID)
			}
		default:
			return fmt.Errorf("%w: unknown entry direction %q", ErrStateIntegrity, entry.Direction)
		}

		if !entry.Amount.Equal(t.Amount) {
			return fmt.Errorf("%w: entry amount %s does not match transfer amount %s", ErrStateIntegrity, entry.Amount, t.Amount)
		}
		if !entry.ValueDate.Equal(t.ValueDate) {
			return fmt.Errorf("%w: entry value date %s does not match transfer value date %s", ErrStateIntegrity, entry.ValueDate.Format("2006-01-02"), t.ValueDate.Format("2006-01-02"))
		}
	}

	if debits != 1 || credits != 1 {
		return fmt.Errorf("%w: transfer %s has %d debit and %d credit entries, want exactly one of each", ErrStateIntegrity, t.ID, debits, credits)
	}
	return nil
}

// Entry returns the leg with the given direction. Construction guarantees
// both directions exist, so a miss indicates corrupted state.
func (t *Transfer) Entry(direction EntryDirection) (*LedgerEntry, error) {
	for i := range t.Entries {
		if t.Entries[i].Direction == direction {
			return &t.Entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: transfer %s has no %s entry", ErrStateIntegrity, t.ID, direction)
}

// MarkEntryPosted transitions the named entry to POSTED, records the
// linking transaction id and posting time, and advances the transfer
// status. Re-posting an already POSTED entry is a no-op. The credit
// entry cannot post before the debit entry has: crediting first could
// create money from nothing.
func (t *Transfer) MarkEntryPosted(direction EntryDirection, externalTransactionID string, postedAt time.Time) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot post %s entry on %s transfer %s", ErrStateIntegrity, direction, t.Status, t.ID)
	}

	entry, err := t.Entry(direction)
	if err != nil {
		return err
	}
	if direction == EntryDirectionCredit {
		debit, err := t.Entry(EntryDirectionDebit)
		if err != nil {
			return err
		}
		if debit.Status != EntryStatusPosted {
			return fmt.Errorf("%w: cannot post credit entry on transfer %s before its debit entry is posted", ErrStateIntegrity, t.ID)
		}
	}
	if entry.Status == EntryStatusPosted {
		return nil
	}
	if err := entry.markPosted(externalTransactionID, postedAt); err != nil {
		return err
	}

	switch direction {
	case EntryDirectionDebit:
		t.Status = TransferStatusDebitPosted
	case EntryDirectionCredit:
		t.Status = TransferStatusCreditPosted
	}
	t.UpdatedAt = postedAt
	return nil
}

// MarkSettled requires both entries POSTED.
func (t *Transfer) MarkSettled(settledAt time.Time) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot settle %s transfer %s", ErrStateIntegrity, t.Status, t.ID)
	}
	for i := range t.Entries {
		if t.Entries[i].Status != EntryStatusPosted {
			return fmt.Errorf("%w: cannot settle transfer %s, %s entry is %s", ErrStateIntegrity, t.ID, t.Entries[i].Direction, t.Entries[i].Status)
		}
	}

	t.Status = TransferStatusSettled
	t.UpdatedAt = settledAt
	t.CompletedAt = &settledAt
	return nil
}

// MarkFailed records the failure reason and invalidates every entry that
// has not already posted. POSTED entries are left untouched: they carry a
// real external effect and require compensation, not invalidation.
func (t *Transfer) MarkFailed(reason string, failedAt time.Time) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot fail %s transfer %s", ErrStateIntegrity, t.Status, t.ID)
	}

	for i := range t.Entries {
		if t.Entries[i].Status == EntryStatusPosted {
			continue
		}
		t.Entries[i].Status = EntryStatusFailed
		t.Entries[i].UpdatedAt = failedAt
	}

	t.Status = TransferStatusFailed
	t.FailureReason = &reason
	t.UpdatedAt = failedAt
	t.CompletedAt = &failedAt
	return nil
}

// MarkVoid is the administrative cancellation; it is not exercised by the
// transfer protocol itself.
func (t *Transfer) MarkVoid(voidedAt time.Time) error {
	if t.Status == TransferStatusVoid {
		return nil
	}
	for i := range t.Entries {
		if t.Entries[i].Status == EntryStatusPosted {
			continue
		}
		t.Entries[i].Status = EntryStatusVoid
		t.Entries[i].UpdatedAt = voidedAt
	}

	t.Status = TransferStatusVoid
	t.UpdatedAt = voidedAt
	t.CompletedAt = &voidedAt
	return nil
}

func (t *Transfer) Snapshot() TransferSnapshot {
	snapshot := TransferSnapshot{
		TransferID:      t.ID,
		Type:            t.Type,
		Status:          t.Status,
		IdempotencyKey:  t.IdempotencyKey,
		SourceAccountID: t.SourceAccountID,
		TargetAccountID: t.TargetAccountID,
		Amount:          t.Amount,
		ValueDate:       t.ValueDate,
		RequestedAt:     t.CreatedAt,
		CompletedAt:     t.CompletedAt,
		FailureReason:   t.FailureReason,
	}
	for i := range t.Entries {
		entry := t.Entries[i]
		if entry.TransactionID == nil {
			continue
		}
		switch entry.Direction {
		case EntryDirectionDebit:
			snapshot.DebitTransactionID = entry.TransactionID
		case EntryDirectionCredit:
			snapshot.CreditTransactionID = entry.TransactionID
		}
	}
	return snapshot
}
