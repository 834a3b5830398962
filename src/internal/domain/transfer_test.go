package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMoney(t *testing.T, amount int64) Money {
	t.Helper()
	money, err := NewMoney(amount, "USD")
	require.NoError(t, err)
	return money
}

func newTestTransfer(t *testing.T) *Transfer {
	t.Helper()
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	valueDate := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	transfer, err := NewTransfer("acc-source", "acc-target", testMoney(t, 10_000), valueDate, TransferTypeInternal, "key-1", now)
	require.NoError(t, err)
	return transfer
}

func TestNewTransfer_DoubleEntryInvariant(t *testing.T) {
	transfer := newTestTransfer(t)

	assert.Equal(t, TransferStatusRequested, transfer.Status)
	require.Len(t, transfer.Entries, 2)

	debit, err := transfer.Entry(EntryDirectionDebit)
	require.NoError(t, err)
	credit, err := transfer.Entry(EntryDirectionCredit)
	require.NoError(t, err)

	assert.Equal(t, "acc-source", debit.AccountID)
	assert.Equal(t, "acc-target", credit.AccountID)
	assert.True(t, debit.Amount.Equal(transfer.Amount))
	assert.True(t, credit.Amount.Equal(transfer.Amount))
	assert.True(t, debit.ValueDate.Equal(transfer.ValueDate))
	assert.True(t, credit.ValueDate.Equal(transfer.ValueDate))
	assert.Equal(t, EntryStatusRequested, debit.Status)
	assert.Equal(t, EntryStatusRequested, credit.Status)
	assert.Equal(t, "key-1", debit.IdempotencyKey)
}

func TestNewTransfer_Rejections(t *testing.T) {
	now := time.Now().UTC()
	amount := testMoney(t, 100)

	_, err := NewTransfer("acc-1", "acc-1", amount, now, TransferTypeInternal, "key", now)
	assert.ErrorIs(t, err, ErrStateIntegrity)

	_, err = NewTransfer("acc-1", "acc-2", amount, now, TransferTypeInternal, "", now)
	assert.ErrorIs(t, err, ErrMissingIdempotencyKey)

	_, err = NewTransfer("", "acc-2", amount, now, TransferTypeInternal, "key", now)
	assert.ErrorIs(t, err, ErrStateIntegrity)
}

func TestRestoreTransfer_RequiresOneDebitOneCredit(t *testing.T) {
	transfer := newTestTransfer(t)

	_, err := RestoreTransfer(*transfer, transfer.Entries[:1])
	assert.ErrorIs(t, err, ErrStateIntegrity)

	twoDebits := []LedgerEntry{transfer.Entries[0], transfer.Entries[0]}
	_, err = RestoreTransfer(*transfer, twoDebits)
	assert.ErrorIs(t, err, ErrStateIntegrity)

	restored, err := RestoreTransfer(*transfer, transfer.Entries)
	require.NoError(t, err)
	assert.Equal(t, transfer.ID, restored.ID)
}

func TestRestoreTransfer_RejectsMismatchedEntryAmount(t *testing.T) {
	transfer := newTestTransfer(t)
	entries := make([]LedgerEntry, len(transfer.Entries))
	copy(entries, transfer.Entries)
	entries[0].Amount = testMoney(t, 9_999)

	_, err := RestoreTransfer(*transfer, entries)
	assert.ErrorIs(t, err, ErrStateIntegrity)
}

func TestMarkEntryPosted_AdvancesTransferStatus(t *testing.T) {
	transfer := newTestTransfer(t)
	postedAt := time.Now().UTC()

	require.NoError(t, transfer.MarkEntryPosted(EntryDirectionDebit, "txn-debit", postedAt))
	assert.Equal(t, TransferStatusDebitPosted, transfer.Status)

	debit, err := transfer.Entry(EntryDirectionDebit)
	require.NoError(t, err)
	assert.Equal(t, EntryStatusPosted, debit.Status)
	require.NotNil(t, debit.TransactionID)
	assert.Equal(t, "txn-debit", *debit.TransactionID)
	require.NotNil(t, debit.PostedAt)
	assert.True(t, debit.PostedAt.Equal(postedAt))

	require.NoError(t, transfer.MarkEntryPosted(EntryDirectionCredit, "txn-credit", postedAt.Add(time.Second)))
	assert.Equal(t, TransferStatusCreditPosted, transfer.Status)
}

func TestMarkEntryPosted_RepostIsNoOp(t *testing.T) {
	transfer := newTestTransfer(t)
	postedAt := time.Now().UTC()

	require.NoError(t, transfer.MarkEntryPosted(EntryDirectionDebit, "txn-debit", postedAt))
	require.NoError(t, transfer.MarkEntryPosted(EntryDirectionDebit, "txn-other", postedAt.Add(time.Minute)))

	debit, err := transfer.Entry(EntryDirectionDebit)
	require.NoError(t, err)
	assert.Equal(t, "txn-debit", *debit.TransactionID)
	assert.True(t, debit.PostedAt.Equal(postedAt))
}

func TestMarkEntryPosted_RejectsCreditBeforeDebit(t *testing.T) {
	transfer := newTestTransfer(t)
	now := time.Now().UTC()

	err := transfer.MarkEntryPosted(EntryDirectionCredit, "txn-credit", now)
	assert.ErrorIs(t, err, ErrStateIntegrity)
	assert.Equal(t, TransferStatusRequested, transfer.Status)

	credit, lookupErr := transfer.Entry(EntryDirectionCredit)
	require.NoError(t, lookupErr)
	assert.Equal(t, EntryStatusRequested, credit.Status)

	require.NoError(t, transfer.MarkEntryPosted(EntryDirectionDebit, "txn-debit", now))
	require.NoError(t, transfer.MarkEntryPosted(EntryDirectionCredit, "txn-credit", now))
}

func TestMarkEntryPosted_RejectsInvalidatedEntry(t *testing.T) {
	transfer := newTestTransfer(t)
	now := time.Now().UTC()

	require.NoError(t, transfer.MarkFailed("debit failed", now))

	err := transfer.MarkEntryPosted(EntryDirectionCredit, "txn-credit", now)
	assert.ErrorIs(t, err, ErrStateIntegrity)
}

func TestMarkSettled_RequiresBothEntriesPosted(t *testing.T) {
	transfer := newTestTransfer(t)
	now := time.Now().UTC()

	err := transfer.MarkSettled(now)
	assert.ErrorIs(t, err, ErrStateIntegrity)

	require.NoError(t, transfer.MarkEntryPosted(EntryDirectionDebit, "txn-debit", now))
	err = transfer.MarkSettled(now)
	assert.ErrorIs(t, err, ErrStateIntegrity)

	require.NoError(t, transfer.MarkEntryPosted(EntryDirectionCredit, "txn-credit", now))
	require.NoError(t, transfer.MarkSettled(now))

	assert.Equal(t, TransferStatusSettled, transfer.Status)
	require.NotNil(t, transfer.CompletedAt)
	for _, entry := range transfer.Entries {
		assert.Equal(t, EntryStatusPosted, entry.Status)
	}
}

func TestMarkFailed_LeavesPostedEntriesUntouched(t *testing.T) {
	transfer := newTestTransfer(t)
	now := time.Now().UTC()

	require.NoError(t, transfer.MarkEntryPosted(EntryDirectionDebit, "txn-debit", now))
	require.NoError(t, transfer.MarkFailed("credit failed; compensationStatus=SUCCESS", now))

	assert.Equal(t, TransferStatusFailed, transfer.Status)
	require.NotNil(t, transfer.FailureReason)
	assert.Contains(t, *transfer.FailureReason, "compensationStatus=SUCCESS")

	debit, err := transfer.Entry(EntryDirectionDebit)
	require.NoError(t, err)
	assert.Equal(t, EntryStatusPosted, debit.Status)

	credit, err := transfer.Entry(EntryDirectionCredit)
	require.NoError(t, err)
	assert.Equal(t, EntryStatusFailed, credit.Status)
}

func TestMarkFailed_RejectsTerminalTransfer(t *testing.T) {
	transfer := newTestTransfer(t)
	now := time.Now().UTC()

	require.NoError(t, transfer.MarkEntryPosted(EntryDirectionDebit, "txn-debit", now))
	require.NoError(t, transfer.MarkEntryPosted(EntryDirectionCredit, "txn-credit", now))
	require.NoError(t, transfer.MarkSettled(now))

	err := transfer.MarkFailed("late failure", now)
	assert.ErrorIs(t, err, ErrStateIntegrity)
}

func TestMarkVoid_InvalidatesUnpostedEntries(t *testing.T) {
	transfer := newTestTransfer(t)
	now := time.Now().UTC()

	require.NoError(t, transfer.MarkEntryPosted(EntryDirectionDebit, "txn-debit", now))
	require.NoError(t, transfer.MarkVoid(now))

	assert.Equal(t, TransferStatusVoid, transfer.Status)

	debit, err := transfer.Entry(EntryDirectionDebit)
	require.NoError(t, err)
	assert.Equal(t, EntryStatusPosted, debit.Status)

	credit, err := transfer.Entry(EntryDirectionCredit)
	require.NoError(t, err)
	assert.Equal(t, EntryStatusVoid, credit.Status)
}

func TestSnapshot_CarriesTransactionIDs(t *testing.T) {
	transfer := newTestTransfer(t)
	now := time.Now().UTC()

	snapshot := transfer.Snapshot()
	assert.Nil(t, snapshot.DebitTransactionID)
	assert.Nil(t, snapshot.CreditTransactionID)

	require.NoError(t, transfer.MarkEntryPosted(EntryDirectionDebit, "txn-debit", now))
	require.NoError(t, transfer.MarkEntryPosted(EntryDirectionCredit, "txn-credit", now.Add(time.Second)))
	require.NoError(t, transfer.MarkSettled(now.Add(2*time.Second)))

	snapshot = transfer.Snapshot()
	require.NotNil(t, snapshot.DebitTransactionID)
	require.NotNil(t, snapshot.CreditTransactionID)
	assert.Equal(t, "txn-debit", *snapshot.DebitTransactionID)
	assert.Equal(t, "txn-credit", *snapshot.CreditTransactionID)
	assert.Equal(t, TransferStatusSettled, snapshot.Status)
	require.NotNil(t, snapshot.CompletedAt)
}

func TestTransferStatus_IsTerminal(t *testing.T) {
	assert.False(t, TransferStatusRequested.IsTerminal())
	assert.False(t, TransferStatusDebitPosted.IsTerminal())
	assert.False(t, TransferStatusCreditPosted.IsTerminal())
	assert.True(t, TransferStatusSettled.IsTerminal())
	assert.True(t, TransferStatusFailed.IsTerminal())
	assert.True(t, TransferStatusVoid.IsTerminal())
}
