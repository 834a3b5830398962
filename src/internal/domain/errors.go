package domain

import "errors"

var ErrRecordNotFound = errors.New("Record not found")
var ErrInsufficientBalance = errors.New("Insufficient balance")
var ErrAccountNotTransactable = errors.New("Account is not transactable")
var ErrMissingIdempotencyKey = errors.New("idempotency key is required")
var ErrDuplicateRequest = errors.New("duplicate transfer request")
var ErrTransferInProgress = errors.New("transfer is already in progress")
var ErrTransferConflict = errors.New("transfer was modified concurrently")
var ErrIdempotencyKeyMismatch = errors.New("idempotency key was reused with different transfer details")
var ErrCurrencyMismatch = errors.New("transfer currency mismatch")

// ErrStateIntegrity marks an illegal ledger transition. It indicates a
// programming or data-corruption defect and is never swallowed.
var ErrStateIntegrity = errors.New("ledger state integrity violation")
