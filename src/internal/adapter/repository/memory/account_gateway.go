package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/api-sage/ledger-transfer-engine/src/internal/domain"
)

// AccountGateway is an in-memory implementation of the account balance
// boundary used by tests and local runs. It mirrors the error semantics
// of the storage-backed gateway.
type AccountGateway struct {
	mu       sync.Mutex
	accounts map[string]domain.AccountSnapshot
}

func NewAccountGateway() *AccountGateway {
	return &AccountGateway{accounts: make(map[string]domain.AccountSnapshot)}
}

// Seed registers or replaces an account.
func (g *AccountGateway) Seed(snapshot domain.AccountSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accounts[snapshot.AccountID] = snapshot
}

func (g *AccountGateway) GetAccount(_ context.Context, accountID string) (domain.AccountSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	snapshot, ok := g.accounts[accountID]
	if !ok {
		return domain.AccountSnapshot{}, domain.ErrRecordNotFound
	}
	return snapshot, nil
}

func (g *AccountGateway) Withdraw(_ context.Context, accountID string, amount domain.Money) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("withdraw amount must be positive")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	snapshot, ok := g.accounts[accountID]
	if !ok {
		return 0, domain.ErrRecordNotFound
	}
	if !snapshot.Transactable() {
		return 0, fmt.Errorf("%w: account %s is %s", domain.ErrAccountNotTransactable, accountID, snapshot.Status)
	}
	if snapshot.Balance < amount.Amount {
		return 0, domain.ErrInsufficientBalance
	}

	snapshot.Balance -= amount.Amount
	g.accounts[accountID] = snapshot
	return snapshot.Balance, nil
}

func (g *AccountGateway) Deposit(_ context.Context, accountID string, amount domain.Money) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("deposit amount must be positive")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	snapshot, ok := g.accounts[accountID]
	if !ok {
		return 0, domain.ErrRecordNotFound
	}
	if !snapshot.Transactable() {
		return 0, fmt.Errorf("%w: account %s is %s", domain.ErrAccountNotTransactable, accountID, snapshot.Status)
	}

	snapshot.Balance += amount.Amount
	g.accounts[accountID] = snapshot
	return snapshot.Balance, nil
}
