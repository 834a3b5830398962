package domain

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "ACTIVE"
	AccountStatusFrozen AccountStatus = "FROZEN"
	AccountStatusClosed AccountStatus = "CLOSED"
)

// AccountSnapshot is a point-in-time view of an account owned by the
// account gateway's bounded context. This core never mutates it; it is
// used only for precondition checks.
type AccountSnapshot struct {
	AccountID  string
	CustomerID string
	Currency   string
	Balance    int64
	Status     AccountStatus
}

func (s AccountSnapshot) Transactable() bool {
	return s.Status == AccountStatusActive
}
