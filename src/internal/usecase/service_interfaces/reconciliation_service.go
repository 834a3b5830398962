package service_interfaces

import "context"

type ReconciliationReport struct {
	Examined    int
	Settled     int
	Failed      int
	Compensated int
}

// ReconciliationService resolves transfers stranded between an account
// gateway effect and its ledger write, typically after a crash.
type ReconciliationService interface {
	Reconcile(ctx context.Context) (ReconciliationReport, error)
}
