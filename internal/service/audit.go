package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/punchamoorthee/ledgerbank/internal/store"
)

// AuditReport lists every ledger invariant violation found by Audit.
type AuditReport struct {
	UnbalancedTransfers []string    `json:"unbalancedTransfers"`
	NegativeBalances    []uuid.UUID `json:"negativeBalances"`
}

func (r *AuditReport) Clean() bool {
	return len(r.UnbalancedTransfers) == 0 && len(r.NegativeBalances) == 0
}

// Err reports a dirty ledger as a partial failure.
func (r *AuditReport) Err() error {
	if r.Clean() {
		return nil
	}
	return domain.PartialFailure("ledger audit failed", fmt.Errorf(
		"%d unbalanced transfers, %d negative balances",
		len(r.UnbalancedTransfers), len(r.NegativeBalances)))
}

// Audit checks the pairing invariant of every transfer and the
// non-negative balance invariant of every account.
func Audit(ctx context.Context, a store.Auditor) (*AuditReport, error) {
	refs, err := a.UnbalancedTransfers(ctx)
	if err != nil {
		return nil, err
	}
	negative, err := a.NegativeBalances(ctx)
	if err != nil {
		return nil, err
	}
	return &AuditReport{UnbalancedTransfers: refs, NegativeBalances: negative}, nil
}
