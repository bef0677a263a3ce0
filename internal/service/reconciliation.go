package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/ayo6706/ledger-core/internal/observability"
	"go.uber.org/zap"
)

const maxReportedDrifts = 100

// ReconciliationReport summarises one conservation check over committed state.
type ReconciliationReport struct {
	Accounts       int64
	TotalBalance   string
	OpeningBalance string
	Balanced       bool
	DriftedIDs     []string
}

// ReconciliationService verifies ledger integrity invariants.
type ReconciliationService struct {
	store QueryStore
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run checks that total balances equal total opening balances and that every
// account's balance equals its opening balance plus completed transfers in minus out.
func (s *ReconciliationService) Run(ctx context.Context) (*ReconciliationReport, error) {
	queries := s.store.Queries()
	totals, err := queries.GetLedgerTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("run ledger totals query: %w", err)
	}

	report := &ReconciliationReport{
		Accounts:       totals.Accounts,
		TotalBalance:   domain.FormatAmount(totals.Balance),
		OpeningBalance: domain.FormatAmount(totals.OpeningBalance),
		Balanced:       true,
	}

	if !totals.Balance.Equal(totals.OpeningBalance) {
		report.Balanced = false
		observability.IncrementLedgerImbalance("global")
		zap.L().Error("CRITICAL: ledger imbalance detected",
			zap.String("total_balance", report.TotalBalance),
			zap.String("total_opening_balance", report.OpeningBalance),
		)
	}

	drifts, err := queries.GetAccountDrifts(ctx, maxReportedDrifts)
	if err != nil {
		return nil, fmt.Errorf("run account drift query: %w", err)
	}
	for _, d := range drifts {
		report.Balanced = false
		report.DriftedIDs = append(report.DriftedIDs, d.AccountID.String())
		observability.IncrementLedgerImbalance("account")
		zap.L().Error("account balance drift",
			zap.String("account_id", d.AccountID.String()),
			zap.String("balance", domain.FormatAmount(d.Balance)),
			zap.String("expected", domain.FormatAmount(d.Expected)),
		)
	}

	if report.Balanced {
		zap.L().Info("Ledger Balanced", zap.Int64("accounts", totals.Accounts))
	}
	return report, nil
}
