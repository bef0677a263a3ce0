package repository

import (
	"context"

	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/shopspring/decimal"
)

type LedgerTotals struct {
	Accounts       int64
	Balance        decimal.Decimal
	OpeningBalance decimal.Decimal
}

const getLedgerTotals = `-- name: GetLedgerTotals :one
SELECT COUNT(*), COALESCE(SUM(balance), 0), COALESCE(SUM(opening_balance), 0)
FROM accounts
`

func (q *Queries) GetLedgerTotals(ctx context.Context) (LedgerTotals, error) {
	var t LedgerTotals
	err := q.db.QueryRow(ctx, getLedgerTotals).Scan(&t.Accounts, &t.Balance, &t.OpeningBalance)
	return t, classifyError(err)
}

const getAccountDrifts = `-- name: GetAccountDrifts :many
WITH movements AS (
    SELECT receiver_account_id AS account_id, amount AS delta
    FROM transfers WHERE status = 'COMPLETED'
    UNION ALL
    SELECT sender_account_id, -amount
    FROM transfers WHERE status = 'COMPLETED'
)
SELECT a.id, a.balance, a.opening_balance + COALESCE(SUM(m.delta), 0) AS expected
FROM accounts a
LEFT JOIN movements m ON m.account_id = a.id
GROUP BY a.id, a.balance, a.opening_balance
HAVING a.balance <> a.opening_balance + COALESCE(SUM(m.delta), 0)
ORDER BY a.id
LIMIT $1
`

// GetAccountDrifts lists accounts whose balance differs from their opening balance
// plus the net of their completed transfers.
func (q *Queries) GetAccountDrifts(ctx context.Context, limit int32) ([]models.AccountDrift, error) {
	rows, err := q.db.Query(ctx, getAccountDrifts, limit)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	items := []models.AccountDrift{}
	for rows.Next() {
		var d models.AccountDrift
		if err := rows.Scan(&d.AccountID, &d.Balance, &d.Expected); err != nil {
			return nil, classifyError(err)
		}
		items = append(items, d)
	}
	return items, classifyError(rows.Err())
}
