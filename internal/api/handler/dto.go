package handler

import (
	"time"

	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/google/uuid"
)

// Amounts and balances are rendered as fixed-scale decimal strings, e.g. "100.0000".

type transferResponse struct {
	ID                uuid.UUID `json:"id"`
	SenderAccountID   uuid.UUID `json:"sender_account_id"`
	ReceiverAccountID uuid.UUID `json:"receiver_account_id"`
	Amount            string    `json:"amount"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

func newTransferResponse(t *models.Transfer) transferResponse {
	return transferResponse{
		ID:                t.ID,
		SenderAccountID:   t.SenderAccountID,
		ReceiverAccountID: t.ReceiverAccountID,
		Amount:            domain.FormatAmount(t.Amount),
		Status:            t.Status,
		CreatedAt:         t.CreatedAt,
	}
}

type accountResponse struct {
	ID             uuid.UUID `json:"id"`
	OwnerID        uuid.UUID `json:"owner_id"`
	Balance        string    `json:"balance"`
	OpeningBalance string    `json:"opening_balance"`
	Currency       string    `json:"currency"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func newAccountResponse(a *models.Account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		OwnerID:        a.OwnerID,
		Balance:        domain.FormatAmount(a.Balance),
		OpeningBalance: domain.FormatAmount(a.OpeningBalance),
		Currency:       a.Currency,
		Version:        a.Version,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

type transferPageResponse struct {
	Items    []transferResponse `json:"items"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Total    int64              `json:"total"`
}
