package handler

import (
	"net/http"

	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/ayo6706/ledger-core/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OwnerHandler struct {
	accounts *service.AccountService
}

func NewOwnerHandler(accounts *service.AccountService) *OwnerHandler {
	return &OwnerHandler{accounts: accounts}
}

type createOwnerRequest struct {
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	Currency       string `json:"currency"`
	OpeningBalance string `json:"opening_balance"`
}

type createOwnerResponse struct {
	Owner   *models.Owner   `json:"owner"`
	Account accountResponse `json:"account"`
}

// CreateOwner registers an owner together with their single account.
func (h *OwnerHandler) CreateOwner(w http.ResponseWriter, r *http.Request) {
	var req createOwnerRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	opening := decimal.Zero
	if req.OpeningBalance != "" {
		parsed, err := domain.ParseAmount(req.OpeningBalance)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", err.Error())
			return
		}
		opening = parsed
	}

	owner, account, err := h.accounts.OpenAccount(r.Context(), service.OpenAccountRequest{
		Email:          req.Email,
		FullName:       req.FullName,
		Currency:       req.Currency,
		OpeningBalance: opening,
		Role:           domain.RoleUser,
	})
	if err != nil {
		respondServiceError(w, r, err, "open account failed")
		return
	}

	zap.L().Info("owner registered",
		zap.String("owner_id", owner.ID.String()),
		zap.String("account_id", account.ID.String()),
	)
	RespondJSON(w, http.StatusCreated, createOwnerResponse{Owner: owner, Account: newAccountResponse(account)})
}
