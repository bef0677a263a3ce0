package handler

import (
	"net/http"
	"strconv"

	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/ayo6706/ledger-core/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AccountHandler struct {
	svc *service.AccountService
}

func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

// authorizedAccount loads the account in the URL and checks the caller may see it.
// It writes the error response itself and returns nil on failure.
func (h *AccountHandler) authorizedAccount(w http.ResponseWriter, r *http.Request) *models.Account {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return nil
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account ID")
		return nil
	}

	account, err := h.svc.GetAccount(r.Context(), accountID)
	if err != nil {
		respondServiceError(w, r, err, "get account failed", zap.String("account_id", accountID.String()))
		return nil
	}
	if !isAdmin && account.OwnerID != actorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return nil
	}
	return account
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account := h.authorizedAccount(w, r)
	if account == nil {
		return
	}
	RespondJSON(w, http.StatusOK, newAccountResponse(account))
}

// ListTransfers pages through the account's transfers, newest first.
func (h *AccountHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	account := h.authorizedAccount(w, r)
	if account == nil {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	result, err := h.svc.ListTransfers(r.Context(), account.ID, page, pageSize)
	if err != nil {
		respondServiceError(w, r, err, "list transfers failed", zap.String("account_id", account.ID.String()))
		return
	}

	resp := transferPageResponse{
		Items:    make([]transferResponse, 0, len(result.Items)),
		Page:     result.Page,
		PageSize: result.PageSize,
		Total:    result.Total,
	}
	for i := range result.Items {
		resp.Items = append(resp.Items, newTransferResponse(&result.Items[i]))
	}
	RespondJSON(w, http.StatusOK, resp)
}
