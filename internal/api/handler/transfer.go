package handler

import (
	"errors"
	"net/http"

	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/ayo6706/ledger-core/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TransferHandler struct {
	transfers *service.TransferService
	accounts  *service.AccountService
}

func NewTransferHandler(transfers *service.TransferService, accounts *service.AccountService) *TransferHandler {
	return &TransferHandler{transfers: transfers, accounts: accounts}
}

type createTransferRequest struct {
	SenderAccountID   string `json:"sender_account_id"`
	ReceiverAccountID string `json:"receiver_account_id"`
	Amount            string `json:"amount"`
	Strategy          string `json:"strategy,omitempty"`
}

// CreateTransfer moves funds between two accounts. Non-admins may only send from
// their own account.
func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req createTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	senderID, err := uuid.Parse(req.SenderAccountID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid sender_account_id")
		return
	}
	receiverID, err := uuid.Parse(req.ReceiverAccountID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid receiver_account_id")
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", err.Error())
		return
	}
	strategy, ok := domain.ParseStrategy(req.Strategy, h.transfers.DefaultStrategy())
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "transfer/unsupported-strategy", "strategy must be pessimistic or optimistic")
		return
	}

	if !isAdmin {
		sender, err := h.accounts.GetAccount(r.Context(), senderID)
		switch {
		case errors.Is(err, models.ErrNotFound):
			// Let the engine report the missing sender with its usual precedence.
		case err != nil:
			respondServiceError(w, r, err, "transfer authorization lookup failed", zap.String("sender_account_id", senderID.String()))
			return
		case sender.OwnerID != actorID:
			RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "you may only send from your own account")
			return
		}
	}

	transfer, err := h.transfers.Transfer(r.Context(), service.TransferRequest{
		SenderAccountID:   senderID,
		ReceiverAccountID: receiverID,
		Amount:            amount,
		Strategy:          strategy,
	})
	if err != nil {
		respondServiceError(w, r, err, "transfer failed",
			zap.String("sender_account_id", senderID.String()),
			zap.String("receiver_account_id", receiverID.String()),
		)
		return
	}

	RespondJSON(w, http.StatusCreated, newTransferResponse(transfer))
}

// GetTransfer returns a transfer visible to either party or an admin.
func (h *TransferHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	transferID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-transfer-id", "Invalid transfer ID")
		return
	}

	transfer, err := h.transfers.GetTransfer(r.Context(), transferID)
	if err != nil {
		respondServiceError(w, r, err, "get transfer failed", zap.String("transfer_id", transferID.String()))
		return
	}

	if !isAdmin {
		own, err := h.accounts.GetAccountByOwner(r.Context(), actorID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			respondServiceError(w, r, err, "transfer authorization lookup failed", zap.String("transfer_id", transferID.String()))
			return
		}
		if own == nil || (own.ID != transfer.SenderAccountID && own.ID != transfer.ReceiverAccountID) {
			RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
			return
		}
	}

	RespondJSON(w, http.StatusOK, newTransferResponse(transfer))
}
