package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/ledger-core/internal/api/middleware"
	"github.com/ayo6706/ledger-core/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AuthHandler struct {
	accounts *service.AccountService
	auth     *middleware.Authenticator
}

func NewAuthHandler(accounts *service.AccountService, auth *middleware.Authenticator) *AuthHandler {
	return &AuthHandler{accounts: accounts, auth: auth}
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken is a mock login: any active owner id gets a token.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID string `json:"owner_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-owner-id", "Invalid owner_id")
		return
	}

	owner, err := h.accounts.GetOwner(r.Context(), ownerID)
	if err != nil {
		respondServiceError(w, r, err, "token owner lookup failed", zap.String("owner_id", ownerID.String()))
		return
	}
	if !owner.IsActive {
		RespondError(w, r, http.StatusForbidden, "auth/owner-inactive", "owner is not active")
		return
	}

	token, expires, err := h.auth.Issue(owner.ID, owner.Role)
	if err != nil {
		respondServiceError(w, r, err, "issue token failed")
		return
	}
	RespondJSON(w, http.StatusOK, tokenResponse{Token: token, TokenType: "Bearer", ExpiresAt: expires})
}
