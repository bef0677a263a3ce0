package handler

import (
	"net/http"

	"github.com/ayo6706/ledger-core/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AdminHandler struct {
	outbox *service.OutboxService
	recon  *service.ReconciliationService
}

func NewAdminHandler(outbox *service.OutboxService, recon *service.ReconciliationService) *AdminHandler {
	return &AdminHandler{outbox: outbox, recon: recon}
}

// RequeueOutboxEvent gives a FAILED outbox event a fresh attempt budget.
func (h *AdminHandler) RequeueOutboxEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-event-id", "Invalid event ID")
		return
	}

	event, err := h.outbox.Requeue(r.Context(), eventID)
	if err != nil {
		respondServiceError(w, r, err, "requeue outbox event failed", zap.String("event_id", eventID.String()))
		return
	}
	RespondJSON(w, http.StatusOK, event)
}

// Reconcile runs a conservation check on demand.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.recon.Run(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "on-demand reconciliation failed")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"accounts":        report.Accounts,
		"total_balance":   report.TotalBalance,
		"opening_balance": report.OpeningBalance,
		"balanced":        report.Balanced,
		"drifted_ids":     report.DriftedIDs,
	})
}
