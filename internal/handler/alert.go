package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/beaverapp/beaver-server-go/internal/audit"
	apperrors "github.com/beaverapp/beaver-server-go/internal/errors"
	"github.com/beaverapp/beaver-server-go/internal/model"
	"github.com/beaverapp/beaver-server-go/internal/notify"
	"github.com/beaverapp/beaver-server-go/internal/service"
	"github.com/beaverapp/beaver-server-go/internal/util"
)

type AlertHandler struct {
	sessionService *service.SessionService
	dispatcher     *notify.Dispatcher
}

func NewAlertHandler(sessionService *service.SessionService, dispatcher *notify.Dispatcher) *AlertHandler {
	return &AlertHandler{
		sessionService: sessionService,
		dispatcher:     dispatcher,
	}
}

func (h *AlertHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/send", h.SendAlert)

	return r
}

type sendAlertRequest struct {
	SessionID string `json:"sessionId"`
}

// POST /alert/send
func (h *AlertHandler) SendAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req sendAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}
	if !util.IsValidUUID(req.SessionID) {
		writeError(w, apperrors.InvalidInput("sessionId", "must be a UUID"))
		return
	}

	validity, err := h.sessionService.IsSessionValid(ctx, req.SessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", req.SessionID).Msg("failed to check session before dispatch")
		writeError(w, err)
		return
	}
	if !validity.Valid {
		writeError(w, apperrors.SessionInvalid(validity.Reason))
		return
	}

	alerts := h.dispatcher.SendAlertsToContacts(ctx, validity.Session)

	sent, failed := 0, 0
	for _, a := range alerts {
		if a.Status == model.AlertStatusSent {
			sent++
		} else {
			failed++
		}
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventAlertDispatch,
		SessionID: req.SessionID,
		Details:   map[string]interface{}{"sent": sent, "failed": failed},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"sent":    sent,
		"failed":  failed,
		"message": fmt.Sprintf("Alerts sent to %d of %d contacts", sent, sent+failed),
	})
}
