package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/beaverapp/beaver-server-go/internal/audit"
	"github.com/beaverapp/beaver-server-go/internal/config"
	apperrors "github.com/beaverapp/beaver-server-go/internal/errors"
	"github.com/beaverapp/beaver-server-go/internal/model"
	"github.com/beaverapp/beaver-server-go/internal/relay"
	"github.com/beaverapp/beaver-server-go/internal/service"
	"github.com/beaverapp/beaver-server-go/internal/util"
)

type SessionHandler struct {
	sessionService *service.SessionService
	broker         *relay.Broker
	cfg            *config.Config
}

func NewSessionHandler(sessionService *service.SessionService, broker *relay.Broker, cfg *config.Config) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		broker:         broker,
		cfg:            cfg,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateSession)
	r.Get("/{sessionID}", h.GetSession)
	r.Get("/{sessionID}/track", h.GetTrack)
	r.Post("/{sessionID}/deactivate", h.Deactivate)

	return r
}

type createSessionRequest struct {
	UserFirstName   string           `json:"userFirstName"`
	Contacts        []contactPayload `json:"contacts"`
	PinCode         string           `json:"pinCode"`
	DurationMinutes int              `json:"durationMinutes"`
}

type contactPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// POST /session
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}

	if req.UserFirstName == "" {
		writeError(w, apperrors.MissingRequired("userFirstName"))
		return
	}
	if len(req.Contacts) < config.MinContacts || len(req.Contacts) > config.MaxContacts {
		writeError(w, apperrors.InvalidInput("contacts", "between 1 and 5 contacts are required"))
		return
	}
	for _, c := range req.Contacts {
		if c.Name == "" {
			writeError(w, apperrors.MissingRequired("contact name"))
			return
		}
		if !util.IsValidPhone(c.Phone) {
			writeError(w, apperrors.InvalidInput("phone", "must be E.164 format, e.g. +33612345678"))
			return
		}
	}
	if !util.IsValidPin(req.PinCode) {
		writeError(w, apperrors.InvalidInput("pinCode", "must be exactly 4 digits"))
		return
	}

	contacts := make([]model.Contact, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		contacts = append(contacts, model.Contact{Name: c.Name, Phone: c.Phone})
	}

	session, err := h.sessionService.CreateSession(ctx, service.CreateSessionInput{
		UserFirstName:   req.UserFirstName,
		Contacts:        contacts,
		PinCode:         req.PinCode,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create session")
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionCreate,
		SessionID: session.ID,
		Details:   map[string]interface{}{"contacts": len(session.Contacts)},
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId":   session.ID,
		"expiresAt":   session.ExpiresAt,
		"trackingUrl": h.cfg.TrackingURL(session.ID),
	})
}

// GET /session/{sessionID}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !util.IsValidUUID(sessionID) {
		writeError(w, apperrors.InvalidInput("sessionId", "must be a UUID"))
		return
	}

	validity, err := h.sessionService.IsSessionValid(r.Context(), sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to check session")
		writeError(w, err)
		return
	}
	if validity.Session == nil {
		writeError(w, apperrors.NotFound("Session"))
		return
	}

	session := validity.Session
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":     session.ID,
		"userFirstName": session.UserFirstName,
		"status":        session.Status,
		"valid":         validity.Valid,
		"reason":        validity.Reason,
		"createdAt":     session.CreatedAt,
		"expiresAt":     session.ExpiresAt,
		"lastGpsUpdate": session.LastGpsUpdate,
	})
}

// GET /session/{sessionID}/track
func (h *SessionHandler) GetTrack(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !util.IsValidUUID(sessionID) {
		writeError(w, apperrors.InvalidInput("sessionId", "must be a UUID"))
		return
	}

	ctx := r.Context()
	session, err := h.sessionService.GetSession(ctx, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if session == nil {
		writeError(w, apperrors.NotFound("Session"))
		return
	}

	track, err := h.sessionService.GetSessionTrack(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to load gps track")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"positions": track,
	})
}

type deactivateRequest struct {
	Pin string `json:"pin"`
	// Older app builds sent pinCode; accept both.
	PinCode string `json:"pinCode"`
}

func (r deactivateRequest) pin() string {
	if r.Pin != "" {
		return r.Pin
	}
	return r.PinCode
}

// POST /session/{sessionID}/deactivate
func (h *SessionHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !util.IsValidUUID(sessionID) {
		writeError(w, apperrors.InvalidInput("sessionId", "must be a UUID"))
		return
	}

	var req deactivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}
	if !util.IsValidPin(req.pin()) {
		writeError(w, apperrors.InvalidInput("pin", "must be exactly 4 digits"))
		return
	}

	ctx := r.Context()
	if err := h.sessionService.Deactivate(ctx, sessionID, req.pin()); err != nil {
		if apperrors.GetCode(err) == apperrors.ErrCodeIncorrectPIN {
			audit.LogFromRequest(r, audit.Event{
				Type:      audit.EventPinFailure,
				SessionID: sessionID,
			})
		}
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionDeactivate,
		SessionID: sessionID,
	})

	// Watchers in the room learn the session ended without polling.
	if err := h.broker.BroadcastSessionStatus(ctx, sessionID, model.SessionStatusDeactivated); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to broadcast deactivation")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Session deactivated",
	})
}
