package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/beaverapp/beaver-server-go/internal/audit"
	"github.com/beaverapp/beaver-server-go/internal/config"
	apperrors "github.com/beaverapp/beaver-server-go/internal/errors"
	"github.com/beaverapp/beaver-server-go/internal/model"
	"github.com/beaverapp/beaver-server-go/internal/repository"
	"github.com/beaverapp/beaver-server-go/internal/util"
)

type CreateSessionInput struct {
	UserFirstName   string
	Contacts        []model.Contact
	PinCode         string
	DurationMinutes int
}

type SessionService struct {
	sessionRepo repository.SessionRepository
	gpsRepo     repository.GpsRepository
	now         func() time.Time
}

func NewSessionService(sessionRepo repository.SessionRepository, gpsRepo repository.GpsRepository) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		gpsRepo:     gpsRepo,
		now:         time.Now,
	}
}

// CreateSession stores a new active session. Input shape validation (contact
// count, phone format, PIN format) is the handler's responsibility; the
// service only derives ids, hashes the PIN and computes the expiry.
func (s *SessionService) CreateSession(ctx context.Context, input CreateSessionInput) (*model.Session, error) {
	pinHash, err := util.HashPin(input.PinCode)
	if err != nil {
		return nil, fmt.Errorf("hash pin: %w", err)
	}

	duration := input.DurationMinutes
	if duration <= 0 {
		duration = config.DefaultSessionDurationMinutes
	}

	sessionID := uuid.NewString()
	now := s.now().UnixMilli()

	contacts := make([]model.Contact, len(input.Contacts))
	for i, c := range input.Contacts {
		contacts[i] = model.Contact{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Name:      c.Name,
			Phone:     c.Phone,
		}
	}

	session, err := s.sessionRepo.Create(ctx, model.CreateSessionParams{
		ID:            sessionID,
		UserFirstName: input.UserFirstName,
		PinHash:       pinHash,
		CreatedAt:     now,
		ExpiresAt:     now + int64(duration)*60_000,
		Contacts:      contacts,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	log.Info().
		Str("sessionId", session.ID).
		Int("contacts", len(contacts)).
		Int64("expiresAt", session.ExpiresAt).
		Msg("session created")

	return session, nil
}

func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.sessionRepo.FindByID(ctx, sessionID)
}

// IsSessionValid checks whether a session may still be shown as live. A
// session past its expiry is lazily transitioned to expired and persisted
// before the result is returned.
func (s *SessionService) IsSessionValid(ctx context.Context, sessionID string) (model.SessionValidity, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return model.SessionValidity{}, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return model.SessionValidity{Valid: false, Reason: model.ReasonNotFound}, nil
	}

	switch session.Status {
	case model.SessionStatusExpired:
		return model.SessionValidity{Valid: false, Reason: model.ReasonExpired, Session: session}, nil
	case model.SessionStatusDeactivated:
		return model.SessionValidity{Valid: false, Reason: model.ReasonDeactivated, Session: session}, nil
	}

	if s.now().UnixMilli() > session.ExpiresAt {
		if _, err := s.sessionRepo.TransitionStatus(ctx, session.ID, model.SessionStatusActive, model.SessionStatusExpired); err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to persist lazy expiry")
		}
		session.Status = model.SessionStatusExpired
		audit.Log(ctx, audit.Event{Type: audit.EventSessionExpire, SessionID: session.ID})
		return model.SessionValidity{Valid: false, Reason: model.ReasonExpired, Session: session}, nil
	}

	return model.SessionValidity{Valid: true, Session: session}, nil
}

// Deactivate verifies the PIN and transitions the session to deactivated.
// Repeating the call with the correct PIN on an already-terminal session is
// a no-op success; an incorrect PIN never changes anything.
func (s *SessionService) Deactivate(ctx context.Context, sessionID, pin string) error {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil {
		return apperrors.NotFound("Session")
	}

	if !util.CheckPin(session.PinHash, pin) {
		log.Warn().Str("sessionId", sessionID).Msg("deactivation attempt with incorrect pin")
		return apperrors.IncorrectPIN()
	}

	changed, err := s.sessionRepo.TransitionStatus(ctx, sessionID, model.SessionStatusActive, model.SessionStatusDeactivated)
	if err != nil {
		return apperrors.Database(err)
	}
	if changed {
		log.Info().Str("sessionId", sessionID).Msg("session deactivated")
	}
	// Not changed means the session already reached a terminal state; the
	// PIN was correct, so the caller gets the same success either way.
	return nil
}

// RecordGpsPosition appends a sample and bumps the session's lastGpsUpdate.
// Writes against non-active sessions are accepted: late packets from a
// recently-deactivated device must not be dropped destructively.
func (s *SessionService) RecordGpsPosition(ctx context.Context, pos model.GpsPosition) error {
	if err := s.gpsRepo.Insert(ctx, pos); err != nil {
		return fmt.Errorf("insert gps position: %w", err)
	}
	if err := s.sessionRepo.SetLastGpsUpdate(ctx, pos.SessionID, pos.Timestamp); err != nil {
		return fmt.Errorf("update last gps timestamp: %w", err)
	}
	return nil
}

func (s *SessionService) GetSessionTrack(ctx context.Context, sessionID string) ([]model.GpsPosition, error) {
	return s.gpsRepo.FindBySessionID(ctx, sessionID, config.GpsTrackLimit)
}

// SweepExpiredSessions batch-transitions overdue active sessions. Runs on a
// fixed interval as a corrective pass independent of lazy checks.
func (s *SessionService) SweepExpiredSessions(ctx context.Context) (int64, error) {
	count, err := s.sessionRepo.MarkExpiredBatch(ctx, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("mark expired sessions: %w", err)
	}
	return count, nil
}
