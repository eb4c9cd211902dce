package client

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beaverapp/beaver-server-go/internal/countdown"
	"github.com/beaverapp/beaver-server-go/internal/model"
)

// Alerter drives the full SOS flow: create the session, share position,
// run the cancellation countdown, dispatch alerts if it elapses.
type Alerter struct {
	api   *APIClient
	store *Store
	rt    *Realtime
	gps   GpsSource

	countdown *countdown.Controller

	cancelGps context.CancelFunc
	sessionID string
}

func NewAlerter(api *APIClient, store *Store, rt *Realtime, gps GpsSource) *Alerter {
	return &Alerter{
		api:       api,
		store:     store,
		rt:        rt,
		gps:       gps,
		countdown: countdown.New(countdown.DefaultSeconds),
	}
}

// TriggerSOS starts a session and arms the countdown. The alert only goes
// out to contacts when the countdown elapses uncancelled.
func (a *Alerter) TriggerSOS(ctx context.Context, firstName string, contacts []ContactInput, pin string) (*CreateSessionResponse, error) {
	created, err := a.api.CreateSession(ctx, CreateSessionRequest{
		UserFirstName: firstName,
		Contacts:      contacts,
		PinCode:       pin,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	a.sessionID = created.SessionID

	if err := a.store.Save(&State{
		FirstName: firstName,
		Contacts:  contacts,
		SessionID: created.SessionID,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to persist session state, recovery unavailable")
	}

	if err := a.rt.JoinSession(created.SessionID); err != nil {
		log.Warn().Err(err).Msg("failed to join session room")
	}

	a.startGps(created.SessionID)

	err = a.countdown.Start(func() {
		dispatchCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		result, err := a.api.SendAlert(dispatchCtx, created.SessionID)
		if err != nil {
			log.Error().Err(err).Str("session_id", created.SessionID).Msg("alert dispatch failed")
			return
		}
		log.Info().
			Str("session_id", created.SessionID).
			Int("sent", result.Sent).
			Int("failed", result.Failed).
			Msg("alerts dispatched")
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// CancelCountdown aborts the pending alert. The session stays live; the
// user still has to deactivate with their PIN.
func (a *Alerter) CancelCountdown() {
	a.countdown.Cancel()
}

func (a *Alerter) CountdownRemaining() int {
	return a.countdown.Remaining()
}

// Deactivate tears the session down: cancel any pending alert, stop GPS,
// deactivate server-side with the PIN, clear local state.
func (a *Alerter) Deactivate(ctx context.Context, pin string) error {
	if a.sessionID == "" {
		return ErrNotFound
	}

	a.countdown.Cancel()

	if err := a.api.Deactivate(ctx, a.sessionID, pin); err != nil {
		return err
	}

	if a.cancelGps != nil {
		a.cancelGps()
		a.cancelGps = nil
	}

	if err := a.store.ClearSession(); err != nil {
		log.Warn().Err(err).Msg("failed to clear local session state")
	}

	a.sessionID = ""
	return nil
}

func (a *Alerter) startGps(sessionID string) {
	if a.gps == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancelGps = cancel

	go func() {
		err := a.gps.Watch(ctx, func(pos model.GpsPosition) {
			pos.SessionID = sessionID
			if err := a.rt.SendGpsPosition(pos); err != nil {
				log.Warn().Err(err).Msg("failed to send gps fix")
			}
		})
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("gps watch ended with error")
		}
	}()
}
