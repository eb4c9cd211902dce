package client

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/beaverapp/beaver-server-go/internal/model"
)

// GpsSource emits position fixes until its context is cancelled.
type GpsSource interface {
	Watch(ctx context.Context, emit func(pos model.GpsPosition)) error
}

// AudioStreamer restarts the one-way audio feed. Failure is acceptable;
// the session survives without audio.
type AudioStreamer interface {
	Resume(ctx context.Context, sessionID string) error
}

// Recoverer restores a live session after an app restart: rejoin the
// room, resume GPS, best-effort audio. It runs at most once per process.
type Recoverer struct {
	api   *APIClient
	store *Store
	rt    *Realtime
	gps   GpsSource
	audio AudioStreamer

	once      sync.Once
	recovered bool
}

func NewRecoverer(api *APIClient, store *Store, rt *Realtime, gps GpsSource, audio AudioStreamer) *Recoverer {
	return &Recoverer{
		api:   api,
		store: store,
		rt:    rt,
		gps:   gps,
		audio: audio,
	}
}

// Recover returns true when a session was restored. A stored session that
// turns out to be expired or deactivated is discarded from local state.
func (r *Recoverer) Recover(ctx context.Context) (bool, error) {
	var outErr error
	r.once.Do(func() {
		outErr = r.recover(ctx)
	})
	return r.recovered, outErr
}

func (r *Recoverer) recover(ctx context.Context) error {
	state, err := r.store.Load()
	if err != nil {
		return err
	}
	if state == nil || state.SessionID == "" {
		return nil
	}

	info, err := r.api.GetSession(ctx, state.SessionID)
	if err != nil {
		if err == ErrNotFound {
			log.Info().Str("session_id", state.SessionID).Msg("stored session gone, clearing")
			return r.store.ClearSession()
		}
		return err
	}

	if !info.Valid {
		log.Info().
			Str("session_id", state.SessionID).
			Str("reason", info.Reason).
			Msg("stored session no longer live, clearing")
		return r.store.ClearSession()
	}

	if err := r.rt.JoinSession(state.SessionID); err != nil {
		return err
	}

	go r.resumeGps(ctx, state.SessionID)

	if r.audio != nil {
		if err := r.audio.Resume(ctx, state.SessionID); err != nil {
			log.Warn().Err(err).Str("session_id", state.SessionID).Msg("audio resume failed, continuing without audio")
		}
	}

	r.recovered = true
	log.Info().Str("session_id", state.SessionID).Msg("session recovered")
	return nil
}

func (r *Recoverer) resumeGps(ctx context.Context, sessionID string) {
	if r.gps == nil {
		return
	}
	err := r.gps.Watch(ctx, func(pos model.GpsPosition) {
		pos.SessionID = sessionID
		if err := r.rt.SendGpsPosition(pos); err != nil {
			log.Warn().Err(err).Msg("failed to send recovered gps fix")
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("gps watch ended with error")
	}
}
