package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/beaverapp/beaver-server-go/internal/config"
	"github.com/beaverapp/beaver-server-go/internal/model"
)

// AlertRecorder persists one alert record per delivery attempt.
type AlertRecorder interface {
	Create(ctx context.Context, alert model.Alert) error
}

// SessionStamper marks the session once a dispatch run finishes.
type SessionStamper interface {
	SetAlertSentAt(ctx context.Context, id string, timestampMs int64) error
}

// Dispatcher fans an SOS out to a session's contacts one by one.
// A failed contact never aborts the run; the remaining contacts are
// still attempted and the failures are recorded alongside successes.
type Dispatcher struct {
	provider    Provider
	alerts      AlertRecorder
	sessions    SessionStamper
	trackingURL func(sessionID string) string

	sendDelay time.Duration
	now       func() time.Time
}

func NewDispatcher(provider Provider, alerts AlertRecorder, sessions SessionStamper, trackingURL func(string) string) *Dispatcher {
	return &Dispatcher{
		provider:    provider,
		alerts:      alerts,
		sessions:    sessions,
		trackingURL: trackingURL,
		sendDelay:   config.AlertSendDelay,
		now:         time.Now,
	}
}

// SendAlertsToContacts delivers the alert to each contact sequentially,
// pausing between sends to stay under the provider's rate limits. Every
// attempt produces an alert record, sent or failed.
func (d *Dispatcher) SendAlertsToContacts(ctx context.Context, session *model.Session) []model.Alert {
	trackingURL := d.trackingURL(session.ID)
	alerts := make([]model.Alert, 0, len(session.Contacts))

	for i, contact := range session.Contacts {
		if i > 0 && d.sendDelay > 0 {
			time.Sleep(d.sendDelay)
		}

		channel, err := d.provider.DetectChannel(ctx, contact.Phone)
		if err != nil {
			log.Warn().Err(err).
				Str("phone", contact.Phone).
				Msg("channel detection failed, falling back to sms")
			channel = model.AlertChannelSMS
		}

		alert := model.Alert{
			ID:           uuid.NewString(),
			SessionID:    session.ID,
			ContactPhone: contact.Phone,
			Channel:      channel,
			Status:       model.AlertStatusSent,
			SentAt:       d.now().UnixMilli(),
		}

		sid, err := d.provider.Send(ctx, channel, contact, session, trackingURL)
		if err != nil {
			log.Error().Err(err).
				Str("session_id", session.ID).
				Str("phone", contact.Phone).
				Msg("failed to send alert to contact")
			alert.Status = model.AlertStatusFailed
		} else {
			alert.ProviderMessageID = &sid
		}

		if err := d.alerts.Create(ctx, alert); err != nil {
			log.Error().Err(err).
				Str("session_id", session.ID).
				Str("phone", contact.Phone).
				Msg("failed to record alert")
		}

		alerts = append(alerts, alert)
	}

	if err := d.sessions.SetAlertSentAt(ctx, session.ID, d.now().UnixMilli()); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("failed to stamp alert time on session")
	}

	sent, failed := 0, 0
	for _, a := range alerts {
		if a.Status == model.AlertStatusSent {
			sent++
		} else {
			failed++
		}
	}
	log.Info().
		Str("session_id", session.ID).
		Int("sent", sent).
		Int("failed", failed).
		Msg("alert dispatch completed")

	return alerts
}
