package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/beaverapp/beaver-server-go/internal/model"
)

type AlertRepository interface {
	Create(ctx context.Context, alert model.Alert) error
	FindBySessionID(ctx context.Context, sessionID string) ([]model.Alert, error)
	WithTx(tx *sqlx.Tx) AlertRepository
}

type alertRepo struct {
	db sessionDB
}

func NewAlertRepository(db *sqlx.DB) AlertRepository {
	return &alertRepo{db: db}
}

func (r *alertRepo) WithTx(tx *sqlx.Tx) AlertRepository {
	return &alertRepo{db: tx}
}

func (r *alertRepo) Create(ctx context.Context, alert model.Alert) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, session_id, contact_phone, channel, status, provider_message_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, alert.ID, alert.SessionID, alert.ContactPhone, alert.Channel, alert.Status, alert.ProviderMessageID, alert.SentAt)
	return err
}

func (r *alertRepo) FindBySessionID(ctx context.Context, sessionID string) ([]model.Alert, error) {
	var alerts []model.Alert
	err := r.db.SelectContext(ctx, &alerts, `
		SELECT id, session_id, contact_phone, channel, status, provider_message_id, sent_at
		FROM alerts
		WHERE session_id = $1
		ORDER BY sent_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return alerts, nil
}
