package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/beaverapp/beaver-server-go/internal/model"
)

type GpsRepository interface {
	// Insert appends a position. A duplicate (sessionId, timestamp) key is
	// ignored: resent packets from a flaky mobile link are not an error.
	Insert(ctx context.Context, pos model.GpsPosition) error
	// FindBySessionID returns the most recent limit positions in ascending
	// timestamp order.
	FindBySessionID(ctx context.Context, sessionID string, limit int) ([]model.GpsPosition, error)
	WithTx(tx *sqlx.Tx) GpsRepository
}

type gpsRepo struct {
	db sessionDB
}

func NewGpsRepository(db *sqlx.DB) GpsRepository {
	return &gpsRepo{db: db}
}

func (r *gpsRepo) WithTx(tx *sqlx.Tx) GpsRepository {
	return &gpsRepo{db: tx}
}

func (r *gpsRepo) Insert(ctx context.Context, pos model.GpsPosition) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO gps_positions (session_id, timestamp, latitude, longitude, accuracy, speed, heading, battery)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, timestamp) DO NOTHING
	`, pos.SessionID, pos.Timestamp, pos.Latitude, pos.Longitude, pos.Accuracy, pos.Speed, pos.Heading, pos.Battery)
	return err
}

func (r *gpsRepo) FindBySessionID(ctx context.Context, sessionID string, limit int) ([]model.GpsPosition, error) {
	var positions []model.GpsPosition
	err := r.db.SelectContext(ctx, &positions, `
		SELECT * FROM (
			SELECT session_id, timestamp, latitude, longitude, accuracy, speed, heading, battery
			FROM gps_positions
			WHERE session_id = $1
			ORDER BY timestamp DESC
			LIMIT $2
		) recent
		ORDER BY timestamp ASC
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return positions, nil
}
