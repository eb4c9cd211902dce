package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/beaverapp/beaver-server-go/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	// TransitionStatus moves a session from one status to another and
	// reports whether a row actually changed. The WHERE clause on the
	// current status makes the transition atomic under concurrent writers.
	TransitionStatus(ctx context.Context, id string, from, to model.SessionStatus) (bool, error)
	MarkExpiredBatch(ctx context.Context, nowMs int64) (int64, error)
	SetLastGpsUpdate(ctx context.Context, id string, timestampMs int64) error
	SetAlertSentAt(ctx context.Context, id string, timestampMs int64) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sessionDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE id = $1
	`, id)
	found, err := HandleNotFound(&session, err)
	if found == nil || err != nil {
		return nil, err
	}

	var contacts []model.Contact
	err = r.db.SelectContext(ctx, &contacts, `
		SELECT id, session_id, name, phone FROM session_contacts
		WHERE session_id = $1
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, err
	}
	session.Contacts = contacts

	return &session, nil
}

// Create inserts the session row and its contacts atomically. The contact
// list is fixed at creation; a session must never become visible with only
// part of it.
func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	db, ok := r.db.(*sqlx.DB)
	if !ok {
		// Already running inside a caller-managed transaction.
		return insertSessionWithContacts(ctx, r.db, params)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}

	session, err := insertSessionWithContacts(ctx, tx, params)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return session, nil
}

func insertSessionWithContacts(ctx context.Context, db sessionDB, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := db.GetContext(ctx, &session, `
		INSERT INTO sessions (id, user_first_name, status, pin_hash, created_at, expires_at)
		VALUES ($1, $2, 'active', $3, $4, $5)
		RETURNING *
	`, params.ID, params.UserFirstName, params.PinHash, params.CreatedAt, params.ExpiresAt)
	if err != nil {
		return nil, err
	}

	for i, c := range params.Contacts {
		_, err := db.ExecContext(ctx, `
			INSERT INTO session_contacts (id, session_id, name, phone, position)
			VALUES ($1, $2, $3, $4, $5)
		`, c.ID, params.ID, c.Name, c.Phone, i)
		if err != nil {
			return nil, err
		}
	}
	session.Contacts = params.Contacts

	return &session, nil
}

func (r *sessionRepo) TransitionStatus(ctx context.Context, id string, from, to model.SessionStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = $3
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *sessionRepo) MarkExpiredBatch(ctx context.Context, nowMs int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = 'expired'
		WHERE status = 'active' AND expires_at < $1
	`, nowMs)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) SetLastGpsUpdate(ctx context.Context, id string, timestampMs int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET last_gps_update = $2 WHERE id = $1
	`, id, timestampMs)
	return err
}

func (r *sessionRepo) SetAlertSentAt(ctx context.Context, id string, timestampMs int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET alert_sent_at = $2 WHERE id = $1
	`, id, timestampMs)
	return err
}
