package model

type SessionStatus string

const (
	SessionStatusActive      SessionStatus = "active"
	SessionStatusExpired     SessionStatus = "expired"
	SessionStatusDeactivated SessionStatus = "deactivated"
)

// IsTerminal reports whether the status is one the session can never leave.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusExpired || s == SessionStatusDeactivated
}

// Contact is a trusted contact attached to a session at creation time.
// The contact list is immutable for the lifetime of the session.
type Contact struct {
	ID        string `db:"id" json:"id"`
	SessionID string `db:"session_id" json:"-"`
	Name      string `db:"name" json:"name"`
	Phone     string `db:"phone" json:"phone"` // E.164
}

// Session is one emergency episode. All timestamps are milliseconds since
// epoch, matching what the mobile and web clients exchange on the wire.
type Session struct {
	ID            string        `db:"id" json:"sessionId"`
	UserFirstName string        `db:"user_first_name" json:"userFirstName"`
	Status        SessionStatus `db:"status" json:"status"`
	PinHash       string        `db:"pin_hash" json:"-"`
	CreatedAt     int64         `db:"created_at" json:"createdAt"`
	ExpiresAt     int64         `db:"expires_at" json:"expiresAt"`
	LastGpsUpdate *int64        `db:"last_gps_update" json:"lastGpsUpdate,omitempty"`
	AlertSentAt   *int64        `db:"alert_sent_at" json:"alertSentAt,omitempty"`
	Contacts      []Contact     `db:"-" json:"contacts,omitempty"`
}

type CreateSessionParams struct {
	ID            string
	UserFirstName string
	PinHash       string
	CreatedAt     int64
	ExpiresAt     int64
	Contacts      []Contact
}

// SessionValidity is the result of checking whether a session may still be
// displayed as live. Reason is set when Valid is false.
type SessionValidity struct {
	Valid   bool     `json:"valid"`
	Reason  string   `json:"reason,omitempty"`
	Session *Session `json:"-"`
}

const (
	ReasonNotFound    = "not_found"
	ReasonExpired     = "expired"
	ReasonDeactivated = "deactivated"
)
