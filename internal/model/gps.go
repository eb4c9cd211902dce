package model

// GpsPosition is one point sample from the mobile client. Samples are
// immutable once recorded and keyed by (sessionId, timestamp).
type GpsPosition struct {
	SessionID string   `db:"session_id" json:"sessionId"`
	Latitude  float64  `db:"latitude" json:"latitude"`
	Longitude float64  `db:"longitude" json:"longitude"`
	Accuracy  float64  `db:"accuracy" json:"accuracy"` // meters
	Speed     *float64 `db:"speed" json:"speed,omitempty"`     // m/s
	Heading   *float64 `db:"heading" json:"heading,omitempty"` // degrees
	Battery   *int     `db:"battery" json:"battery,omitempty"` // 0-100
	Timestamp int64    `db:"timestamp" json:"timestamp"`       // ms since epoch
}
