package model

type AlertChannel string

const (
	AlertChannelWhatsApp AlertChannel = "whatsapp"
	AlertChannelSMS      AlertChannel = "sms"
)

type AlertStatus string

const (
	AlertStatusSent   AlertStatus = "sent"
	AlertStatusFailed AlertStatus = "failed"
	// AlertStatusDelivered is reserved for a future webhook-driven
	// confirmation flow. The dispatcher never produces it.
	AlertStatusDelivered AlertStatus = "delivered"
)

// Alert records one delivery attempt to one contact. Rows are append-only:
// a delivery status upgrade would be a new row, not an in-place edit.
type Alert struct {
	ID                string       `db:"id" json:"id"`
	SessionID         string       `db:"session_id" json:"sessionId"`
	ContactPhone      string       `db:"contact_phone" json:"contactPhone"`
	Channel           AlertChannel `db:"channel" json:"channel"`
	Status            AlertStatus  `db:"status" json:"status"`
	ProviderMessageID *string      `db:"provider_message_id" json:"providerMessageId,omitempty"`
	SentAt            int64        `db:"sent_at" json:"sentAt"`
}
