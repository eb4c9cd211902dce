package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Expiry sweep interval: a corrective pass on top of lazy checks.
const SweepJobInterval = time.Hour

// Session defaults
const (
	DefaultSessionDurationMinutes = 60
	MinContacts                   = 1
	MaxContacts                   = 5
)

// GPS track bound returned to consumers.
const GpsTrackLimit = 200

// Pause between per-contact sends, for provider rate limits.
const AlertSendDelay = 200 * time.Millisecond

// Per-IP rate limits
const (
	SessionCreateLimit  = 5
	SessionCreateWindow = time.Hour
	AlertSendLimit      = 10
	AlertSendWindow     = time.Hour
	GeneralLimit        = 100
	GeneralWindow       = 15 * time.Minute
)
