package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                 int    `env:"PORT" envDefault:"8080"`
	DatabaseURL          string `env:"DATABASE_URL,required"`
	RedisURL             string `env:"REDIS_URL,required"`
	WebBaseURL           string `env:"WEB_BASE_URL" envDefault:"https://beaver.app"`
	TwilioAccountSID     string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken      string `env:"TWILIO_AUTH_TOKEN"`
	TwilioWhatsAppNumber string `env:"TWILIO_WHATSAPP_NUMBER"`
	TwilioPhoneNumber    string `env:"TWILIO_PHONE_NUMBER"`
	WhatsAppTemplateSID  string `env:"WHATSAPP_TEMPLATE_SID"`
	LogLevel             string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// TrackingURL builds the link sent to contacts for one session.
func (c *Config) TrackingURL(sessionID string) string {
	return fmt.Sprintf("%s/s/%s", strings.TrimRight(c.WebBaseURL, "/"), sessionID)
}

func (c *Config) Validate(isProduction bool) error {
	if isProduction {
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" {
			return fmt.Errorf("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required in production")
		}
		if c.TwilioPhoneNumber == "" {
			return fmt.Errorf("TWILIO_PHONE_NUMBER is required in production")
		}
		if c.WhatsAppTemplateSID == "" {
			log.Warn().Msg("WHATSAPP_TEMPLATE_SID is empty in production: WhatsApp sends will use free-form bodies (sandbox only)")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
