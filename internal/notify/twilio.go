package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beaverapp/beaver-server-go/internal/model"
)

const (
	twilioAPIBase    = "https://api.twilio.com/2010-04-01"
	twilioLookupBase = "https://lookups.twilio.com/v2"

	requestTimeout = 15 * time.Second
)

// Provider is the delivery side of the dispatcher: channel capability
// lookup and the actual send.
type Provider interface {
	DetectChannel(ctx context.Context, phone string) (model.AlertChannel, error)
	Send(ctx context.Context, channel model.AlertChannel, contact model.Contact, session *model.Session, trackingURL string) (string, error)
}

// TwilioProvider talks to the Twilio REST API: Lookup v2 for channel
// detection, the Messages endpoint for WhatsApp and SMS delivery.
type TwilioProvider struct {
	accountSID   string
	authToken    string
	whatsappFrom string
	smsFrom      string
	templateSID  string
	apiBase      string
	lookupBase   string
	http         *http.Client
}

func NewTwilioProvider(accountSID, authToken, whatsappFrom, smsFrom, templateSID string) *TwilioProvider {
	return &TwilioProvider{
		accountSID:   accountSID,
		authToken:    authToken,
		whatsappFrom: whatsappFrom,
		smsFrom:      smsFrom,
		templateSID:  templateSID,
		apiBase:      twilioAPIBase,
		lookupBase:   twilioLookupBase,
		http:         &http.Client{Timeout: requestTimeout},
	}
}

type lookupResponse struct {
	LineTypeIntelligence *struct {
		Type string `json:"type"`
	} `json:"line_type_intelligence"`
}

// DetectChannel asks Twilio Lookup for line type intelligence. Mobile and
// personal lines can receive WhatsApp; everything else falls back to SMS.
func (p *TwilioProvider) DetectChannel(ctx context.Context, phone string) (model.AlertChannel, error) {
	u := fmt.Sprintf("%s/PhoneNumbers/%s?Fields=line_type_intelligence", p.lookupBase, url.PathEscape(phone))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.AlertChannelSMS, err
	}
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.http.Do(req)
	if err != nil {
		return model.AlertChannelSMS, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.AlertChannelSMS, fmt.Errorf("lookup returned status %d", resp.StatusCode)
	}

	var lookup lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return model.AlertChannelSMS, err
	}

	if lookup.LineTypeIntelligence != nil {
		switch lookup.LineTypeIntelligence.Type {
		case "mobile", "personal":
			return model.AlertChannelWhatsApp, nil
		}
	}
	return model.AlertChannelSMS, nil
}

type messageResponse struct {
	SID string `json:"sid"`
}

func (p *TwilioProvider) Send(ctx context.Context, channel model.AlertChannel, contact model.Contact, session *model.Session, trackingURL string) (string, error) {
	form := url.Values{}

	if channel == model.AlertChannelWhatsApp {
		form.Set("From", "whatsapp:"+p.whatsappFrom)
		form.Set("To", "whatsapp:"+contact.Phone)
		if p.templateSID != "" {
			// Approved utility template: {{1}} = first name, {{2}} = link.
			vars, _ := json.Marshal(map[string]string{"1": session.UserFirstName, "2": trackingURL})
			form.Set("ContentSid", p.templateSID)
			form.Set("ContentVariables", string(vars))
		} else {
			form.Set("Body", whatsappBody(session.UserFirstName, trackingURL))
		}
	} else {
		form.Set("From", p.smsFrom)
		form.Set("To", contact.Phone)
		form.Set("Body", smsBody(session.UserFirstName, trackingURL))
	}

	u := fmt.Sprintf("%s/Accounts/%s/Messages.json", p.apiBase, p.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.accountSID, p.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("twilio returned status %d", resp.StatusCode)
	}

	var msg messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", err
	}

	log.Info().
		Str("to", contact.Phone).
		Str("channel", string(channel)).
		Str("sid", msg.SID).
		Msg("alert message sent")

	return msg.SID, nil
}

func whatsappBody(firstName, trackingURL string) string {
	return fmt.Sprintf("BEAVER ALERT\n%s needs help!\nFollow their live position:\n%s\n\nTap the link or call 112 (emergency)", firstName, trackingURL)
}

func smsBody(firstName, trackingURL string) string {
	return fmt.Sprintf("SOS BEAVER ALERT\n%s needs help!\nLive position: %s\n\nEmergency: 112 | Police: 17", firstName, trackingURL)
}
