package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/beaverapp/beaver-server-go/internal/model"
)

var (
	ErrIncorrectPIN   = errors.New("incorrect PIN")
	ErrSessionInvalid = errors.New("session is no longer active")
	ErrNotFound       = errors.New("session not found")
)

// APIClient talks to the alert server's HTTP API.
type APIClient struct {
	baseURL string
	http    *http.Client
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type ContactInput struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type CreateSessionRequest struct {
	UserFirstName   string         `json:"userFirstName"`
	Contacts        []ContactInput `json:"contacts"`
	PinCode         string         `json:"pinCode"`
	DurationMinutes int            `json:"durationMinutes,omitempty"`
}

type CreateSessionResponse struct {
	SessionID   string `json:"sessionId"`
	ExpiresAt   int64  `json:"expiresAt"`
	TrackingURL string `json:"trackingUrl"`
}

type SessionInfo struct {
	SessionID     string `json:"sessionId"`
	UserFirstName string `json:"userFirstName"`
	Status        string `json:"status"`
	Valid         bool   `json:"valid"`
	Reason        string `json:"reason"`
	CreatedAt     int64  `json:"createdAt"`
	ExpiresAt     int64  `json:"expiresAt"`
	LastGpsUpdate *int64 `json:"lastGpsUpdate"`
}

type TrackResponse struct {
	SessionID string              `json:"sessionId"`
	Positions []model.GpsPosition `json:"positions"`
}

type AlertResult struct {
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Message string `json:"message"`
}

func (c *APIClient) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error) {
	var resp CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, "/session", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	var resp SessionInfo
	if err := c.do(ctx, http.MethodGet, "/session/"+sessionID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) GetTrack(ctx context.Context, sessionID string) (*TrackResponse, error) {
	var resp TrackResponse
	if err := c.do(ctx, http.MethodGet, "/session/"+sessionID+"/track", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) Deactivate(ctx context.Context, sessionID, pin string) error {
	body := map[string]string{"pin": pin}
	return c.do(ctx, http.MethodPost, "/session/"+sessionID+"/deactivate", body, nil)
}

func (c *APIClient) SendAlert(ctx context.Context, sessionID string) (*AlertResult, error) {
	body := map[string]string{"sessionId": sessionID}
	var resp AlertResult
	if err := c.do(ctx, http.MethodPost, "/alert/send", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrIncorrectPIN
	case resp.StatusCode == http.StatusForbidden:
		return ErrSessionInvalid
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
}
