package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClient_CreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/session", r.URL.Path)

		var req CreateSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Marie", req.UserFirstName)
		assert.Equal(t, "4242", req.PinCode)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(CreateSessionResponse{
			SessionID:   "abc-123",
			ExpiresAt:   1700000000000,
			TrackingURL: "https://beaver.app/s/abc-123",
		})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL)
	resp, err := c.CreateSession(context.Background(), CreateSessionRequest{
		UserFirstName: "Marie",
		Contacts:      []ContactInput{{Name: "Paul", Phone: "+33611111111"}},
		PinCode:       "4242",
	})

	require.NoError(t, err)
	assert.Equal(t, "abc-123", resp.SessionID)
	assert.Equal(t, "https://beaver.app/s/abc-123", resp.TrackingURL)
}

func TestAPIClient_Deactivate_StatusErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"wrong pin", http.StatusUnauthorized, ErrIncorrectPIN},
		{"unknown session", http.StatusNotFound, ErrNotFound},
		{"ended session", http.StatusForbidden, ErrSessionInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewAPIClient(srv.URL)
			err := c.Deactivate(context.Background(), "abc-123", "0000")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAPIClient_Deactivate_SendsPinField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "4242", body["pin"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL)
	require.NoError(t, c.Deactivate(context.Background(), "abc-123", "4242"))
}

func TestAPIClient_SendAlert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/alert/send", r.URL.Path)
		json.NewEncoder(w).Encode(AlertResult{Sent: 2, Failed: 1, Message: "Alerts sent to 2 of 3 contacts"})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL)
	result, err := c.SendAlert(context.Background(), "abc-123")

	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)
}

func TestAPIClient_GetSession_ServerErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "boom", "code": "INTERNAL_ERROR"})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL)
	_, err := c.GetSession(context.Background(), "abc-123")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
