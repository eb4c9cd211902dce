package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/beaverapp/beaver-server-go/internal/config"
	"github.com/beaverapp/beaver-server-go/internal/model"
	redisclient "github.com/beaverapp/beaver-server-go/internal/redis"
	"github.com/beaverapp/beaver-server-go/internal/relay"
	"github.com/beaverapp/beaver-server-go/internal/repository"
	"github.com/beaverapp/beaver-server-go/internal/service"
	"github.com/beaverapp/beaver-server-go/internal/util"
)

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) TransitionStatus(ctx context.Context, id string, from, to model.SessionStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) MarkExpiredBatch(ctx context.Context, nowMs int64) (int64, error) {
	args := m.Called(ctx, nowMs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) SetLastGpsUpdate(ctx context.Context, id string, timestampMs int64) error {
	args := m.Called(ctx, id, timestampMs)
	return args.Error(0)
}

func (m *mockSessionRepo) SetAlertSentAt(ctx context.Context, id string, timestampMs int64) error {
	args := m.Called(ctx, id, timestampMs)
	return args.Error(0)
}

func (m *mockSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return m
}

type mockGpsRepo struct {
	mock.Mock
}

func (m *mockGpsRepo) Insert(ctx context.Context, pos model.GpsPosition) error {
	args := m.Called(ctx, pos)
	return args.Error(0)
}

func (m *mockGpsRepo) FindBySessionID(ctx context.Context, sessionID string, limit int) ([]model.GpsPosition, error) {
	args := m.Called(ctx, sessionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.GpsPosition), args.Error(1)
}

func (m *mockGpsRepo) WithTx(tx *sqlx.Tx) repository.GpsRepository {
	return m
}

const testSessionID = "3f6c9a1e-7b2d-4c5f-8e9a-0b1c2d3e4f5a"

func setupSessionHandler(t *testing.T) (*SessionHandler, *mockSessionRepo, *mockGpsRepo) {
	t.Helper()

	sessionRepo := new(mockSessionRepo)
	gpsRepo := new(mockGpsRepo)
	svc := service.NewSessionService(sessionRepo, gpsRepo)

	mr := miniredis.RunT(t)
	rc := &redisclient.Client{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { rc.Close() })
	broker := relay.NewBroker(rc, svc)
	t.Cleanup(broker.Close)

	cfg := &config.Config{WebBaseURL: "https://beaver.app"}
	return NewSessionHandler(svc, broker, cfg), sessionRepo, gpsRepo
}

func doRequest(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func activeSession() *model.Session {
	hash, _ := util.HashPin("4242")
	now := time.Now().UnixMilli()
	return &model.Session{
		ID:            testSessionID,
		UserFirstName: "Marie",
		Status:        model.SessionStatusActive,
		PinHash:       hash,
		CreatedAt:     now,
		ExpiresAt:     now + 60*60*1000,
		Contacts: []model.Contact{
			{Name: "Paul", Phone: "+33611111111"},
		},
	}
}

func TestSessionHandler_CreateSession(t *testing.T) {
	h, sessionRepo, _ := setupSessionHandler(t)
	router := h.Routes()

	created := activeSession()
	sessionRepo.On("Create", mock.Anything, mock.Anything).Return(created, nil)

	rec := doRequest(t, router, http.MethodPost, "/", map[string]any{
		"userFirstName": "Marie",
		"contacts":      []map[string]string{{"name": "Paul", "phone": "+33611111111"}},
		"pinCode":       "4242",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testSessionID, resp["sessionId"])
	assert.Equal(t, "https://beaver.app/s/"+testSessionID, resp["trackingUrl"])
	assert.NotZero(t, resp["expiresAt"])
}

func TestSessionHandler_CreateSession_Validation(t *testing.T) {
	h, _, _ := setupSessionHandler(t)
	router := h.Routes()

	tests := []struct {
		name string
		body map[string]any
	}{
		{
			name: "missing first name",
			body: map[string]any{
				"contacts": []map[string]string{{"name": "Paul", "phone": "+33611111111"}},
				"pinCode":  "4242",
			},
		},
		{
			name: "no contacts",
			body: map[string]any{
				"userFirstName": "Marie",
				"contacts":      []map[string]string{},
				"pinCode":       "4242",
			},
		},
		{
			name: "too many contacts",
			body: map[string]any{
				"userFirstName": "Marie",
				"contacts": []map[string]string{
					{"name": "A", "phone": "+33611111111"},
					{"name": "B", "phone": "+33611111112"},
					{"name": "C", "phone": "+33611111113"},
					{"name": "D", "phone": "+33611111114"},
					{"name": "E", "phone": "+33611111115"},
					{"name": "F", "phone": "+33611111116"},
				},
				"pinCode": "4242",
			},
		},
		{
			name: "bad phone",
			body: map[string]any{
				"userFirstName": "Marie",
				"contacts":      []map[string]string{{"name": "Paul", "phone": "0611111111"}},
				"pinCode":       "4242",
			},
		},
		{
			name: "bad pin",
			body: map[string]any{
				"userFirstName": "Marie",
				"contacts":      []map[string]string{{"name": "Paul", "phone": "+33611111111"}},
				"pinCode":       "42",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSessionHandler_GetSession(t *testing.T) {
	h, sessionRepo, _ := setupSessionHandler(t)
	router := h.Routes()

	t.Run("active session", func(t *testing.T) {
		sessionRepo.On("FindByID", mock.Anything, testSessionID).Return(activeSession(), nil).Once()

		rec := doRequest(t, router, http.MethodGet, "/"+testSessionID, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["valid"])
		assert.Equal(t, "active", resp["status"])
		assert.Equal(t, "Marie", resp["userFirstName"])
	})

	t.Run("unknown session", func(t *testing.T) {
		unknown := "9f6c9a1e-7b2d-4c5f-8e9a-0b1c2d3e4f5a"
		sessionRepo.On("FindByID", mock.Anything, unknown).Return(nil, nil).Once()

		rec := doRequest(t, router, http.MethodGet, "/"+unknown, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSessionHandler_GetTrack(t *testing.T) {
	h, sessionRepo, gpsRepo := setupSessionHandler(t)
	router := h.Routes()

	sessionRepo.On("FindByID", mock.Anything, testSessionID).Return(activeSession(), nil)
	gpsRepo.On("FindBySessionID", mock.Anything, testSessionID, config.GpsTrackLimit).Return([]model.GpsPosition{
		{SessionID: testSessionID, Latitude: 48.85, Longitude: 2.35, Timestamp: 1000},
		{SessionID: testSessionID, Latitude: 48.86, Longitude: 2.36, Timestamp: 2000},
	}, nil)

	rec := doRequest(t, router, http.MethodGet, fmt.Sprintf("/%s/track", testSessionID), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		SessionID string              `json:"sessionId"`
		Positions []model.GpsPosition `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Positions, 2)
	assert.Equal(t, int64(1000), resp.Positions[0].Timestamp)
}

func TestSessionHandler_Deactivate(t *testing.T) {
	t.Run("correct pin", func(t *testing.T) {
		h, sessionRepo, _ := setupSessionHandler(t)
		router := h.Routes()

		sessionRepo.On("FindByID", mock.Anything, testSessionID).Return(activeSession(), nil)
		sessionRepo.On("TransitionStatus", mock.Anything, testSessionID, model.SessionStatusActive, model.SessionStatusDeactivated).Return(true, nil)

		rec := doRequest(t, router, http.MethodPost, fmt.Sprintf("/%s/deactivate", testSessionID), map[string]string{"pin": "4242"})

		require.Equal(t, http.StatusOK, rec.Code)
		sessionRepo.AssertExpectations(t)
	})

	t.Run("legacy pinCode field still accepted", func(t *testing.T) {
		h, sessionRepo, _ := setupSessionHandler(t)
		router := h.Routes()

		sessionRepo.On("FindByID", mock.Anything, testSessionID).Return(activeSession(), nil)
		sessionRepo.On("TransitionStatus", mock.Anything, testSessionID, model.SessionStatusActive, model.SessionStatusDeactivated).Return(true, nil)

		rec := doRequest(t, router, http.MethodPost, fmt.Sprintf("/%s/deactivate", testSessionID), map[string]string{"pinCode": "4242"})

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong pin", func(t *testing.T) {
		h, sessionRepo, _ := setupSessionHandler(t)
		router := h.Routes()

		sessionRepo.On("FindByID", mock.Anything, testSessionID).Return(activeSession(), nil)

		rec := doRequest(t, router, http.MethodPost, fmt.Sprintf("/%s/deactivate", testSessionID), map[string]string{"pin": "0000"})

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		sessionRepo.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown session", func(t *testing.T) {
		h, sessionRepo, _ := setupSessionHandler(t)
		router := h.Routes()

		sessionRepo.On("FindByID", mock.Anything, testSessionID).Return(nil, nil)

		rec := doRequest(t, router, http.MethodPost, fmt.Sprintf("/%s/deactivate", testSessionID), map[string]string{"pin": "4242"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
