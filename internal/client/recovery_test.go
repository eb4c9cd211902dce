package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsEcho runs a websocket endpoint that records join_session frames.
type wsEcho struct {
	joins atomic.Int32
}

func (e *wsEcho) handler() http.HandlerFunc {
	up := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Type == "join_session" {
				e.joins.Add(1)
			}
		}
	}
}

func setupRecovery(t *testing.T, info *SessionInfo, state *State) (*Recoverer, *Store, *wsEcho) {
	t.Helper()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(info)
	}))
	t.Cleanup(api.Close)

	echo := &wsEcho{}
	ws := httptest.NewServer(echo.handler())
	t.Cleanup(ws.Close)

	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	if state != nil {
		require.NoError(t, store.Save(state))
	}

	rt := NewRealtime("ws"+strings.TrimPrefix(ws.URL, "http"), nil)
	require.NoError(t, rt.Connect(context.Background()))
	t.Cleanup(func() { rt.Close() })

	return NewRecoverer(NewAPIClient(api.URL), store, rt, nil, nil), store, echo
}

func TestRecoverer_NoStoredSession(t *testing.T) {
	r, _, echo := setupRecovery(t, nil, nil)

	recovered, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.False(t, recovered)
	assert.Equal(t, int32(0), echo.joins.Load())
}

func TestRecoverer_ActiveSessionRejoins(t *testing.T) {
	info := &SessionInfo{SessionID: "abc-123", Status: "active", Valid: true}
	r, _, echo := setupRecovery(t, info, &State{FirstName: "Marie", SessionID: "abc-123"})

	recovered, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.True(t, recovered)

	assert.Eventually(t, func() bool {
		return echo.joins.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRecoverer_DeadSessionIsDiscarded(t *testing.T) {
	info := &SessionInfo{SessionID: "abc-123", Status: "expired", Valid: false, Reason: "expired"}
	r, store, echo := setupRecovery(t, info, &State{FirstName: "Marie", SessionID: "abc-123"})

	recovered, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.False(t, recovered)
	assert.Equal(t, int32(0), echo.joins.Load())

	state, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, state.SessionID)
	assert.Equal(t, "Marie", state.FirstName)
}

func TestRecoverer_MissingSessionIsDiscarded(t *testing.T) {
	r, store, _ := setupRecovery(t, nil, &State{FirstName: "Marie", SessionID: "abc-123"})

	recovered, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.False(t, recovered)

	state, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, state.SessionID)
}

func TestRecoverer_RunsAtMostOnce(t *testing.T) {
	info := &SessionInfo{SessionID: "abc-123", Status: "active", Valid: true}
	r, _, echo := setupRecovery(t, info, &State{FirstName: "Marie", SessionID: "abc-123"})

	_, err := r.Recover(context.Background())
	require.NoError(t, err)
	recovered, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.True(t, recovered)

	assert.Eventually(t, func() bool {
		return echo.joins.Load() == 1
	}, time.Second, 10*time.Millisecond)
	// A second call must not join again.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), echo.joins.Load())
}
