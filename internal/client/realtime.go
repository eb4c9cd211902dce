package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/beaverapp/beaver-server-go/internal/model"
)

const (
	maxReconnectAttempts = 10
	reconnectBaseDelay   = 2 * time.Second
	reconnectMaxDelay    = 30 * time.Second
)

// reconnectBackoff doubles the base delay per attempt, capped so a long
// outage does not push retries minutes apart.
func reconnectBackoff(attempt int) time.Duration {
	delay := reconnectBaseDelay << (attempt - 1)
	if delay > reconnectMaxDelay || delay <= 0 {
		return reconnectMaxDelay
	}
	return delay
}

// EventHandler receives server→client frames (gps_update, session_status,
// relayed WebRTC signals).
type EventHandler func(eventType string, sessionID string, data json.RawMessage)

// Realtime is the websocket side of the client: one connection, one
// joined session, automatic rejoin after reconnect.
type Realtime struct {
	url     string
	handler EventHandler

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
	closed    bool
}

func NewRealtime(url string, handler EventHandler) *Realtime {
	return &Realtime{url: url, handler: handler}
}

type frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Connect dials the server and starts the read loop. On connection loss
// the loop redials with a bounded number of attempts and rejoins the
// session it was in.
func (r *Realtime) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	go r.readLoop(conn)
	return nil
}

func (r *Realtime) readLoop(conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			conn.Close()
			r.maybeReconnect(err)
			return
		}
		if r.handler != nil {
			r.handler(f.Type, f.SessionID, f.Data)
		}
	}
}

func (r *Realtime) maybeReconnect(cause error) {
	r.mu.Lock()
	closed := r.closed
	sessionID := r.sessionID
	r.mu.Unlock()
	if closed {
		return
	}

	log.Warn().Err(cause).Msg("realtime connection lost, reconnecting")

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		time.Sleep(reconnectBackoff(attempt))

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		conn, _, err := websocket.DefaultDialer.Dial(r.url, nil)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}

		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()

		if sessionID != "" {
			if err := r.JoinSession(sessionID); err != nil {
				log.Warn().Err(err).Msg("rejoin after reconnect failed")
			}
		}

		log.Info().Int("attempt", attempt).Msg("realtime connection restored")
		go r.readLoop(conn)
		return
	}

	log.Error().Int("attempts", maxReconnectAttempts).Msg("giving up on realtime reconnection")
}

func (r *Realtime) send(f frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return websocket.ErrCloseSent
	}
	r.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return r.conn.WriteJSON(f)
}

func (r *Realtime) JoinSession(sessionID string) error {
	r.mu.Lock()
	r.sessionID = sessionID
	r.mu.Unlock()
	return r.send(frame{Type: "join_session", SessionID: sessionID})
}

func (r *Realtime) SendGpsPosition(pos model.GpsPosition) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	return r.send(frame{Type: "gps_position", SessionID: pos.SessionID, Data: data})
}

// SendSignal forwards a WebRTC payload (offer, answer or ICE candidate)
// verbatim.
func (r *Realtime) SendSignal(kind, sessionID string, payload json.RawMessage) error {
	return r.send(frame{Type: kind, SessionID: sessionID, Data: payload})
}

func (r *Realtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
