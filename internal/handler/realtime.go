package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/beaverapp/beaver-server-go/internal/model"
	"github.com/beaverapp/beaver-server-go/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// SDP offers run to a few KB; GPS frames are tiny.
	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Session ids are unguessable; the tracking page is served from
		// arbitrary origins (shared links opened anywhere).
		return true
	},
}

type RealtimeHandler struct {
	broker *relay.Broker
}

func NewRealtimeHandler(broker *relay.Broker) *RealtimeHandler {
	return &RealtimeHandler{broker: broker}
}

// inboundMessage is the client→server frame shape.
type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

type gpsPayload struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  float64  `json:"accuracy"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Battery   *int     `json:"battery,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// GET /ws
func (h *RealtimeHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := h.broker.Connect()
	log.Info().Str("conn_id", client.ID).Msg("realtime connection opened")

	go h.writePump(conn, client)
	h.readPump(conn, client)
}

func (h *RealtimeHandler) readPump(conn *websocket.Conn, client *relay.Client) {
	defer func() {
		h.broker.Disconnect(client)
		conn.Close()
		log.Info().Str("conn_id", client.ID).Msg("realtime connection closed")
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("conn_id", client.ID).Msg("unexpected websocket close")
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn().Err(err).Str("conn_id", client.ID).Msg("malformed realtime frame")
			continue
		}

		h.dispatch(conn, client, msg)
	}
}

func (h *RealtimeHandler) dispatch(conn *websocket.Conn, client *relay.Client, msg inboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.Type {
	case "join_session":
		validity, err := h.broker.Join(ctx, client, msg.SessionID)
		if err != nil {
			log.Error().Err(err).Str("session_id", msg.SessionID).Msg("join failed")
			return
		}
		ack, _ := json.Marshal(map[string]any{
			"valid":  validity.Valid,
			"reason": validity.Reason,
		})
		h.sendDirect(client, relay.Envelope{
			Type:      "session_joined",
			SessionID: msg.SessionID,
			Data:      ack,
		})

	case "gps_position":
		var pos gpsPayload
		if err := json.Unmarshal(msg.Data, &pos); err != nil {
			log.Warn().Err(err).Str("conn_id", client.ID).Msg("malformed gps payload")
			return
		}
		if pos.Timestamp == 0 {
			pos.Timestamp = time.Now().UnixMilli()
		}
		err := h.broker.PublishGpsPosition(ctx, client, model.GpsPosition{
			SessionID: msg.SessionID,
			Latitude:  pos.Latitude,
			Longitude: pos.Longitude,
			Accuracy:  pos.Accuracy,
			Speed:     pos.Speed,
			Heading:   pos.Heading,
			Battery:   pos.Battery,
			Timestamp: pos.Timestamp,
		})
		if err != nil {
			log.Error().Err(err).Str("session_id", msg.SessionID).Msg("gps publish failed")
		}

	case relay.EventWebRTCOffer, relay.EventWebRTCAnswer, relay.EventICECandidate:
		if err := h.broker.RelaySignal(ctx, client, msg.Type, msg.SessionID, msg.Data); err != nil {
			log.Error().Err(err).Str("session_id", msg.SessionID).Str("kind", msg.Type).Msg("signal relay failed")
		}

	default:
		log.Warn().Str("type", msg.Type).Str("conn_id", client.ID).Msg("unknown realtime message type")
	}
}

// sendDirect queues an envelope for this connection only, bypassing the
// room broadcast.
func (h *RealtimeHandler) sendDirect(client *relay.Client, env relay.Envelope) {
	select {
	case client.Events <- env:
	default:
		log.Warn().Str("conn_id", client.ID).Msg("dropping direct event, client buffer full")
	}
}

func (h *RealtimeHandler) writePump(conn *websocket.Conn, client *relay.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case env := <-client.Events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.Done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
