package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/beaverapp/beaver-server-go/internal/model"
	redisclient "github.com/beaverapp/beaver-server-go/internal/redis"
)

const (
	// Outbound buffer per connection. A member that cannot drain fast
	// enough loses events rather than stalling the room.
	clientBufferSize = 100

	persistTimeout = 10 * time.Second
)

// Event types on the realtime channel.
const (
	EventGpsUpdate     = "gps_update"
	EventSessionStatus = "session_status"
	EventWebRTCOffer   = "webrtc_offer"
	EventWebRTCAnswer  = "webrtc_answer"
	EventICECandidate  = "webrtc_ice_candidate"
)

// Envelope is one relayed message. Sender carries the originating
// connection id so the broadcast can exclude it on every instance.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Sender    string          `json:"sender,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Client is one realtime connection. Events is drained by the transport's
// write loop; Done is closed when the broker drops the client.
type Client struct {
	ID     string
	Events chan Envelope
	Done   chan struct{}

	closeOnce sync.Once
	rooms     map[string]bool // guarded by the broker mutex
}

// drop closes Done exactly once. Both Disconnect and broker shutdown reach
// here, and a read pump disconnecting after Close must not close twice.
func (c *Client) drop() {
	c.closeOnce.Do(func() { close(c.Done) })
}

// SessionStore is the slice of the session service the relay needs:
// membership validation on join and best-effort position persistence.
type SessionStore interface {
	IsSessionValid(ctx context.Context, sessionID string) (model.SessionValidity, error)
	RecordGpsPosition(ctx context.Context, pos model.GpsPosition) error
}

type room struct {
	clients map[*Client]bool
	cancel  context.CancelFunc
}

// Broker fans realtime traffic out to room members. Rooms are ephemeral:
// created on first join, destroyed when the last member leaves. Messages
// travel through a redis pub/sub channel per session so multiple server
// instances see the same stream.
type Broker struct {
	redis *redisclient.Client
	store SessionStore

	mu    sync.RWMutex
	rooms map[string]*room

	ctx    context.Context
	cancel context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client, store SessionStore) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:  redisClient,
		store:  store,
		rooms:  make(map[string]*room),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect registers a new realtime connection that has not joined any room
// yet.
func (b *Broker) Connect() *Client {
	return &Client{
		ID:     uuid.NewString(),
		Events: make(chan Envelope, clientBufferSize),
		Done:   make(chan struct{}),
		rooms:  make(map[string]bool),
	}
}

// Join adds the connection to the session's room. Validation is
// best-effort: an invalid session may still be joined so the web page can
// render the "alert ended" state from a read-only membership.
func (b *Broker) Join(ctx context.Context, client *Client, sessionID string) (model.SessionValidity, error) {
	validity, err := b.store.IsSessionValid(ctx, sessionID)
	if err != nil {
		return model.SessionValidity{}, err
	}
	if !validity.Valid {
		log.Warn().
			Str("sessionId", sessionID).
			Str("reason", validity.Reason).
			Msg("join on invalid session, allowing read-only membership")
	}

	b.mu.Lock()
	rm, ok := b.rooms[sessionID]
	if !ok {
		subCtx, subCancel := context.WithCancel(b.ctx)
		rm = &room{clients: make(map[*Client]bool), cancel: subCancel}
		b.rooms[sessionID] = rm
		go b.subscribe(subCtx, sessionID)
	}
	rm.clients[client] = true
	client.rooms[sessionID] = true
	participants := len(rm.clients)
	b.mu.Unlock()

	log.Info().
		Str("connId", client.ID).
		Str("sessionId", sessionID).
		Int("participants", participants).
		Msg("connection joined session room")

	return validity, nil
}

// Disconnect removes the connection from every room it belonged to,
// synchronously, and deletes rooms that end up empty.
func (b *Broker) Disconnect(client *Client) {
	b.mu.Lock()
	for sessionID := range client.rooms {
		rm, ok := b.rooms[sessionID]
		if !ok {
			continue
		}
		delete(rm.clients, client)
		if len(rm.clients) == 0 {
			rm.cancel()
			delete(b.rooms, sessionID)
			log.Info().Str("sessionId", sessionID).Msg("room deleted (empty)")
		}
	}
	client.rooms = make(map[string]bool)
	client.drop()
	b.mu.Unlock()

	log.Debug().Str("connId", client.ID).Msg("connection disconnected")
}

// PublishGpsPosition broadcasts the position to the room and persists it
// asynchronously. Persistence failures are logged and never block or fail
// the broadcast.
func (b *Broker) PublishGpsPosition(ctx context.Context, sender *Client, pos model.GpsPosition) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}

	publishErr := b.publish(ctx, Envelope{
		Type:      EventGpsUpdate,
		SessionID: pos.SessionID,
		Sender:    sender.ID,
		Data:      data,
	})

	go func() {
		persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := b.store.RecordGpsPosition(persistCtx, pos); err != nil {
			log.Error().Err(err).Str("sessionId", pos.SessionID).Msg("failed to persist gps position")
		}
	}()

	return publishErr
}

// RelaySignal forwards a WebRTC signaling payload verbatim to the other
// room members. The broker does not interpret SDP or ICE content.
func (b *Broker) RelaySignal(ctx context.Context, sender *Client, kind, sessionID string, payload json.RawMessage) error {
	return b.publish(ctx, Envelope{
		Type:      kind,
		SessionID: sessionID,
		Sender:    sender.ID,
		Data:      payload,
	})
}

// BroadcastSessionStatus tells every room member the session changed state.
// No sender is set, so all members receive it.
func (b *Broker) BroadcastSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	data, err := json.Marshal(map[string]any{
		"sessionId": sessionID,
		"status":    status,
	})
	if err != nil {
		return err
	}
	return b.publish(ctx, Envelope{
		Type:      EventSessionStatus,
		SessionID: sessionID,
		Data:      data,
	})
}

func (b *Broker) publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, redisclient.SessionChannel(env.SessionID), data).Err()
}

func (b *Broker) subscribe(ctx context.Context, sessionID string) {
	channel := redisclient.SessionChannel(sessionID)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().Str("sessionId", sessionID).Str("channel", channel).Msg("room subscription started")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal relay envelope")
				continue
			}

			b.deliver(sessionID, env)
		}
	}
}

// deliver fans an envelope out to local room members, excluding the sender.
func (b *Broker) deliver(sessionID string, env Envelope) {
	b.mu.RLock()
	rm := b.rooms[sessionID]
	var members []*Client
	if rm != nil {
		members = make([]*Client, 0, len(rm.clients))
		for c := range rm.clients {
			members = append(members, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range members {
		if env.Sender != "" && c.ID == env.Sender {
			continue
		}
		select {
		case c.Events <- env:
		default:
			log.Warn().
				Str("connId", c.ID).
				Str("sessionId", sessionID).
				Msg("client event buffer full, dropping event")
		}
	}
}

// Participants returns the current number of members in a session's room.
func (b *Broker) Participants(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if rm, ok := b.rooms[sessionID]; ok {
		return len(rm.clients)
	}
	return 0
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, rm := range b.rooms {
		for client := range rm.clients {
			client.drop()
		}
	}
	b.rooms = make(map[string]*room)
}
