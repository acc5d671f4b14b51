package stream

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const subscriberBuffer = 64

// Roles the external auth layer may tag a subscriber with. Elevated roles
// receive targeted events unconditionally.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleUser     = "user"
)

// Identity is who a live subscriber is, as asserted by the auth layer in
// front of this process. An empty UserID is an unauthenticated viewer.
type Identity struct {
	UserID string
	Role   string
}

// Envelope is one event on the live stream.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Keepalive is the envelope type transports translate into their own
// heartbeat frame (an SSE comment line, a websocket ping).
const Keepalive = "keepalive"

// Subscriber is one connected live client.
type Subscriber struct {
	identity Identity
	send     chan Envelope
}

// C is the subscriber's delivery channel. Closed when the hub drops the
// subscriber.
func (s *Subscriber) C() <-chan Envelope {
	return s.send
}

// Identity returns the subscriber's identity tag.
func (s *Subscriber) Identity() Identity {
	return s.identity
}

type message struct {
	env      Envelope
	targeted bool
	allowed  []string
}

// Hub fans alert and metric events out to live subscribers. An explicit
// component instance with an injected lifecycle: construct, Run, cancel.
type Hub struct {
	logger     zerolog.Logger
	keepalive  time.Duration
	register   chan *Subscriber
	unregister chan *Subscriber
	messages   chan message
	subs       map[*Subscriber]struct{}
	history    *History
}

// NewHub creates a broadcaster. keepalive bounds how long a dead connection
// can linger before a failed write prunes it.
func NewHub(keepalive time.Duration, logger zerolog.Logger) *Hub {
	return &Hub{
		logger:     logger.With().Str("component", "stream").Logger(),
		keepalive:  keepalive,
		register:   make(chan *Subscriber),
		unregister: make(chan *Subscriber, subscriberBuffer),
		messages:   make(chan message, 64),
		subs:       make(map[*Subscriber]struct{}),
		history:    NewHistory(100),
	}
}

// Run owns the subscriber set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	h.logger.Info().Msg("event broadcaster started")
	for {
		select {
		case <-ctx.Done():
			for sub := range h.subs {
				close(sub.send)
				delete(h.subs, sub)
			}
			return
		case sub := <-h.register:
			h.subs[sub] = struct{}{}
			h.logger.Debug().Int("subscribers", len(h.subs)).Msg("subscriber connected")
		case sub := <-h.unregister:
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.send)
			}
			h.logger.Debug().Int("subscribers", len(h.subs)).Msg("subscriber removed")
		case msg := <-h.messages:
			h.fanout(msg)
		case <-ticker.C:
			h.fanout(message{env: Envelope{Type: Keepalive}})
		}
	}
}

// fanout delivers to every eligible subscriber. A subscriber that cannot
// keep up is dropped immediately rather than retried.
func (h *Hub) fanout(msg message) {
	for sub := range h.subs {
		if msg.targeted && !authorized(sub.identity, msg.allowed) {
			continue
		}
		select {
		case sub.send <- msg.env:
		default:
			delete(h.subs, sub)
			close(sub.send)
			h.logger.Warn().Str("user", sub.identity.UserID).Msg("slow subscriber dropped")
		}
	}
}

// authorized implements the targeted-event rule: elevated roles always pass,
// unauthenticated subscribers never do, everyone else must be listed.
func authorized(id Identity, allowed []string) bool {
	if id.Role == RoleAdmin || id.Role == RoleOperator {
		return true
	}
	if id.UserID == "" {
		return false
	}
	for _, uid := range allowed {
		if uid == id.UserID {
			return true
		}
	}
	return false
}

// Broadcast delivers an event to every subscriber.
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	env := Envelope{Type: eventType, Payload: payload}
	h.history.Add(env)
	h.messages <- message{env: env}
}

// BroadcastToAuthorized delivers only to elevated subscribers and to those
// whose identity appears in allowedUserIDs. Targeted events are never
// replayed from history.
func (h *Hub) BroadcastToAuthorized(eventType string, payload interface{}, allowedUserIDs []string) {
	h.messages <- message{
		env:      Envelope{Type: eventType, Payload: payload},
		targeted: true,
		allowed:  allowedUserIDs,
	}
}

// Subscribe attaches a new live client and replays recent broadcast events
// into its buffer so a freshly-loaded UI has context.
func (h *Hub) Subscribe(identity Identity) *Subscriber {
	sub := &Subscriber{
		identity: identity,
		send:     make(chan Envelope, subscriberBuffer),
	}
	for _, env := range h.history.Recent(subscriberBuffer / 2) {
		sub.send <- env
	}
	h.register <- sub
	return sub
}

// Unsubscribe detaches a client; safe to call after the hub already dropped
// it or stopped running.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	select {
	case h.unregister <- sub:
	default:
	}
}
