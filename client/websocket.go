package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Event is the envelope the server broadcasts. Payload is left raw so
// callers can decode the shape their event type implies.
type Event struct {
	Type    string          `json:"type"`
	Project string          `json:"project"`
	Agent   string          `json:"agent,omitempty"`
	At      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event type constants matching the server's envelope.
const (
	EventAgentRegistered     = "agent.registered"
	EventAgentRenamed        = "agent.renamed"
	EventAgentDeleted        = "agent.deleted"
	EventMessageCreated      = "message.created"
	EventReservationCreated  = "reservation.created"
	EventReservationReleased = "reservation.released"
	EventReservationExpired  = "reservation.expired"
)

// EventHandler is called for each incoming event.
type EventHandler func(Event)

// EventStream holds a WebSocket subscription for one agent, or for a
// whole project when the agent is "*".
type EventStream struct {
	baseURL   string
	apiKey    string
	project   string
	agent     string
	reconnect bool

	mu       sync.RWMutex
	conn     *websocket.Conn
	handlers []EventHandler
	done     chan struct{}
	once     sync.Once
}

type StreamOption func(*EventStream)

// WithStreamAPIKey authenticates the subscription.
func WithStreamAPIKey(key string) StreamOption {
	return func(s *EventStream) { s.apiKey = key }
}

// WithAutoReconnect toggles reconnection with backoff after a dropped
// connection. On by default.
func WithAutoReconnect(enabled bool) StreamOption {
	return func(s *EventStream) { s.reconnect = enabled }
}

// Events builds a stream for the named agent within project. Pass "*"
// as the agent to follow every event in the project.
func (c *Client) Events(project, agent string, opts ...StreamOption) *EventStream {
	if project == "" {
		project = c.Project
	}
	s := &EventStream{
		baseURL:   c.BaseURL,
		apiKey:    c.APIKey,
		project:   project,
		agent:     agent,
		reconnect: true,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnEvent registers a handler. Handlers run on the read loop goroutine,
// in registration order.
func (s *EventStream) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Connect dials the gateway and starts the read loop.
func (s *EventStream) Connect(ctx context.Context) error {
	if s.project == "" {
		return fmt.Errorf("project required")
	}
	if s.agent == "" {
		return fmt.Errorf("agent required")
	}
	wsURL, err := s.buildURL()
	if err != nil {
		return fmt.Errorf("build websocket url: %w", err)
	}

	opts := &websocket.DialOptions{}
	if s.apiKey != "" {
		opts.HTTPHeader = map[string][]string{
			"Authorization": {"Bearer " + s.apiKey},
		}
	}
	conn, _, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go s.readLoop(ctx)
	return nil
}

// Close stops the stream.
func (s *EventStream) Close() error {
	s.once.Do(func() { close(s.done) })
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	return nil
}

func (s *EventStream) buildURL() (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws/agents/" + url.PathEscape(s.agent)
	q := u.Query()
	q.Set("project", s.project)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *EventStream) readLoop(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()

		var event Event
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			if s.reconnect {
				select {
				case <-s.done:
					return
				case <-ctx.Done():
					return
				default:
					if s.redial(ctx) {
						continue
					}
				}
			}
			return
		}
		s.dispatch(event)
	}
}

func (s *EventStream) dispatch(event Event) {
	s.mu.RLock()
	handlers := make([]EventHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}

// redial retries the connection with doubling backoff, capped at 30s.
// Returns false when the stream is closed before a dial succeeds.
func (s *EventStream) redial(ctx context.Context) bool {
	backoff := time.Second
	for {
		select {
		case <-s.done:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		wsURL, err := s.buildURL()
		if err != nil {
			return false
		}
		opts := &websocket.DialOptions{}
		if s.apiKey != "" {
			opts.HTTPHeader = map[string][]string{
				"Authorization": {"Bearer " + s.apiKey},
			}
		}
		conn, _, err := websocket.Dial(ctx, wsURL, opts)
		if err == nil {
			s.mu.Lock()
			s.conn = conn
			s.mu.Unlock()
			return true
		}
		if backoff *= 2; backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

// DecodePayload unmarshals the event payload into out.
func (e Event) DecodePayload(out any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event has no payload")
	}
	return json.Unmarshal(e.Payload, out)
}
