// Package ws fans service events out to WebSocket subscribers. A client
// subscribes to one agent's stream (or a whole project with "*") and
// receives every event envelope addressed to that scope.
package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mistakeknot/courier/internal/auth"
	"github.com/mistakeknot/courier/internal/names"
)

const writeTimeout = 5 * time.Second

// sub is one subscription scope: a project slug plus the normalized agent
// name, where an empty agent means every agent in the project.
type sub struct {
	project string
	agent   string
}

type Hub struct {
	mu    sync.RWMutex
	conns map[sub]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[sub]map[*websocket.Conn]struct{})}
}

// Handler accepts WebSocket subscriptions on /ws/agents/{agent}?project=.
// The agent path segment "*" subscribes to the whole project. Key-scoped
// callers may only subscribe within their own project.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawAgent := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/agents/"), "/")
		if rawAgent == "" {
			http.Error(w, "agent required", http.StatusBadRequest)
			return
		}
		project := names.Slugify(r.URL.Query().Get("project"))
		if project == "" {
			http.Error(w, "project required", http.StatusBadRequest)
			return
		}
		if info, ok := auth.FromContext(r.Context()); ok && info.Mode == auth.ModeAPIKey {
			if names.Slugify(info.Project) != project {
				http.Error(w, "project not allowed", http.StatusForbidden)
				return
			}
		}

		key := sub{project: project}
		if rawAgent != "*" {
			agent, err := names.Normalize(rawAgent)
			if err != nil {
				http.Error(w, "unusable agent name", http.StatusBadRequest)
				return
			}
			key.agent = agent
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		h.add(key, conn)
		defer h.remove(key, conn)

		// Subscribers only listen. Drain until the client goes away.
		ctx := r.Context()
		for {
			var discard any
			if err := wsjson.Read(ctx, conn, &discard); err != nil {
				return
			}
		}
	}
}

// Broadcast delivers event to the agent's subscribers and to the
// project's firehose subscribers. Casing of project and agent never
// matters. Slow or dead connections are dropped, never waited on.
func (h *Hub) Broadcast(project, agent string, event any) {
	key := sub{project: names.Slugify(project)}
	if agent != "" {
		if n, err := names.Normalize(agent); err == nil {
			key.agent = n
		}
	}
	for _, conn := range h.snapshot(key) {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := wsjson.Write(ctx, conn, event)
		cancel()
		if err != nil {
			go func(c *websocket.Conn) {
				c.Close(websocket.StatusGoingAway, "write error")
				h.removeConn(c)
			}(conn)
		}
	}
}

func (h *Hub) snapshot(key sub) []*websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*websocket.Conn
	for conn := range h.conns[key] {
		out = append(out, conn)
	}
	if key.agent != "" {
		for conn := range h.conns[sub{project: key.project}] {
			out = append(out, conn)
		}
	}
	return out
}

func (h *Hub) add(key sub, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[key]
	if !ok {
		set = make(map[*websocket.Conn]struct{})
		h.conns[key] = set
	}
	set[conn] = struct{}{}
}

func (h *Hub) remove(key sub, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[key]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.conns, key)
	}
}

// removeConn drops a connection whose subscription key is unknown, as
// happens on write failure inside Broadcast.
func (h *Hub) removeConn(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, set := range h.conns {
		if _, ok := set[conn]; ok {
			delete(set, conn)
			if len(set) == 0 {
				delete(h.conns, key)
			}
		}
	}
}
