package httpapi

import (
	"log"
	"net/http"
	"time"
)

// NewRouter wires every API route plus the optional WebSocket gateway.
// mw is the auth middleware; the health probe stays unauthenticated. The
// WebSocket route skips the request logger so the response writer stays
// hijackable.
func NewRouter(svc *Service, wsHandler http.Handler, mw func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.Handler {
		var handler http.Handler = h
		if mw != nil {
			handler = mw(handler)
		}
		return withRequestLog(handler)
	}

	mux.Handle("/healthz", withRequestLog(http.HandlerFunc(svc.handleHealth)))
	mux.Handle("/api/projects", wrap(svc.handleProjects))
	mux.Handle("/api/agents", wrap(svc.handleAgents))
	mux.Handle("/api/agents/", wrap(svc.handleAgentByPath))
	mux.Handle("/api/messages", wrap(svc.handleSendMessage))
	mux.Handle("/api/messages/", wrap(svc.handleMessageAction))
	mux.Handle("/api/inbox/", wrap(svc.handleInbox))
	mux.Handle("/api/threads/", wrap(svc.handleThread))
	mux.Handle("/api/reservations", wrap(svc.handleReservations))
	mux.Handle("/api/reservations/", wrap(svc.handleReservationAction))

	if wsHandler != nil {
		if mw != nil {
			wsHandler = mw(wsHandler)
		}
		mux.Handle("/ws/agents/", wsHandler)
	}

	return mux
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		log.Printf("http: %s %s -> %d (%s)", r.Method, r.URL.Path, sw.status, time.Since(start).Round(time.Millisecond))
	})
}
