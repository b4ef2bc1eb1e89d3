package auth

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

type Mode string

const (
	ModeLocalhost Mode = "localhost"
	ModeAPIKey    Mode = "api_key"
)

// Info records how a request was admitted. Project is set only for key
// auth; localhost callers act without a project scope.
type Info struct {
	Mode      Mode
	Project   string
	Localhost bool
}

type contextKey struct{}

func FromContext(ctx context.Context) (Info, bool) {
	v, ok := ctx.Value(contextKey{}).(Info)
	return v, ok
}

// Middleware admits loopback callers when the ring's policy allows it and
// otherwise requires a Bearer key known to the ring. Admitted requests
// carry an Info in their context.
func Middleware(ring *Keyring) func(http.Handler) http.Handler {
	if ring == nil {
		ring = defaultKeyring()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var info Info
			switch {
			case ring.AllowLocalhostWithoutAuth && isLocalRequest(r):
				info = Info{Mode: ModeLocalhost, Localhost: true}
			default:
				project, ok := ring.ProjectForKey(bearerKey(r))
				if !ok {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
					return
				}
				info = Info{Mode: ModeAPIKey, Project: project}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, info)))
		})
	}
}

// bearerKey extracts the key from an "Authorization: Bearer <key>" header,
// returning "" for anything else.
func bearerKey(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, key, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(key)
}

// isLocalRequest reports whether the request originates from loopback.
// X-Forwarded-For is honored so a localhost-binding reverse proxy does not
// grant its remote clients the bypass.
func isLocalRequest(r *http.Request) bool {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return isLoopbackHost(strings.TrimSpace(first))
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	return isLoopbackHost(strings.TrimSpace(host))
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
