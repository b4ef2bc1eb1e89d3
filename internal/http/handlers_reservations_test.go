package httpapi

import (
	"net/http"
	"testing"
	"time"
)

func reserve(t *testing.T, env *testEnv, project, agent, pattern string, extra map[string]any) apiReservation {
	t.Helper()
	payload := map[string]any{"project": project, "agent": agent, "path_pattern": pattern}
	for k, v := range extra {
		payload[k] = v
	}
	resp := env.post(t, "/api/reservations", payload)
	requireStatus(t, resp, http.StatusCreated)
	return decodeJSON[apiReservation](t, resp)
}

func TestReserveEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "demo", "Builder")

	res := reserve(t, env, "demo", "Builder", "src/parser/*.go", map[string]any{
		"reason": "rewriting the lexer", "ttl_minutes": 30,
	})
	if res.ID == "" || !res.Active || !res.Exclusive {
		t.Fatalf("unexpected reservation: %+v", res)
	}
	if res.Agent != "Builder" || res.Project != "demo" {
		t.Fatalf("ownership fields wrong: %+v", res)
	}
	created, err := time.Parse(time.RFC3339Nano, res.CreatedAt)
	if err != nil {
		t.Fatalf("created_ts: %v", err)
	}
	expires, err := time.Parse(time.RFC3339Nano, res.ExpiresAt)
	if err != nil {
		t.Fatalf("expires_ts: %v", err)
	}
	if got := expires.Sub(created); got != 30*time.Minute {
		t.Fatalf("ttl not honored: %s", got)
	}
}

func TestReserveValidation(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "demo", "Builder")

	resp := env.post(t, "/api/reservations", map[string]any{"agent": "Builder", "path_pattern": "x"})
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = env.post(t, "/api/reservations", map[string]any{"project": "demo", "agent": "Builder"})
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = env.post(t, "/api/reservations", map[string]any{
		"project": "demo", "agent": "Nobody", "path_pattern": "x",
	})
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestReserveConflictEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "demo", "Holder")
	env.register(t, "demo", "Challenger")

	reserve(t, env, "demo", "Holder", "src/**/*.go", nil)

	resp := env.post(t, "/api/reservations", map[string]any{
		"project": "demo", "agent": "Challenger", "path_pattern": "src/parser/lexer.go",
	})
	requireStatus(t, resp, http.StatusConflict)
	body := decodeJSON[struct {
		Error     string           `json:"error"`
		Conflicts []apiReservation `json:"conflicts"`
	}](t, resp)
	if body.Error != "reservation_conflict" {
		t.Fatalf("unexpected error code %q", body.Error)
	}
	if len(body.Conflicts) != 1 || body.Conflicts[0].Agent != "Holder" {
		t.Fatalf("conflict should name the holder: %+v", body.Conflicts)
	}
}

func TestSharedReservationsCoexist(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "demo", "Reader")
	env.register(t, "demo", "Scanner")

	reserve(t, env, "demo", "Reader", "docs/*.md", map[string]any{"exclusive": false})
	res := reserve(t, env, "demo", "Scanner", "docs/intro.md", map[string]any{"exclusive": false})
	if res.Exclusive {
		t.Fatalf("shared claim stored as exclusive: %+v", res)
	}
}

func TestListReservationsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "demo", "Builder")
	env.register(t, "other", "Outsider")

	reserve(t, env, "demo", "Builder", "a/*.go", nil)
	reserve(t, env, "other", "Outsider", "b/*.go", nil)

	resp := env.get(t, "/api/reservations?project=demo")
	requireStatus(t, resp, http.StatusOK)
	body := decodeJSON[struct {
		Reservations []apiReservation `json:"reservations"`
	}](t, resp)
	if len(body.Reservations) != 1 || body.Reservations[0].PathPattern != "a/*.go" {
		t.Fatalf("expected only demo claims: %+v", body.Reservations)
	}

	resp = env.get(t, "/api/reservations")
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestReleaseEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "demo", "Holder")
	env.register(t, "demo", "Other")

	res := reserve(t, env, "demo", "Holder", "src/*.go", nil)

	resp := env.post(t, "/api/reservations/"+res.ID+"/release", map[string]any{"agent": "Other"})
	requireStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = env.post(t, "/api/reservations/"+res.ID+"/release", map[string]any{"agent": "Holder"})
	requireStatus(t, resp, http.StatusOK)
	status := decodeJSON[struct {
		Status string `json:"status"`
	}](t, resp)
	if status.Status != "released" {
		t.Fatalf("unexpected status %q", status.Status)
	}

	// Releasing an already-released claim stays OK.
	resp = env.post(t, "/api/reservations/"+res.ID+"/release", map[string]any{"agent": "Holder"})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.post(t, "/api/reservations/no-such-id/release", map[string]any{"agent": "Holder"})
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestForceReleaseEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "demo", "Holder")
	env.register(t, "demo", "Admin")

	res := reserve(t, env, "demo", "Holder", "src/*.go", nil)

	resp := env.post(t, "/api/reservations/"+res.ID+"/release", map[string]any{"force": true})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	listed := env.get(t, "/api/reservations?project=demo")
	requireStatus(t, listed, http.StatusOK)
	body := decodeJSON[struct {
		Reservations []apiReservation `json:"reservations"`
	}](t, listed)
	if len(body.Reservations) != 0 {
		t.Fatalf("forced release left active claims: %+v", body.Reservations)
	}
}

func TestRenewEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "demo", "Holder")

	res := reserve(t, env, "demo", "Holder", "src/*.go", map[string]any{"ttl_minutes": 10})

	resp := env.post(t, "/api/reservations/"+res.ID+"/renew", map[string]any{
		"agent": "Holder", "ttl_minutes": 60,
	})
	requireStatus(t, resp, http.StatusOK)
	renewed := decodeJSON[apiReservation](t, resp)

	before, _ := time.Parse(time.RFC3339Nano, res.ExpiresAt)
	after, err := time.Parse(time.RFC3339Nano, renewed.ExpiresAt)
	if err != nil {
		t.Fatalf("expires_ts: %v", err)
	}
	if !after.After(before) {
		t.Fatalf("renew did not extend: %s -> %s", res.ExpiresAt, renewed.ExpiresAt)
	}

	resp = env.post(t, "/api/reservations/"+res.ID+"/renew", map[string]any{"ttl_minutes": 60})
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestRenewReleasedReservation(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "demo", "Holder")

	res := reserve(t, env, "demo", "Holder", "src/*.go", nil)
	resp := env.post(t, "/api/reservations/"+res.ID+"/release", map[string]any{"agent": "Holder"})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.post(t, "/api/reservations/"+res.ID+"/renew", map[string]any{
		"agent": "Holder", "ttl_minutes": 60,
	})
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}
