package mail

import (
	"context"
	"testing"
	"time"

	"github.com/mistakeknot/courier/internal/core"
)

func TestExpiryNotifierAnnouncesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agent := env.register(t, "demo", "Holder")

	start := time.Now().UTC()
	res, err := env.store.CreateReservation(ctx, core.Reservation{
		ProjectID:   agent.ProjectID,
		AgentID:     agent.ID,
		PathPattern: "src/**",
		CreatedAt:   start,
		ExpiresAt:   start.Add(10 * time.Second),
	})
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	clock := start
	n := NewExpiryNotifier(env.store, env.bus, time.Minute)
	n.now = func() time.Time { return clock }
	n.last = start

	// Before expiry: quiet.
	clock = start.Add(5 * time.Second)
	n.tick(ctx)
	if events := env.bus.byType(core.EventReservationExpired); len(events) != 0 {
		t.Fatalf("nothing expired yet, got %d events", len(events))
	}

	// Expiry falls inside this window.
	clock = start.Add(30 * time.Second)
	n.tick(ctx)
	events := env.bus.byType(core.EventReservationExpired)
	if len(events) != 1 {
		t.Fatalf("expected one expiry event, got %d", len(events))
	}
	ev := events[0]
	if ev.Project != "demo" {
		t.Fatalf("unexpected project %q", ev.Project)
	}
	payload, ok := ev.Payload.(map[string]any)
	if !ok || payload["reservation_id"] != res.ID || payload["agent"] != "Holder" {
		t.Fatalf("unexpected payload %+v", ev.Payload)
	}

	// The window advanced past the expiry: never announced twice.
	clock = start.Add(time.Minute)
	n.tick(ctx)
	if events := env.bus.byType(core.EventReservationExpired); len(events) != 1 {
		t.Fatalf("expiry must announce exactly once, got %d", len(events))
	}
}

func TestExpiryNotifierSkipsReleased(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agent := env.register(t, "demo", "Holder")

	start := time.Now().UTC()
	res, err := env.store.CreateReservation(ctx, core.Reservation{
		ProjectID:   agent.ProjectID,
		AgentID:     agent.ID,
		PathPattern: "src/**",
		CreatedAt:   start,
		ExpiresAt:   start.Add(10 * time.Second),
	})
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	if err := env.store.ReleaseReservation(ctx, res.ID, start.Add(time.Second)); err != nil {
		t.Fatalf("release: %v", err)
	}

	n := NewExpiryNotifier(env.store, env.bus, time.Minute)
	n.now = func() time.Time { return start.Add(30 * time.Second) }
	n.last = start

	n.tick(ctx)
	if events := env.bus.byType(core.EventReservationExpired); len(events) != 0 {
		t.Fatalf("released reservations never expire, got %d events", len(events))
	}
}

func TestExpiryNotifierStartStop(t *testing.T) {
	env := newTestEnv(t)

	n := NewExpiryNotifier(env.store, env.bus, 10*time.Millisecond)
	n.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	n.Stop()
}
