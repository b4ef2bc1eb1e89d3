package mail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mistakeknot/courier/internal/core"
)

func TestReserveAndConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "demo", "Holder")
	env.register(t, "demo", "Other")

	held, err := env.svc.Reserve(ctx, "demo", "Holder", ReserveInput{
		PathPattern: "src/**",
		Exclusive:   true,
		Reason:      "refactoring the core",
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if held.AgentName != "Holder" || !held.IsActive() {
		t.Fatalf("unexpected reservation %+v", held)
	}
	if events := env.bus.byType(core.EventReservationCreated); len(events) != 1 {
		t.Fatalf("expected one created event, got %d", len(events))
	}

	_, err = env.svc.Reserve(ctx, "demo", "Other", ReserveInput{PathPattern: "src/api/*.go"})
	var conflict *core.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(conflict.Conflicts) != 1 || conflict.Conflicts[0].ID != held.ID {
		t.Fatalf("conflict should name the blocking claim: %+v", conflict.Conflicts)
	}
	if conflict.Conflicts[0].AgentName != "Holder" {
		t.Fatalf("conflicts carry the holder's name, got %q", conflict.Conflicts[0].AgentName)
	}
}

func TestReserveSharedClaimsCoexist(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "demo", "First")
	env.register(t, "demo", "Second")

	if _, err := env.svc.Reserve(ctx, "demo", "First", ReserveInput{PathPattern: "docs/**"}); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if _, err := env.svc.Reserve(ctx, "demo", "Second", ReserveInput{PathPattern: "docs/readme.md"}); err != nil {
		t.Fatalf("shared claims must coexist: %v", err)
	}

	// One exclusive side is enough to conflict.
	if _, err := env.svc.Reserve(ctx, "demo", "Second", ReserveInput{PathPattern: "docs/**", Exclusive: true}); err == nil {
		t.Fatal("exclusive overlap with a shared claim should conflict")
	}
}

func TestReserveSameAgentOverlapAllowed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "demo", "Holder")

	if _, err := env.svc.Reserve(ctx, "demo", "Holder", ReserveInput{PathPattern: "src/**", Exclusive: true}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := env.svc.Reserve(ctx, "demo", "Holder", ReserveInput{PathPattern: "src/main.go", Exclusive: true}); err != nil {
		t.Fatalf("an agent never conflicts with itself: %v", err)
	}
}

func TestReserveDisjointPatterns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "demo", "First")
	env.register(t, "demo", "Second")

	if _, err := env.svc.Reserve(ctx, "demo", "First", ReserveInput{PathPattern: "src/**", Exclusive: true}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := env.svc.Reserve(ctx, "demo", "Second", ReserveInput{PathPattern: "docs/**", Exclusive: true}); err != nil {
		t.Fatalf("disjoint patterns must not conflict: %v", err)
	}
}

func TestReserveTTLDefaultAndCap(t *testing.T) {
	start := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	env := newTestEnvOpts(t, Options{Clock: func() time.Time { return start }})
	ctx := context.Background()
	env.register(t, "demo", "Holder")

	byDefault, err := env.svc.Reserve(ctx, "demo", "Holder", ReserveInput{PathPattern: "a/**"})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !byDefault.ExpiresAt.Equal(start.Add(time.Hour)) {
		t.Fatalf("default TTL should be an hour, got %v", byDefault.ExpiresAt)
	}

	capped, err := env.svc.Reserve(ctx, "demo", "Holder", ReserveInput{PathPattern: "b/**", TTL: 48 * time.Hour})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !capped.ExpiresAt.Equal(start.Add(24 * time.Hour)) {
		t.Fatalf("TTL should cap at a day, got %v", capped.ExpiresAt)
	}
}

func TestReserveRejectsBadPattern(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "demo", "Holder")

	_, err := env.svc.Reserve(context.Background(), "demo", "Holder", ReserveInput{PathPattern: "   "})
	if !errors.Is(err, core.ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
}

func TestReleaseOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "demo", "Holder")
	env.register(t, "demo", "Other")

	res, err := env.svc.Reserve(ctx, "demo", "Holder", ReserveInput{PathPattern: "src/**"})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := env.svc.Release(ctx, res.ID, "Other", false); !errors.Is(err, core.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := env.svc.Release(ctx, res.ID, "holder", false); err != nil {
		t.Fatalf("owner release (any casing): %v", err)
	}
	// Idempotent second release.
	if err := env.svc.Release(ctx, res.ID, "Holder", false); err != nil {
		t.Fatalf("repeat release: %v", err)
	}
	if err := env.svc.Release(ctx, "missing", "Holder", false); !errors.Is(err, core.ErrReservationNotFound) {
		t.Fatalf("expected ErrReservationNotFound, got %v", err)
	}

	if events := env.bus.byType(core.EventReservationReleased); len(events) != 1 {
		t.Fatalf("only the effective release should broadcast, got %d", len(events))
	}

	active, err := env.svc.ActiveReservations(ctx, "demo")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("released claim should drop from the active set, got %d", len(active))
	}
}

func TestReleaseForceBypassesOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "demo", "Holder")
	env.register(t, "demo", "Admin")

	res, err := env.svc.Reserve(ctx, "demo", "Holder", ReserveInput{PathPattern: "src/**"})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := env.svc.Release(ctx, res.ID, "Admin", true); err != nil {
		t.Fatalf("forced release: %v", err)
	}
}

func TestRenewExtendsActiveReservation(t *testing.T) {
	start := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	env := newTestEnvOpts(t, Options{Clock: func() time.Time { return start }})
	ctx := context.Background()
	env.register(t, "demo", "Holder")
	env.register(t, "demo", "Other")

	res, err := env.svc.Reserve(ctx, "demo", "Holder", ReserveInput{PathPattern: "src/**", TTL: 30 * time.Minute})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	renewed, err := env.svc.Renew(ctx, res.ID, "Holder", 2*time.Hour)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if !renewed.ExpiresAt.Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("renew sets expiry from now, got %v", renewed.ExpiresAt)
	}

	if _, err := env.svc.Renew(ctx, res.ID, "Other", time.Hour); !errors.Is(err, core.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	if err := env.svc.Release(ctx, res.ID, "Holder", false); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := env.svc.Renew(ctx, res.ID, "Holder", time.Hour); !errors.Is(err, core.ErrInvalidOperation) {
		t.Fatalf("released reservations cannot renew, got %v", err)
	}
}

func TestActiveReservationsListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "demo", "Holder")

	kept, err := env.svc.Reserve(ctx, "demo", "Holder", ReserveInput{PathPattern: "a/**"})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	dropped, err := env.svc.Reserve(ctx, "demo", "Holder", ReserveInput{PathPattern: "b/**"})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := env.svc.Release(ctx, dropped.ID, "Holder", false); err != nil {
		t.Fatalf("release: %v", err)
	}

	active, err := env.svc.ActiveReservations(ctx, "demo")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 || active[0].ID != kept.ID {
		t.Fatalf("unexpected active set %+v", active)
	}
}
