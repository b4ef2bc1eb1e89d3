package mail

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mistakeknot/courier/internal/core"
)

func TestRenameAgent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	before := env.register(t, "demo", "BlueLake")
	renamed, err := env.svc.Rename(ctx, "demo", "bluelake", "GreenCastle")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.ID != before.ID || renamed.Name != "GreenCastle" {
		t.Fatalf("unexpected rename result %+v", renamed)
	}

	if _, err := env.svc.Whois(ctx, "demo", "BlueLake"); !errors.Is(err, core.ErrAgentNotFound) {
		t.Fatalf("old name should be gone, got %v", err)
	}
	after, err := env.svc.Whois(ctx, "demo", "greencastle")
	if err != nil || after.ID != before.ID {
		t.Fatalf("new name should resolve to the same agent: %v", err)
	}

	if env.svc.archive.AgentDirExists("demo", "BlueLake") {
		t.Fatal("old archive dir should be moved")
	}
	if !env.svc.archive.AgentDirExists("demo", "GreenCastle") {
		t.Fatal("new archive dir missing")
	}
	msg, err := env.svc.archive.LastCommitMessage(ctx, "demo")
	if err != nil {
		t.Fatalf("last commit: %v", err)
	}
	if !strings.Contains(strings.ToLower(msg), "rename") || !strings.Contains(msg, "BlueLake") || !strings.Contains(msg, "GreenCastle") {
		t.Fatalf("commit must name the rename and both identities, got %q", msg)
	}

	events := env.bus.byType(core.EventAgentRenamed)
	if len(events) != 1 || events[0].Agent != "GreenCastle" {
		t.Fatalf("unexpected rename events %+v", events)
	}
}

func TestRenameToSameNameRejected(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "demo", "BlueLake")

	_, err := env.svc.Rename(context.Background(), "demo", "BlueLake", "bluelake")
	if !errors.Is(err, core.ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
	if !strings.Contains(err.Error(), "same as current name") {
		t.Fatalf("error should say why: %v", err)
	}
}

func TestRenameToClaimedName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "demo", "BlueLake")
	env.register(t, "demo", "RedMountain")
	env.register(t, "elsewhere", "Distant")

	// Claim in the same project.
	if _, err := env.svc.Rename(ctx, "demo", "BlueLake", "redmountain"); !errors.Is(err, core.ErrNameConflict) {
		t.Fatalf("expected ErrNameConflict, got %v", err)
	}
	// Claim in another project blocks too: names are global.
	if _, err := env.svc.Rename(ctx, "demo", "BlueLake", "Distant"); !errors.Is(err, core.ErrNameConflict) {
		t.Fatalf("expected ErrNameConflict for cross-project claim, got %v", err)
	}
}

func TestRenameDestinationDirectoryGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "demo", "BlueLake")

	// An orphaned directory with no agent row still blocks the move.
	orphan := filepath.Join(env.root, "demo", "agents", "Squatter")
	if err := os.MkdirAll(orphan, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	_, err := env.svc.Rename(ctx, "demo", "BlueLake", "Squatter")
	if !errors.Is(err, core.ErrNameConflict) {
		t.Fatalf("expected ErrNameConflict, got %v", err)
	}
}

func TestRenameFreesOldName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.register(t, "demo", "BlueLake")
	if _, err := env.svc.Rename(ctx, "demo", "BlueLake", "GreenCastle"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	second, err := env.svc.Register(ctx, "demo", RegisterInput{Name: "BlueLake"})
	if err != nil {
		t.Fatalf("re-register freed name: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("freed name should mint a fresh agent")
	}
}

func TestDeleteBlockedByMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "demo", "Alice")
	env.register(t, "demo", "Bob")

	if _, err := env.svc.Send(ctx, "demo", "Alice", SendInput{To: []string{"Bob"}}); err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, name := range []string{"Alice", "Bob"} {
		if _, err := env.svc.Delete(ctx, "demo", name); !errors.Is(err, core.ErrReferencedByMessages) {
			t.Fatalf("delete %s: expected ErrReferencedByMessages, got %v", name, err)
		}
	}
}

func TestDeleteBlockedByLinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.register(t, "demo", "Alice")
	b := env.register(t, "demo", "Bob")

	if err := env.store.AddAgentLink(ctx, core.AgentLink{AAgentID: a.ID, BAgentID: b.ID, Relation: "contact"}); err != nil {
		t.Fatalf("add link: %v", err)
	}
	if _, err := env.svc.Delete(ctx, "demo", "Bob"); !errors.Is(err, core.ErrReferencedByLinks) {
		t.Fatalf("expected ErrReferencedByLinks, got %v", err)
	}
}

func TestDeleteBlockedByActiveReservation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "demo", "Holder")

	res, err := env.svc.Reserve(ctx, "demo", "Holder", ReserveInput{PathPattern: "src/*.go"})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := env.svc.Delete(ctx, "demo", "Holder"); !errors.Is(err, core.ErrActiveReservation) {
		t.Fatalf("expected ErrActiveReservation, got %v", err)
	}

	if err := env.svc.Release(ctx, res.ID, "Holder", false); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := env.svc.Delete(ctx, "demo", "Holder"); err != nil {
		t.Fatalf("delete after release: %v", err)
	}
}

func TestDeleteIgnoresExpiredReservation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agent := env.register(t, "demo", "Holder")

	// Insert an already-expired claim straight into the store: activity is
	// evaluated lazily, rows are never swept.
	now := time.Now().UTC()
	if _, err := env.store.CreateReservation(ctx, core.Reservation{
		ProjectID:   agent.ProjectID,
		AgentID:     agent.ID,
		PathPattern: "docs/**",
		CreatedAt:   now.Add(-2 * time.Hour),
		ExpiresAt:   now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	if _, err := env.svc.Delete(ctx, "demo", "Holder"); err != nil {
		t.Fatalf("expired reservation must not block delete: %v", err)
	}
}

func TestDeleteMovesArchiveToTrash(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deleted := env.register(t, "demo", "BlueLake")
	result, err := env.svc.Delete(ctx, "demo", "bluelake")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !result.Deleted || result.Agent.ID != deleted.ID {
		t.Fatalf("unexpected result %+v", result)
	}

	if _, err := env.svc.Whois(ctx, "demo", "BlueLake"); !errors.Is(err, core.ErrAgentNotFound) {
		t.Fatalf("deleted agent should not resolve, got %v", err)
	}
	if env.svc.archive.AgentDirExists("demo", "BlueLake") {
		t.Fatal("agent dir should be trashed")
	}
	if _, err := os.Stat(filepath.Join(env.root, "demo", "agents", ".trash", "BlueLake", "profile.json")); err != nil {
		t.Fatalf("trash should hold the subtree: %v", err)
	}

	msg, _ := env.svc.archive.LastCommitMessage(ctx, "demo")
	if !strings.Contains(strings.ToLower(msg), "delete") || !strings.Contains(msg, "BlueLake") {
		t.Fatalf("commit must name the deletion, got %q", msg)
	}
	if events := env.bus.byType(core.EventAgentDeleted); len(events) != 1 {
		t.Fatalf("expected one delete event, got %d", len(events))
	}

	// The name is free again, globally.
	if _, err := env.svc.Register(ctx, "other", RegisterInput{Name: "BlueLake"}); err != nil {
		t.Fatalf("freed name should be claimable elsewhere: %v", err)
	}
}
