package archive

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mistakeknot/courier/internal/core"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func newTestArchive(t *testing.T) *Store {
	t.Helper()
	requireGit(t)
	return New(t.TempDir())
}

func testAgent(name string) core.Agent {
	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	return core.Agent{
		ID:              "agent-" + strings.ToLower(name),
		ProjectID:       "proj-1",
		Name:            name,
		NormalizedName:  strings.ToLower(name),
		Program:         "claude",
		Model:           "opus",
		TaskDescription: "testing",
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestEnsureProjectInitializesRepo(t *testing.T) {
	s := newTestArchive(t)
	ctx := context.Background()

	if err := s.EnsureProject(ctx, "demo"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "demo", ".git")); err != nil {
		t.Fatalf("expected git repo: %v", err)
	}
	msg, err := s.LastCommitMessage(ctx, "demo")
	if err != nil {
		t.Fatalf("last commit: %v", err)
	}
	if msg != "initialize archive" {
		t.Fatalf("unexpected initial commit message %q", msg)
	}

	// Idempotent on second call.
	head, _ := s.Head(ctx, "demo")
	if err := s.EnsureProject(ctx, "demo"); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	if again, _ := s.Head(ctx, "demo"); again != head {
		t.Fatal("re-ensure must not create commits")
	}
}

func TestWriteProfile(t *testing.T) {
	s := newTestArchive(t)
	ctx := context.Background()

	agent := testAgent("BlueLake")
	if err := s.WriteProfile(ctx, "demo", agent, "register agent: BlueLake"); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(s.AgentDir("demo", "BlueLake"), "profile.json"))
	if err != nil {
		t.Fatalf("read profile: %v", err)
	}
	for _, want := range []string{`"name": "BlueLake"`, `"program": "claude"`, `"task_description": "testing"`} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("profile missing %s:\n%s", want, data)
		}
	}

	msg, _ := s.LastCommitMessage(ctx, "demo")
	if msg != "register agent: BlueLake" {
		t.Fatalf("unexpected commit message %q", msg)
	}
	if !s.AgentDirExists("demo", "BlueLake") {
		t.Fatal("agent dir should exist")
	}
	if s.AgentDirExists("demo", "RedMountain") {
		t.Fatal("unknown agent dir should not exist")
	}
}

func TestDeliverMessage(t *testing.T) {
	s := newTestArchive(t)
	ctx := context.Background()

	msg := core.Message{
		ID:         "msg-1",
		ThreadID:   "th-1",
		Subject:    "deploy window",
		Body:       "starting at noon",
		Importance: "high",
		CreatedAt:  time.Date(2026, 8, 23, 10, 15, 0, 0, time.UTC),
	}
	drop := MessageDrop{Outbox: "Sender", Inboxes: []string{"Alpha", "Beta"}}
	if err := s.DeliverMessage(ctx, "demo", msg, "Sender", []string{"Alpha"}, []string{"Beta"}, drop); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	wantName := "20260823T101500Z-msg-1.md"
	paths := []string{
		filepath.Join(s.AgentDir("demo", "Sender"), "outbox", "2026", "08", wantName),
		filepath.Join(s.AgentDir("demo", "Alpha"), "inbox", "2026", "08", wantName),
		filepath.Join(s.AgentDir("demo", "Beta"), "inbox", "2026", "08", wantName),
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("missing artifact %s: %v", p, err)
		}
		text := string(data)
		for _, want := range []string{"from: Sender", "to: Alpha", "cc: Beta", "# deploy window", "starting at noon"} {
			if !strings.Contains(text, want) {
				t.Fatalf("artifact missing %q:\n%s", want, text)
			}
		}
	}

	commitMsg, _ := s.LastCommitMessage(ctx, "demo")
	if commitMsg != "deliver message msg-1 from Sender" {
		t.Fatalf("unexpected commit message %q", commitMsg)
	}
}

func TestDeliverMessageInboxOnly(t *testing.T) {
	s := newTestArchive(t)
	ctx := context.Background()

	msg := core.Message{ID: "msg-2", ThreadID: "th-2", Body: "hi", Importance: "normal", CreatedAt: time.Now().UTC()}
	drop := MessageDrop{Inboxes: []string{"Remote"}}
	if err := s.DeliverMessage(ctx, "other", msg, "Sender", []string{"Remote"}, nil, drop); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.AgentDir("other", "Sender"))); !os.IsNotExist(err) {
		t.Fatal("no outbox copy expected in the recipient project")
	}
}

func TestRenameAgentMovesSubtree(t *testing.T) {
	s := newTestArchive(t)
	ctx := context.Background()

	agent := testAgent("BlueLake")
	if err := s.WriteProfile(ctx, "demo", agent, "register agent: BlueLake"); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	inbox := filepath.Join(s.AgentDir("demo", "BlueLake"), "inbox", "2026", "08")
	if err := os.MkdirAll(inbox, 0o755); err != nil {
		t.Fatalf("mkdir inbox: %v", err)
	}
	if err := os.WriteFile(filepath.Join(inbox, "old.md"), []byte("kept"), 0o644); err != nil {
		t.Fatalf("write inbox file: %v", err)
	}

	renamed := agent
	renamed.Name = "GreenCastle"
	renamed.NormalizedName = "greencastle"
	if err := s.RenameAgent(ctx, "demo", renamed, "BlueLake", "GreenCastle"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if s.AgentDirExists("demo", "BlueLake") {
		t.Fatal("old directory should be gone")
	}
	if _, err := os.Stat(filepath.Join(s.AgentDir("demo", "GreenCastle"), "inbox", "2026", "08", "old.md")); err != nil {
		t.Fatalf("inbox did not move: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(s.AgentDir("demo", "GreenCastle"), "profile.json"))
	if !strings.Contains(string(data), `"name": "GreenCastle"`) {
		t.Fatalf("profile should carry the new name:\n%s", data)
	}
	msg, _ := s.LastCommitMessage(ctx, "demo")
	if msg != "rename agent: BlueLake -> GreenCastle" {
		t.Fatalf("unexpected commit message %q", msg)
	}
}

func TestRenameAgentFreshDestination(t *testing.T) {
	s := newTestArchive(t)
	ctx := context.Background()
	if err := s.EnsureProject(ctx, "demo"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	renamed := testAgent("GreenCastle")
	if err := s.RenameAgent(ctx, "demo", renamed, "BlueLake", "GreenCastle"); err != nil {
		t.Fatalf("rename without source: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.AgentDir("demo", "GreenCastle"), "profile.json")); err != nil {
		t.Fatalf("fresh destination should carry a profile: %v", err)
	}
}

func TestRestoreRename(t *testing.T) {
	s := newTestArchive(t)
	ctx := context.Background()

	agent := testAgent("BlueLake")
	if err := s.WriteProfile(ctx, "demo", agent, "register agent: BlueLake"); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	renamed := agent
	renamed.Name = "GreenCastle"
	if err := s.RenameAgent(ctx, "demo", renamed, "BlueLake", "GreenCastle"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := s.RestoreRename(ctx, "demo", "BlueLake", "GreenCastle"); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !s.AgentDirExists("demo", "BlueLake") || s.AgentDirExists("demo", "GreenCastle") {
		t.Fatal("restore should move the subtree back")
	}
	msg, _ := s.LastCommitMessage(ctx, "demo")
	if msg != "revert rename agent: GreenCastle -> BlueLake" {
		t.Fatalf("unexpected commit message %q", msg)
	}
}

func TestTrashAgentAndRestore(t *testing.T) {
	s := newTestArchive(t)
	ctx := context.Background()

	agent := testAgent("BlueLake")
	if err := s.WriteProfile(ctx, "demo", agent, "register agent: BlueLake"); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	at := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	entry, err := s.TrashAgent(ctx, "demo", "BlueLake", at)
	if err != nil {
		t.Fatalf("trash: %v", err)
	}
	if entry != "BlueLake" {
		t.Fatalf("unexpected trash entry %q", entry)
	}
	if s.AgentDirExists("demo", "BlueLake") {
		t.Fatal("agent dir should be trashed")
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "demo", "agents", ".trash", "BlueLake", "profile.json")); err != nil {
		t.Fatalf("trash should hold the subtree: %v", err)
	}
	msg, _ := s.LastCommitMessage(ctx, "demo")
	if msg != "delete agent: BlueLake" {
		t.Fatalf("unexpected commit message %q", msg)
	}

	if err := s.RestoreTrash(ctx, "demo", "BlueLake", entry); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !s.AgentDirExists("demo", "BlueLake") {
		t.Fatal("restore should bring the agent dir back")
	}

	// A second occupant of the same slot gets a suffixed entry.
	if _, err := s.TrashAgent(ctx, "demo", "BlueLake", at); err != nil {
		t.Fatalf("second trash: %v", err)
	}
	if err := s.WriteProfile(ctx, "demo", agent, "register agent: BlueLake"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	entry2, err := s.TrashAgent(ctx, "demo", "BlueLake", at)
	if err != nil {
		t.Fatalf("third trash: %v", err)
	}
	if entry2 != "BlueLake-20260823T120000Z" {
		t.Fatalf("expected suffixed trash entry, got %q", entry2)
	}
}

func TestTrashAgentWithoutDirectory(t *testing.T) {
	s := newTestArchive(t)
	ctx := context.Background()
	if err := s.EnsureProject(ctx, "demo"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	entry, err := s.TrashAgent(ctx, "demo", "Ghost", time.Now().UTC())
	if err != nil {
		t.Fatalf("trash: %v", err)
	}
	if entry != "" {
		t.Fatalf("nothing to move, got entry %q", entry)
	}
	msg, _ := s.LastCommitMessage(ctx, "demo")
	if msg != "delete agent: Ghost" {
		t.Fatalf("the deletion should still be recorded, got %q", msg)
	}
}
