// Package archive keeps a git-versioned mirror of the mailbox: one
// repository per project, one commit per registration, delivery, rename
// and deletion. The relational store stays authoritative; the archive is
// the human-auditable trail.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mistakeknot/courier/internal/core"
)

// Store maintains the per-project repositories under a shared root.
type Store struct {
	root string

	mu    sync.Mutex
	repos map[string]*repo
}

// New returns a Store rooted at dir. Repositories are initialized lazily
// on first touch.
func New(root string) *Store {
	return &Store{root: root, repos: make(map[string]*repo)}
}

// Root returns the archive root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) repoFor(slug string) *repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.repos[slug]; ok {
		return r
	}
	r := newRepo(filepath.Join(s.root, slug))
	s.repos[slug] = r
	return r
}

// EnsureProject initializes the project repository if needed.
func (s *Store) EnsureProject(ctx context.Context, slug string) error {
	r := s.repoFor(slug)
	r.mu.Lock()
	defer r.mu.Unlock()
	return ensureLocked(ctx, r)
}

// ensureLocked bootstraps the repository. Caller holds r.mu.
func ensureLocked(ctx context.Context, r *repo) error {
	if _, err := os.Stat(filepath.Join(r.dir, ".git")); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Join(r.dir, "agents"), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	return r.initRepo(ctx)
}

// AgentDir returns the directory holding an agent's profile and mailboxes.
func (s *Store) AgentDir(slug, name string) string {
	return filepath.Join(s.root, slug, "agents", name)
}

// AgentDirExists reports whether an agent directory is present. It is the
// rename destination gate: a rename never lands on an occupied directory.
func (s *Store) AgentDirExists(slug, name string) bool {
	info, err := os.Stat(s.AgentDir(slug, name))
	return err == nil && info.IsDir()
}

// WriteProfile renders profile.json for the agent and records one commit.
func (s *Store) WriteProfile(ctx context.Context, slug string, agent core.Agent, message string) error {
	r := s.repoFor(slug)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ensureLocked(ctx, r); err != nil {
		return err
	}
	if err := writeProfileFile(filepath.Join(r.dir, "agents", agent.Name), agent); err != nil {
		return err
	}
	return r.commit(ctx, message)
}

func writeProfileFile(dir string, agent core.Agent) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create agent dir: %w", err)
	}
	data, err := profileJSON(agent)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "profile.json"), data, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// MessageDrop describes the artifact fan-out inside one project
// repository: an optional outbox copy for the sender plus inbox copies
// for local recipients.
type MessageDrop struct {
	Outbox  string
	Inboxes []string
}

// DeliverMessage writes the rendered artifact into each mailbox named by
// the drop and records a single commit. from, to and cc carry display
// names for rendering and span all projects the message reached.
func (s *Store) DeliverMessage(ctx context.Context, slug string, msg core.Message, from string, to, cc []string, drop MessageDrop) error {
	r := s.repoFor(slug)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ensureLocked(ctx, r); err != nil {
		return err
	}

	body := renderMessage(msg, from, to, cc)
	name := messageFileName(msg)
	year, month := mailboxMonth(msg.CreatedAt)
	write := func(agent, box string) error {
		dir := filepath.Join(r.dir, "agents", agent, box, year, month)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s dir: %w", box, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
			return fmt.Errorf("write %s artifact: %w", box, err)
		}
		return nil
	}

	if drop.Outbox != "" {
		if err := write(drop.Outbox, "outbox"); err != nil {
			return err
		}
	}
	for _, rcpt := range drop.Inboxes {
		if err := write(rcpt, "inbox"); err != nil {
			return err
		}
	}
	return r.commit(ctx, fmt.Sprintf("deliver message %s from %s", msg.ID, from))
}

// RenameAgent moves the agent subtree to its new name, rewrites the
// profile, and records one commit. When the source directory is missing
// (archive created after the agent registered) a fresh destination is
// created instead.
func (s *Store) RenameAgent(ctx context.Context, slug string, agent core.Agent, oldName, newName string) error {
	r := s.repoFor(slug)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ensureLocked(ctx, r); err != nil {
		return err
	}

	src := filepath.Join(r.dir, "agents", oldName)
	dst := filepath.Join(r.dir, "agents", newName)
	if _, err := os.Stat(src); err == nil {
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("move agent dir: %w", err)
		}
	}
	if err := writeProfileFile(dst, agent); err != nil {
		return err
	}
	return r.commit(ctx, fmt.Sprintf("rename agent: %s -> %s", oldName, newName))
}

// RestoreRename moves the subtree back after a failed relational update.
func (s *Store) RestoreRename(ctx context.Context, slug, oldName, newName string) error {
	r := s.repoFor(slug)
	r.mu.Lock()
	defer r.mu.Unlock()

	src := filepath.Join(r.dir, "agents", newName)
	dst := filepath.Join(r.dir, "agents", oldName)
	if _, err := os.Stat(src); err == nil {
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("restore agent dir: %w", err)
		}
	}
	return r.commit(ctx, fmt.Sprintf("revert rename agent: %s -> %s", newName, oldName))
}

// TrashAgent moves the agent directory under agents/.trash and records one
// commit. It returns the trash entry name so a failed delete can be
// restored; empty when there was nothing to move. A previous occupant of
// the slot gets a timestamp suffix rather than being overwritten.
func (s *Store) TrashAgent(ctx context.Context, slug, name string, at time.Time) (string, error) {
	r := s.repoFor(slug)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ensureLocked(ctx, r); err != nil {
		return "", err
	}

	entry := ""
	src := filepath.Join(r.dir, "agents", name)
	if _, err := os.Stat(src); err == nil {
		trash := filepath.Join(r.dir, "agents", ".trash")
		if err := os.MkdirAll(trash, 0o755); err != nil {
			return "", fmt.Errorf("create trash dir: %w", err)
		}
		entry = name
		if _, err := os.Stat(filepath.Join(trash, entry)); err == nil {
			entry = name + "-" + at.UTC().Format("20060102T150405Z")
		}
		if err := os.Rename(src, filepath.Join(trash, entry)); err != nil {
			return "", fmt.Errorf("move to trash: %w", err)
		}
	}
	if err := r.commit(ctx, fmt.Sprintf("delete agent: %s", name)); err != nil {
		return "", err
	}
	return entry, nil
}

// RestoreTrash moves a trash entry back after a failed row removal.
func (s *Store) RestoreTrash(ctx context.Context, slug, name, entry string) error {
	r := s.repoFor(slug)
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry != "" {
		src := filepath.Join(r.dir, "agents", ".trash", entry)
		dst := filepath.Join(r.dir, "agents", name)
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, dst); err != nil {
				return fmt.Errorf("restore from trash: %w", err)
			}
		}
	}
	return r.commit(ctx, fmt.Sprintf("revert delete agent: %s", name))
}

// Head returns the commit hash a project repository is at.
func (s *Store) Head(ctx context.Context, slug string) (string, error) {
	r := s.repoFor(slug)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.head(ctx)
}

// LastCommitMessage returns the subject of the most recent commit.
func (s *Store) LastCommitMessage(ctx context.Context, slug string) (string, error) {
	r := s.repoFor(slug)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastMessage(ctx)
}
