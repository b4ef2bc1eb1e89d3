package archive

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// gitIdentity pins the commit author so archive history does not depend on
// host-level git configuration.
var gitIdentity = []string{"-c", "user.name=courier", "-c", "user.email=courier@localhost"}

// repo serializes git operations for one project archive. A commit is an
// add+commit sequence, so a mutex keeps concurrent deliveries from
// interleaving stage and commit steps.
type repo struct {
	dir     string
	mu      sync.Mutex
	breaker *breaker
}

func newRepo(dir string) *repo {
	return &repo{dir: dir, breaker: newBreaker(5, 30*time.Second)}
}

// run executes one git command against this repository and returns stdout.
// Stderr is folded into the error on failure.
func (r *repo) run(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-C", r.dir}, gitIdentity...)
	full = append(full, args...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// initRepo creates the repository with an initial commit.
func (r *repo) initRepo(ctx context.Context) error {
	return r.breaker.execute(func() error {
		if _, err := r.run(ctx, "init", "--quiet"); err != nil {
			return err
		}
		_, err := r.run(ctx, "commit", "--allow-empty", "-m", "initialize archive")
		return err
	})
}

// commit stages everything and records one commit. Empty commits are
// allowed because some lifecycle events leave the tree unchanged (a fresh
// agent directory holds no files yet) and the event should still land in
// history.
func (r *repo) commit(ctx context.Context, message string) error {
	return r.breaker.execute(func() error {
		if _, err := r.run(ctx, "add", "-A"); err != nil {
			return err
		}
		_, err := r.run(ctx, "commit", "--allow-empty", "-m", message)
		return err
	})
}

func (r *repo) head(ctx context.Context) (string, error) {
	var out string
	err := r.breaker.execute(func() error {
		var err error
		out, err = r.run(ctx, "rev-parse", "HEAD")
		return err
	})
	return out, err
}

func (r *repo) lastMessage(ctx context.Context) (string, error) {
	var out string
	err := r.breaker.execute(func() error {
		var err error
		out, err = r.run(ctx, "log", "-1", "--format=%s")
		return err
	})
	return out, err
}
