package mail

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/mistakeknot/courier/internal/core"
	"github.com/mistakeknot/courier/internal/names"
)

// Rename moves an agent to a new canonical name in both stores. The
// archive moves first; if the relational update then fails the archive
// move is compensated, so the two never drift apart. Serialized so two
// lifecycle transitions cannot interleave on one subtree.
func (s *Service) Rename(ctx context.Context, projectKey, oldName, newName string) (core.Agent, error) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	project, agent, err := s.resolve(ctx, projectKey, oldName)
	if err != nil {
		return core.Agent{}, err
	}

	canonical, err := names.Sanitize(newName)
	if err != nil {
		return core.Agent{}, fmt.Errorf("new name %q: %w", newName, core.ErrInvalidName)
	}
	normalized := strings.ToLower(canonical)

	if normalized == agent.NormalizedName {
		return core.Agent{}, fmt.Errorf("rename %s: %w: same as current name", agent.Name, core.ErrInvalidOperation)
	}
	if other, err := s.store.ActiveAgentByNameGlobal(ctx, normalized); err == nil && other.ID != agent.ID {
		return core.Agent{}, fmt.Errorf("name %q already in use: %w", canonical, core.ErrNameConflict)
	} else if err != nil && !errors.Is(err, core.ErrAgentNotFound) {
		return core.Agent{}, err
	}
	if s.archive.AgentDirExists(project.Slug, canonical) {
		return core.Agent{}, fmt.Errorf("archive directory %q already in use: %w", canonical, core.ErrNameConflict)
	}

	renamed := agent
	renamed.Name = canonical
	renamed.NormalizedName = normalized
	renamed.UpdatedAt = s.now()
	if err := s.archive.RenameAgent(ctx, project.Slug, renamed, agent.Name, canonical); err != nil {
		return core.Agent{}, err
	}

	updated, err := s.store.UpdateAgentName(ctx, agent.ID, canonical, normalized, renamed.UpdatedAt)
	if err != nil {
		if rerr := s.archive.RestoreRename(ctx, project.Slug, agent.Name, canonical); rerr != nil {
			log.Printf("mail: rename compensation for %s/%s: %v", project.Slug, agent.Name, rerr)
		}
		return core.Agent{}, err
	}

	s.emit(project.Slug, updated.Name, core.EventAgentRenamed, map[string]any{
		"agent_id": updated.ID,
		"old_name": agent.Name,
		"new_name": updated.Name,
	})
	return updated, nil
}

// Delete removes an agent for good. Any message traffic, contact link or
// active reservation blocks it; history never loses a referenced
// identity. The archive subtree moves to trash first, then the row goes,
// with the same compensation rule as rename.
func (s *Service) Delete(ctx context.Context, projectKey, name string) (core.DeleteResult, error) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	project, agent, err := s.resolve(ctx, projectKey, name)
	if err != nil {
		return core.DeleteResult{}, err
	}

	if has, err := s.store.HasMessageTraffic(ctx, agent.ID); err != nil {
		return core.DeleteResult{}, err
	} else if has {
		return core.DeleteResult{}, fmt.Errorf("agent %s: %w", agent.Name, core.ErrReferencedByMessages)
	}
	if has, err := s.store.HasAgentLinks(ctx, agent.ID); err != nil {
		return core.DeleteResult{}, err
	} else if has {
		return core.DeleteResult{}, fmt.Errorf("agent %s: %w", agent.Name, core.ErrReferencedByLinks)
	}
	held, err := s.store.ActiveReservationsForAgent(ctx, agent.ID, s.now())
	if err != nil {
		return core.DeleteResult{}, err
	}
	if len(held) > 0 {
		return core.DeleteResult{}, fmt.Errorf("agent %s holds %d: %w", agent.Name, len(held), core.ErrActiveReservation)
	}

	entry, err := s.archive.TrashAgent(ctx, project.Slug, agent.Name, s.now())
	if err != nil {
		return core.DeleteResult{}, err
	}

	if err := s.store.DeleteAgent(ctx, agent.ID); err != nil {
		if rerr := s.archive.RestoreTrash(ctx, project.Slug, agent.Name, entry); rerr != nil {
			log.Printf("mail: delete compensation for %s/%s: %v", project.Slug, agent.Name, rerr)
		}
		return core.DeleteResult{}, err
	}

	s.emit(project.Slug, agent.Name, core.EventAgentDeleted, map[string]any{
		"agent_id": agent.ID,
	})
	return core.DeleteResult{Deleted: true, Agent: agent}, nil
}
