package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mistakeknot/courier/internal/core"
	"github.com/mistakeknot/courier/internal/names"
)

// EnsureProject creates the project (relational row plus archive repo) on
// first reference and returns the existing one afterwards. The first
// writer's human key casing is kept.
func (s *Service) EnsureProject(ctx context.Context, humanKey string) (core.Project, error) {
	key := strings.TrimSpace(humanKey)
	slug := names.Slugify(key)
	if slug == "" {
		return core.Project{}, fmt.Errorf("project key %q: %w", humanKey, core.ErrInvalidName)
	}
	p, err := s.store.EnsureProject(ctx, key, slug)
	if err != nil {
		return core.Project{}, err
	}
	if err := s.archive.EnsureProject(ctx, p.Slug); err != nil {
		return core.Project{}, fmt.Errorf("archive for %s: %w", p.Slug, err)
	}
	return p, nil
}

// Projects lists all known projects.
func (s *Service) Projects(ctx context.Context) ([]core.Project, error) {
	return s.store.Projects(ctx)
}

// Agents lists the active agents of a project.
func (s *Service) Agents(ctx context.Context, projectKey string) ([]core.Agent, error) {
	project, err := s.store.ProjectBySlug(ctx, names.Slugify(projectKey))
	if err != nil {
		return nil, err
	}
	return s.store.AgentsForProject(ctx, project.ID)
}

// RegisterInput carries the caller-supplied identity and profile fields.
type RegisterInput struct {
	Name            string
	Program         string
	Model           string
	TaskDescription string
}

// Register resolves the requested name to an agent identity. Within the
// same project a matching active claim is an upsert: profile fields are
// refreshed and the stored canonical casing wins over the request. A
// claim held in another project goes through the collision strategy.
func (s *Service) Register(ctx context.Context, projectKey string, in RegisterInput) (core.Agent, error) {
	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	project, err := s.EnsureProject(ctx, projectKey)
	if err != nil {
		return core.Agent{}, err
	}

	canonical, err := names.Sanitize(in.Name)
	if err != nil {
		return core.Agent{}, fmt.Errorf("agent name %q: %w", in.Name, core.ErrInvalidName)
	}
	normalized := strings.ToLower(canonical)

	existing, err := s.store.ActiveAgentByName(ctx, project.ID, normalized)
	switch {
	case err == nil:
		updated, err := s.store.UpdateAgentProfile(ctx, existing.ID, in.Program, in.Model, in.TaskDescription, s.now())
		if err != nil {
			return core.Agent{}, err
		}
		if err := s.archive.WriteProfile(ctx, project.Slug, updated, "update agent profile: "+updated.Name); err != nil {
			return core.Agent{}, err
		}
		s.emit(project.Slug, updated.Name, core.EventAgentRegistered, updated)
		return updated, nil
	case !errors.Is(err, core.ErrAgentNotFound):
		return core.Agent{}, err
	}

	if _, err := s.store.ActiveAgentByNameGlobal(ctx, normalized); err == nil {
		canonical, normalized, err = s.claims.resolveCollision(ctx, s, canonical)
		if err != nil {
			return core.Agent{}, err
		}
	} else if !errors.Is(err, core.ErrAgentNotFound) {
		return core.Agent{}, err
	}

	now := s.now()
	agent, err := s.store.CreateAgent(ctx, core.Agent{
		ID:              uuid.NewString(),
		ProjectID:       project.ID,
		Name:            canonical,
		NormalizedName:  normalized,
		Program:         in.Program,
		Model:           in.Model,
		TaskDescription: in.TaskDescription,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return core.Agent{}, err
	}
	if err := s.archive.WriteProfile(ctx, project.Slug, agent, "register agent: "+agent.Name); err != nil {
		return core.Agent{}, err
	}
	s.emit(project.Slug, agent.Name, core.EventAgentRegistered, agent)
	return agent, nil
}

// Whois is the case-insensitive active-only lookup.
func (s *Service) Whois(ctx context.Context, projectKey, name string) (core.Agent, error) {
	_, agent, err := s.resolve(ctx, projectKey, name)
	return agent, err
}

// resolve finds an active agent by name within a project. Unknown project
// or name both come back as lookup failures, wrapped so errors.Is works.
func (s *Service) resolve(ctx context.Context, projectKey, name string) (core.Project, core.Agent, error) {
	project, err := s.store.ProjectBySlug(ctx, names.Slugify(projectKey))
	if err != nil {
		return core.Project{}, core.Agent{}, fmt.Errorf("project %q: %w", projectKey, err)
	}
	normalized, err := names.Normalize(name)
	if err != nil {
		return core.Project{}, core.Agent{}, fmt.Errorf("agent name %q: %w", name, core.ErrInvalidName)
	}
	agent, err := s.store.ActiveAgentByName(ctx, project.ID, normalized)
	if err != nil {
		return core.Project{}, core.Agent{}, fmt.Errorf("agent %q in %s: %w", name, project.Slug, err)
	}
	return project, agent, nil
}

// claimStrategy decides what a registration does when the requested name
// is actively claimed by an agent in another project.
type claimStrategy interface {
	resolveCollision(ctx context.Context, s *Service, requested string) (canonical, normalized string, err error)
}

// strictStrategy rejects the registration outright.
type strictStrategy struct{}

func (strictStrategy) resolveCollision(_ context.Context, _ *Service, requested string) (string, string, error) {
	return "", "", fmt.Errorf("name %q: %w", requested, core.ErrNameTaken)
}

// coerceStrategy assigns a freshly generated name instead, so the call
// still succeeds. Callers must read the returned name.
type coerceStrategy struct{}

func (coerceStrategy) resolveCollision(ctx context.Context, s *Service, requested string) (string, string, error) {
	for attempt := 0; attempt < 64; attempt++ {
		candidate := names.Generate()
		if attempt >= 8 {
			// The readable pool is running hot; widen with a numeric suffix.
			candidate = fmt.Sprintf("%s%d", candidate, attempt)
		}
		normalized := strings.ToLower(candidate)
		_, err := s.store.ActiveAgentByNameGlobal(ctx, normalized)
		if errors.Is(err, core.ErrAgentNotFound) {
			return candidate, normalized, nil
		}
		if err != nil {
			return "", "", err
		}
	}
	return "", "", fmt.Errorf("could not generate an unclaimed name for %q: %w", requested, core.ErrNameTaken)
}
