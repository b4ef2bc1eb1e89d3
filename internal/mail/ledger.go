package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mistakeknot/courier/internal/core"
	"github.com/mistakeknot/courier/internal/glob"
	"github.com/mistakeknot/courier/internal/names"
)

// ReserveInput describes an advisory path claim.
type ReserveInput struct {
	PathPattern string
	Exclusive   bool
	Reason      string
	TTL         time.Duration
}

const (
	defaultReservationTTL = time.Hour
	maxReservationTTL     = 24 * time.Hour
)

// Reserve claims a path pattern for an agent. An overlap with another
// agent's active reservation is a conflict when either side is exclusive;
// an agent never conflicts with itself.
func (s *Service) Reserve(ctx context.Context, projectKey, agentName string, in ReserveInput) (core.Reservation, error) {
	project, agent, err := s.resolve(ctx, projectKey, agentName)
	if err != nil {
		return core.Reservation{}, err
	}

	pattern := strings.TrimSpace(in.PathPattern)
	if err := glob.Validate(pattern); err != nil {
		return core.Reservation{}, fmt.Errorf("path pattern: %s: %w", err, core.ErrInvalidOperation)
	}

	now := s.now()
	active, err := s.store.ActiveReservations(ctx, project.ID, now)
	if err != nil {
		return core.Reservation{}, err
	}
	var conflicts []core.Reservation
	for _, r := range active {
		if r.AgentID == agent.ID {
			continue
		}
		if !in.Exclusive && !r.Exclusive {
			continue
		}
		if glob.Overlaps(pattern, r.PathPattern) {
			conflicts = append(conflicts, r)
		}
	}
	if len(conflicts) > 0 {
		return core.Reservation{}, &core.ConflictError{Conflicts: conflicts}
	}

	res, err := s.store.CreateReservation(ctx, core.Reservation{
		ID:          uuid.NewString(),
		ProjectID:   project.ID,
		AgentID:     agent.ID,
		PathPattern: pattern,
		Exclusive:   in.Exclusive,
		Reason:      in.Reason,
		CreatedAt:   now,
		ExpiresAt:   now.Add(clampTTL(in.TTL)),
	})
	if err != nil {
		return core.Reservation{}, err
	}
	s.emit(project.Slug, agent.Name, core.EventReservationCreated, res)
	return res, nil
}

func clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultReservationTTL
	}
	if ttl > maxReservationTTL {
		return maxReservationTTL
	}
	return ttl
}

// Release ends a reservation early. Only the holder may release it unless
// force is set. Releasing an already-released reservation is a no-op.
func (s *Service) Release(ctx context.Context, id, agentName string, force bool) error {
	res, err := s.store.ReservationByID(ctx, id)
	if err != nil {
		return err
	}
	if !force {
		if err := s.checkOwner(ctx, res, agentName); err != nil {
			return err
		}
	}
	if res.ReleasedAt != nil {
		return nil
	}
	if err := s.store.ReleaseReservation(ctx, id, s.now()); err != nil {
		return err
	}
	if project, err := s.store.ProjectByID(ctx, res.ProjectID); err == nil {
		s.emit(project.Slug, res.AgentName, core.EventReservationReleased, map[string]any{
			"reservation_id": res.ID,
			"path_pattern":   res.PathPattern,
		})
	}
	return nil
}

// Renew extends an active reservation's expiry to now+ttl. Released or
// expired reservations cannot be renewed.
func (s *Service) Renew(ctx context.Context, id, agentName string, ttl time.Duration) (core.Reservation, error) {
	res, err := s.store.ReservationByID(ctx, id)
	if err != nil {
		return core.Reservation{}, err
	}
	if err := s.checkOwner(ctx, res, agentName); err != nil {
		return core.Reservation{}, err
	}
	now := s.now()
	if !res.ActiveAt(now) {
		return core.Reservation{}, fmt.Errorf("reservation %s is no longer active: %w", id, core.ErrInvalidOperation)
	}
	if err := s.store.RenewReservation(ctx, id, now.Add(clampTTL(ttl))); err != nil {
		return core.Reservation{}, err
	}
	return s.store.ReservationByID(ctx, id)
}

// ActiveReservations lists a project's live claims.
func (s *Service) ActiveReservations(ctx context.Context, projectKey string) ([]core.Reservation, error) {
	project, err := s.store.ProjectBySlug(ctx, names.Slugify(projectKey))
	if err != nil {
		return nil, err
	}
	return s.store.ActiveReservations(ctx, project.ID, s.now())
}

// checkOwner verifies that agentName resolves to the reservation's holder
// within the reservation's own project.
func (s *Service) checkOwner(ctx context.Context, res core.Reservation, agentName string) error {
	normalized, err := names.Normalize(agentName)
	if err != nil {
		return fmt.Errorf("agent name %q: %w", agentName, core.ErrInvalidName)
	}
	agent, err := s.store.ActiveAgentByName(ctx, res.ProjectID, normalized)
	if err != nil {
		return fmt.Errorf("reservation %s: %w", res.ID, core.ErrNotOwner)
	}
	if agent.ID != res.AgentID {
		return fmt.Errorf("reservation %s: %w", res.ID, core.ErrNotOwner)
	}
	return nil
}
