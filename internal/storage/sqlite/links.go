package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mistakeknot/courier/internal/core"
)

func (s *Store) AddAgentLink(ctx context.Context, l core.AgentLink) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_links (id, a_agent_id, b_agent_id, relation, initiated_by, created_ts)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.AAgentID, l.BAgentID, l.Relation, l.InitiatedBy, fmtTime(l.CreatedAt),
	); err != nil {
		return fmt.Errorf("add agent link: %w", err)
	}
	return nil
}

func (s *Store) HasAgentLinks(ctx context.Context, agentID string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM agent_links WHERE a_agent_id = ? OR b_agent_id = ?)`,
		agentID, agentID)
	var v int
	if err := row.Scan(&v); err != nil {
		return false, fmt.Errorf("check agent links: %w", err)
	}
	return v == 1, nil
}
