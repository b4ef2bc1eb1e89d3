package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mistakeknot/courier/internal/core"
)

const agentColumns = "id, project_id, canonical_name, normalized_name, program, model, task_description, active, created_ts, updated_ts"

func (s *Store) CreateAgent(ctx context.Context, a core.Agent) (core.Agent, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	a.Active = true

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, project_id, canonical_name, normalized_name, program, model, task_description, active, created_ts, updated_ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		a.ID, a.ProjectID, a.Name, a.NormalizedName, a.Program, a.Model, a.TaskDescription,
		fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt),
	); err != nil {
		return core.Agent{}, fmt.Errorf("create agent: %w", err)
	}
	return a, nil
}

func (s *Store) UpdateAgentProfile(ctx context.Context, id, program, model, taskDescription string, ts time.Time) (core.Agent, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET program = ?, model = ?, task_description = ?, updated_ts = ? WHERE id = ?`,
		program, model, taskDescription, fmtTime(ts), id,
	)
	if err != nil {
		return core.Agent{}, fmt.Errorf("update agent profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Agent{}, core.ErrAgentNotFound
	}
	return s.AgentByID(ctx, id)
}

func (s *Store) UpdateAgentName(ctx context.Context, id, canonicalName, normalizedName string, ts time.Time) (core.Agent, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET canonical_name = ?, normalized_name = ?, updated_ts = ? WHERE id = ?`,
		canonicalName, normalizedName, fmtTime(ts), id,
	)
	if err != nil {
		return core.Agent{}, fmt.Errorf("update agent name: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Agent{}, core.ErrAgentNotFound
	}
	return s.AgentByID(ctx, id)
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrAgentNotFound
	}
	return nil
}

func (s *Store) AgentByID(ctx context.Context, id string) (core.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

func (s *Store) ActiveAgentByName(ctx context.Context, projectID, normalizedName string) (core.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE project_id = ? AND normalized_name = ? AND active = 1`,
		projectID, normalizedName)
	return scanAgent(row)
}

func (s *Store) ActiveAgentByNameGlobal(ctx context.Context, normalizedName string) (core.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE normalized_name = ? AND active = 1`,
		normalizedName)
	return scanAgent(row)
}

func (s *Store) AgentsForProject(ctx context.Context, projectID string) ([]core.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE project_id = ? AND active = 1 ORDER BY canonical_name`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	var out []core.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func scanAgent(row scanner) (core.Agent, error) {
	var a core.Agent
	var active int
	var created, updated string
	if err := row.Scan(&a.ID, &a.ProjectID, &a.Name, &a.NormalizedName, &a.Program, &a.Model,
		&a.TaskDescription, &active, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Agent{}, core.ErrAgentNotFound
		}
		return core.Agent{}, fmt.Errorf("scan agent: %w", err)
	}
	a.Active = active == 1
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return a, nil
}
