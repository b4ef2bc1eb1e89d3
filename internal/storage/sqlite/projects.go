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

const projectColumns = "id, human_key, slug, created_ts"

func (s *Store) EnsureProject(ctx context.Context, humanKey, slug string) (core.Project, error) {
	now := time.Now().UTC()
	// First writer wins: a case-variant human key merges into the existing
	// slug row.
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, human_key, slug, created_ts) VALUES (?, ?, ?, ?)
		 ON CONFLICT(slug) DO NOTHING`,
		uuid.NewString(), humanKey, slug, fmtTime(now),
	); err != nil {
		return core.Project{}, fmt.Errorf("ensure project: %w", err)
	}
	return s.ProjectBySlug(ctx, slug)
}

func (s *Store) ProjectBySlug(ctx context.Context, slug string) (core.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE slug = ?`, slug)
	return scanProject(row)
}

func (s *Store) ProjectByID(ctx context.Context, id string) (core.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

func (s *Store) Projects(ctx context.Context) ([]core.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var out []core.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func scanProject(row scanner) (core.Project, error) {
	var p core.Project
	var created string
	if err := row.Scan(&p.ID, &p.HumanKey, &p.Slug, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Project{}, core.ErrProjectNotFound
		}
		return core.Project{}, fmt.Errorf("scan project: %w", err)
	}
	p.CreatedAt = parseTime(created)
	return p, nil
}
