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

const reservationColumns = `r.id, r.project_id, r.agent_id, a.canonical_name, r.path_pattern, r.exclusive, r.reason, r.created_ts, r.expires_ts, r.released_ts`

const reservationFrom = ` FROM file_reservations r JOIN agents a ON a.id = r.agent_id `

func (s *Store) CreateReservation(ctx context.Context, r core.Reservation) (core.Reservation, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO file_reservations (id, project_id, agent_id, path_pattern, exclusive, reason, created_ts, expires_ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.AgentID, r.PathPattern, boolToInt(r.Exclusive), r.Reason,
		fmtTime(r.CreatedAt), fmtTime(r.ExpiresAt),
	); err != nil {
		return core.Reservation{}, fmt.Errorf("create reservation: %w", err)
	}
	return s.ReservationByID(ctx, r.ID)
}

func (s *Store) ReservationByID(ctx context.Context, id string) (core.Reservation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+reservationFrom+`WHERE r.id = ?`, id)
	return scanReservation(row)
}

func (s *Store) ActiveReservations(ctx context.Context, projectID string, now time.Time) ([]core.Reservation, error) {
	return s.queryReservations(ctx,
		`SELECT `+reservationColumns+reservationFrom+
			`WHERE r.project_id = ? AND r.released_ts IS NULL AND r.expires_ts > ? ORDER BY r.created_ts`,
		projectID, fmtTime(now))
}

func (s *Store) ActiveReservationsForAgent(ctx context.Context, agentID string, now time.Time) ([]core.Reservation, error) {
	return s.queryReservations(ctx,
		`SELECT `+reservationColumns+reservationFrom+
			`WHERE r.agent_id = ? AND r.released_ts IS NULL AND r.expires_ts > ? ORDER BY r.created_ts`,
		agentID, fmtTime(now))
}

// ExpiredBetween returns unreleased reservations whose expiry falls in
// (from, to]. The notifier uses it to emit each expiry exactly once.
func (s *Store) ExpiredBetween(ctx context.Context, from, to time.Time) ([]core.Reservation, error) {
	return s.queryReservations(ctx,
		`SELECT `+reservationColumns+reservationFrom+
			`WHERE r.released_ts IS NULL AND r.expires_ts > ? AND r.expires_ts <= ? ORDER BY r.expires_ts`,
		fmtTime(from), fmtTime(to))
}

func (s *Store) ReleaseReservation(ctx context.Context, id string, ts time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE file_reservations SET released_ts = ? WHERE id = ? AND released_ts IS NULL`,
		fmtTime(ts), id,
	)
	if err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// Already released is fine; missing is not.
	if _, err := s.ReservationByID(ctx, id); err != nil {
		return err
	}
	return nil
}

func (s *Store) RenewReservation(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE file_reservations SET expires_ts = ? WHERE id = ? AND released_ts IS NULL`,
		fmtTime(expiresAt), id,
	)
	if err != nil {
		return fmt.Errorf("renew reservation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrReservationNotFound
	}
	return nil
}

func (s *Store) queryReservations(ctx context.Context, query string, args ...any) ([]core.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var out []core.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func scanReservation(row scanner) (core.Reservation, error) {
	var r core.Reservation
	var exclusive int
	var created, expires string
	var released sql.NullString
	if err := row.Scan(&r.ID, &r.ProjectID, &r.AgentID, &r.AgentName, &r.PathPattern,
		&exclusive, &r.Reason, &created, &expires, &released); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Reservation{}, core.ErrReservationNotFound
		}
		return core.Reservation{}, fmt.Errorf("scan reservation: %w", err)
	}
	r.Exclusive = exclusive == 1
	r.CreatedAt = parseTime(created)
	r.ExpiresAt = parseTime(expires)
	r.ReleasedAt = timePtr(released)
	return r, nil
}
