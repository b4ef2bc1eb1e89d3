package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mistakeknot/courier/internal/core"
	"github.com/mistakeknot/courier/internal/storage"
)

const messageColumns = "id, project_id, sender_id, subject, body, thread_id, importance, ack_required, created_ts"

// CreateMessage inserts the message and all recipient edges in one
// transaction. IDs are caller-assigned.
func (s *Store) CreateMessage(ctx context.Context, m core.Message, recipients []core.Recipient) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, project_id, sender_id, subject, body, thread_id, importance, ack_required, created_ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProjectID, m.SenderID, m.Subject, m.Body, m.ThreadID, m.Importance,
		boolToInt(m.AckRequired), fmtTime(m.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	for _, r := range recipients {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO message_recipients (message_id, agent_id, kind) VALUES (?, ?, ?)
			 ON CONFLICT(message_id, agent_id, kind) DO NOTHING`,
			m.ID, r.AgentID, string(r.Kind),
		); err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}

func (s *Store) MessageByID(ctx context.Context, id string) (core.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	return scanMessage(row)
}

func (s *Store) RecipientViews(ctx context.Context, messageID string) ([]storage.RecipientView, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.agent_id, a.canonical_name, r.kind
		 FROM message_recipients r
		 JOIN agents a ON a.id = r.agent_id
		 WHERE r.message_id = ?
		 ORDER BY r.kind, a.canonical_name`, messageID)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	var out []storage.RecipientView
	for rows.Next() {
		var v storage.RecipientView
		var kind string
		if err := rows.Scan(&v.AgentID, &v.Name, &kind); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		v.Kind = core.RecipientKind(kind)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *Store) Inbox(ctx context.Context, agentID string, limit int, unreadOnly bool) ([]storage.InboxEntry, error) {
	query := `SELECT m.id, m.project_id, m.sender_id, m.subject, m.body, m.thread_id, m.importance, m.ack_required, m.created_ts,
	                 r.kind, r.read_ts, r.ack_ts
	          FROM message_recipients r
	          JOIN messages m ON m.id = r.message_id
	          WHERE r.agent_id = ?`
	args := []any{agentID}
	if unreadOnly {
		query += ` AND r.read_ts IS NULL`
	}
	query += ` ORDER BY m.created_ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query inbox: %w", err)
	}
	defer rows.Close()

	var out []storage.InboxEntry
	for rows.Next() {
		var e storage.InboxEntry
		var ack int
		var created, kind string
		var readTS, ackTS sql.NullString
		if err := rows.Scan(&e.Message.ID, &e.Message.ProjectID, &e.Message.SenderID, &e.Message.Subject,
			&e.Message.Body, &e.Message.ThreadID, &e.Message.Importance, &ack, &created,
			&kind, &readTS, &ackTS); err != nil {
			return nil, fmt.Errorf("scan inbox: %w", err)
		}
		e.Message.AckRequired = ack == 1
		e.Message.CreatedAt = parseTime(created)
		e.Kind = core.RecipientKind(kind)
		e.ReadAt = timePtr(readTS)
		e.AckedAt = timePtr(ackTS)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *Store) ThreadMessages(ctx context.Context, threadID string) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE thread_id = ? ORDER BY created_ts ASC`,
		threadID)
	if err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, messageID, agentID string, ts time.Time) error {
	return s.markRecipient(ctx, "read_ts", messageID, agentID, ts)
}

func (s *Store) MarkAcked(ctx context.Context, messageID, agentID string, ts time.Time) error {
	return s.markRecipient(ctx, "ack_ts", messageID, agentID, ts)
}

// markRecipient stamps a recipient edge once; repeat calls are no-ops so
// the first timestamp survives.
func (s *Store) markRecipient(ctx context.Context, column, messageID, agentID string, ts time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE message_recipients SET `+column+` = ? WHERE message_id = ? AND agent_id = ? AND `+column+` IS NULL`,
		fmtTime(ts), messageID, agentID,
	)
	if err != nil {
		return fmt.Errorf("mark %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM message_recipients WHERE message_id = ? AND agent_id = ?)`,
		messageID, agentID)
	var exists int
	if err := row.Scan(&exists); err != nil {
		return fmt.Errorf("check recipient: %w", err)
	}
	if exists == 0 {
		return core.ErrMessageNotFound
	}
	return nil
}

func (s *Store) HasMessageTraffic(ctx context.Context, agentID string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM messages WHERE sender_id = ?)
		     OR EXISTS(SELECT 1 FROM message_recipients WHERE agent_id = ?)`,
		agentID, agentID)
	var v int
	if err := row.Scan(&v); err != nil {
		return false, fmt.Errorf("check message traffic: %w", err)
	}
	return v == 1, nil
}

func scanMessage(row scanner) (core.Message, error) {
	var m core.Message
	var ack int
	var created string
	if err := row.Scan(&m.ID, &m.ProjectID, &m.SenderID, &m.Subject, &m.Body, &m.ThreadID,
		&m.Importance, &ack, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Message{}, core.ErrMessageNotFound
		}
		return core.Message{}, fmt.Errorf("scan message: %w", err)
	}
	m.AckRequired = ack == 1
	m.CreatedAt = parseTime(created)
	return m, nil
}
