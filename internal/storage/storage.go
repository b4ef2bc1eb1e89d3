package storage

import (
	"context"
	"time"

	"github.com/mistakeknot/courier/internal/core"
)

// InboxEntry pairs a message with the recipient edge that put it in an
// agent's inbox.
type InboxEntry struct {
	Message core.Message
	Kind    core.RecipientKind
	ReadAt  *time.Time
	AckedAt *time.Time
}

// RecipientView is a recipient edge joined with the agent's display name.
type RecipientView struct {
	AgentID string
	Name    string
	Kind    core.RecipientKind
}

// Store is the authoritative relational store. Each method is atomic;
// operation-level serialization (register, lifecycle) is layered on top by
// the service.
type Store interface {
	// Projects. EnsureProject merges case-insensitively on slug: the first
	// writer's human key casing wins.
	EnsureProject(ctx context.Context, humanKey, slug string) (core.Project, error)
	ProjectBySlug(ctx context.Context, slug string) (core.Project, error)
	ProjectByID(ctx context.Context, id string) (core.Project, error)
	Projects(ctx context.Context) ([]core.Project, error)

	// Agents. "Active" lookups only ever see rows holding a live name claim.
	CreateAgent(ctx context.Context, a core.Agent) (core.Agent, error)
	UpdateAgentProfile(ctx context.Context, id, program, model, taskDescription string, ts time.Time) (core.Agent, error)
	UpdateAgentName(ctx context.Context, id, canonicalName, normalizedName string, ts time.Time) (core.Agent, error)
	DeleteAgent(ctx context.Context, id string) error
	AgentByID(ctx context.Context, id string) (core.Agent, error)
	ActiveAgentByName(ctx context.Context, projectID, normalizedName string) (core.Agent, error)
	ActiveAgentByNameGlobal(ctx context.Context, normalizedName string) (core.Agent, error)
	AgentsForProject(ctx context.Context, projectID string) ([]core.Agent, error)

	// Messages. CreateMessage inserts the message and all recipient edges in
	// one transaction.
	CreateMessage(ctx context.Context, m core.Message, recipients []core.Recipient) error
	MessageByID(ctx context.Context, id string) (core.Message, error)
	RecipientViews(ctx context.Context, messageID string) ([]RecipientView, error)
	Inbox(ctx context.Context, agentID string, limit int, unreadOnly bool) ([]InboxEntry, error)
	ThreadMessages(ctx context.Context, threadID string) ([]core.Message, error)
	MarkRead(ctx context.Context, messageID, agentID string, ts time.Time) error
	MarkAcked(ctx context.Context, messageID, agentID string, ts time.Time) error
	HasMessageTraffic(ctx context.Context, agentID string) (bool, error)

	// Legacy contact links; only the deletion gate reads them.
	AddAgentLink(ctx context.Context, l core.AgentLink) error
	HasAgentLinks(ctx context.Context, agentID string) (bool, error)

	// Reservations. Expiry is evaluated by callers against ExpiresAt, rows
	// are never mutated by the passage of time.
	CreateReservation(ctx context.Context, r core.Reservation) (core.Reservation, error)
	ReservationByID(ctx context.Context, id string) (core.Reservation, error)
	ActiveReservations(ctx context.Context, projectID string, now time.Time) ([]core.Reservation, error)
	ActiveReservationsForAgent(ctx context.Context, agentID string, now time.Time) ([]core.Reservation, error)
	ReleaseReservation(ctx context.Context, id string, ts time.Time) error
	RenewReservation(ctx context.Context, id string, expiresAt time.Time) error
	ExpiredBetween(ctx context.Context, from, to time.Time) ([]core.Reservation, error)

	Ping(ctx context.Context) error
	Close() error
}
