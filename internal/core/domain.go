package core

import "time"

// Project is a logical collaboration space (usually a codebase). Projects are
// created lazily the first time any operation references their key and are
// never deleted. Each project owns one archive repository.
type Project struct {
	ID        string    `json:"id"`
	HumanKey  string    `json:"human_key"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Agent is a registered participant in exactly one project. Name carries the
// display casing used for archive paths; NormalizedName is the lower-cased
// uniqueness key. Name changes only through the lifecycle rename operation.
type Agent struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Name            string    `json:"name"`
	NormalizedName  string    `json:"-"`
	Program         string    `json:"program,omitempty"`
	Model           string    `json:"model,omitempty"`
	TaskDescription string    `json:"task_description,omitempty"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type RecipientKind string

const (
	KindTo  RecipientKind = "to"
	KindCc  RecipientKind = "cc"
	KindBcc RecipientKind = "bcc"
)

// Message is immutable once created and always scoped to the sender's
// project, even when recipients live elsewhere.
type Message struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	SenderID    string    `json:"sender_id"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	ThreadID    string    `json:"thread_id"`
	Importance  string    `json:"importance"`
	AckRequired bool      `json:"ack_required"`
	CreatedAt   time.Time `json:"created_at"`
}

// Recipient is one delivery edge of a message. Read and ack marks live here
// so the message row itself never changes.
type Recipient struct {
	MessageID string        `json:"message_id"`
	AgentID   string        `json:"agent_id"`
	Kind      RecipientKind `json:"kind"`
	ReadAt    *time.Time    `json:"read_at,omitempty"`
	AckedAt   *time.Time    `json:"acked_at,omitempty"`
}

// MessageView is a message annotated with display names for listing. From,
// To and Cc carry canonical agent names, never raw identifiers; bcc lists
// are never exposed.
type MessageView struct {
	ID          string        `json:"id"`
	ThreadID    string        `json:"thread_id"`
	Subject     string        `json:"subject"`
	Body        string        `json:"body"`
	From        string        `json:"from"`
	To          []string      `json:"to"`
	Cc          []string      `json:"cc,omitempty"`
	Importance  string        `json:"importance"`
	AckRequired bool          `json:"ack_required"`
	Kind        RecipientKind `json:"kind,omitempty"`
	Read        bool          `json:"read"`
	Acked       bool          `json:"acked"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ProjectDelivery reports how many recipients a send reached in one project.
type ProjectDelivery struct {
	Project string `json:"project"`
	Count   int    `json:"count"`
}

// DeliveryResult summarizes a send or reply fan-out. Unresolved lists the
// recipient tokens that could not be resolved and were skipped.
type DeliveryResult struct {
	MessageID  string            `json:"message_id"`
	ThreadID   string            `json:"thread_id"`
	Count      int               `json:"count"`
	Deliveries []ProjectDelivery `json:"deliveries"`
	Unresolved []string          `json:"unresolved,omitempty"`
}

// AgentLink is legacy contact-workflow data. Delivery never consults it;
// only the deletion gate reads it.
type AgentLink struct {
	ID          string    `json:"id"`
	AAgentID    string    `json:"a_agent_id"`
	BAgentID    string    `json:"b_agent_id"`
	Relation    string    `json:"relation"`
	InitiatedBy string    `json:"initiated_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Reservation is an advisory lock on a path pattern within a project.
type Reservation struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	AgentID     string     `json:"agent_id"`
	AgentName   string     `json:"agent,omitempty"`
	PathPattern string     `json:"path_pattern"`
	Exclusive   bool       `json:"exclusive"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
}

// ActiveAt reports whether the reservation is live at t: not released and
// not yet expired. Released or expired rows are inert but kept for history.
func (r Reservation) ActiveAt(t time.Time) bool {
	return r.ReleasedAt == nil && r.ExpiresAt.After(t)
}

func (r Reservation) IsActive() bool {
	return r.ActiveAt(time.Now().UTC())
}

// DeleteResult is returned by agent deletion.
type DeleteResult struct {
	Deleted bool  `json:"deleted"`
	Agent   Agent `json:"agent"`
}
