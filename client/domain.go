package client

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// Project mirrors the server's project resource.
type Project struct {
	ID        string    `json:"id"`
	HumanKey  string    `json:"human_key"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Agent mirrors the server's agent resource. Timestamps arrive as
// RFC 3339 strings.
type Agent struct {
	Name            string `json:"name"`
	Project         string `json:"project"`
	Program         string `json:"program,omitempty"`
	Model           string `json:"model,omitempty"`
	TaskDescription string `json:"task_description,omitempty"`
	RegisteredAt    string `json:"registered_ts"`
	UpdatedAt       string `json:"updated_ts"`
}

// Message is one annotated inbox or thread entry.
type Message struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	From        string    `json:"from"`
	To          []string  `json:"to"`
	Cc          []string  `json:"cc,omitempty"`
	Importance  string    `json:"importance"`
	AckRequired bool      `json:"ack_required"`
	Kind        string    `json:"kind,omitempty"`
	Read        bool      `json:"read"`
	Acked       bool      `json:"acked"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProjectDelivery is the per-project slice of a fan-out.
type ProjectDelivery struct {
	Project string `json:"project"`
	Count   int    `json:"count"`
}

// DeliveryResult summarizes a send or reply.
type DeliveryResult struct {
	MessageID  string            `json:"message_id"`
	ThreadID   string            `json:"thread_id"`
	Count      int               `json:"count"`
	Deliveries []ProjectDelivery `json:"deliveries"`
	Unresolved []string          `json:"unresolved,omitempty"`
}

// Reservation mirrors the server's reservation resource.
type Reservation struct {
	ID          string  `json:"id"`
	Project     string  `json:"project,omitempty"`
	Agent       string  `json:"agent,omitempty"`
	PathPattern string  `json:"path_pattern"`
	Exclusive   bool    `json:"exclusive"`
	Reason      string  `json:"reason,omitempty"`
	CreatedAt   string  `json:"created_at"`
	ExpiresAt   string  `json:"expires_at"`
	ReleasedAt  *string `json:"released_at,omitempty"`
	Active      bool    `json:"active"`
}

// DeleteResult reports an agent deletion.
type DeleteResult struct {
	Deleted bool  `json:"deleted"`
	Agent   Agent `json:"agent"`
}

// RegisterInput describes the agent to register or refresh.
type RegisterInput struct {
	Project         string `json:"project"`
	Name            string `json:"name"`
	Program         string `json:"program,omitempty"`
	Model           string `json:"model,omitempty"`
	TaskDescription string `json:"task_description,omitempty"`
}

// SendInput describes an outgoing message. Recipient entries may be
// bare names or "project:<key>#<name>" tokens.
type SendInput struct {
	Project     string   `json:"project"`
	From        string   `json:"from"`
	To          []string `json:"to"`
	Cc          []string `json:"cc,omitempty"`
	Bcc         []string `json:"bcc,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Body        string   `json:"body"`
	Importance  string   `json:"importance,omitempty"`
	AckRequired bool     `json:"ack_required,omitempty"`
	ThreadID    string   `json:"thread_id,omitempty"`
}

// ReplyInput describes a reply; empty To targets the parent's sender.
type ReplyInput struct {
	Project string   `json:"project"`
	From    string   `json:"from"`
	Body    string   `json:"body"`
	To      []string `json:"to,omitempty"`
	Cc      []string `json:"cc,omitempty"`
}

// ReserveInput describes a path claim. Exclusive defaults to true on
// the server when nil.
type ReserveInput struct {
	Project     string `json:"project"`
	Agent       string `json:"agent"`
	PathPattern string `json:"path_pattern"`
	Exclusive   *bool  `json:"exclusive,omitempty"`
	Reason      string `json:"reason,omitempty"`
	TTLMinutes  int    `json:"ttl_minutes,omitempty"`
}

// InboxOptions bounds an inbox fetch.
type InboxOptions struct {
	Limit      int
	UnreadOnly bool
}

// EnsureProject creates the project if needed and returns it either way.
func (c *Client) EnsureProject(ctx context.Context, humanKey string) (Project, error) {
	resp, err := c.postJSON(ctx, "/api/projects", map[string]string{"human_key": humanKey})
	if err != nil {
		return Project{}, err
	}
	return decode[Project](resp, 200)
}

// Projects lists every known project.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	resp, err := c.get(ctx, "/api/projects")
	if err != nil {
		return nil, err
	}
	out, err := decode[struct {
		Projects []Project `json:"projects"`
	}](resp, 200)
	return out.Projects, err
}

// Register creates or refreshes an agent identity.
func (c *Client) Register(ctx context.Context, in RegisterInput) (Agent, error) {
	if in.Project == "" {
		in.Project = c.Project
	}
	resp, err := c.postJSON(ctx, "/api/agents", in)
	if err != nil {
		return Agent{}, err
	}
	return decode[Agent](resp, 200)
}

// Agents lists a project's active agents.
func (c *Client) Agents(ctx context.Context, project string) ([]Agent, error) {
	if project == "" {
		project = c.Project
	}
	resp, err := c.get(ctx, "/api/agents?project="+url.QueryEscape(project))
	if err != nil {
		return nil, err
	}
	out, err := decode[struct {
		Agents []Agent `json:"agents"`
	}](resp, 200)
	return out.Agents, err
}

// Whois fetches one agent's profile.
func (c *Client) Whois(ctx context.Context, project, name string) (Agent, error) {
	if project == "" {
		project = c.Project
	}
	resp, err := c.get(ctx, "/api/agents/"+url.PathEscape(project)+"/"+url.PathEscape(name))
	if err != nil {
		return Agent{}, err
	}
	return decode[Agent](resp, 200)
}

// Rename moves an agent to a new name.
func (c *Client) Rename(ctx context.Context, project, name, newName string) (Agent, error) {
	if project == "" {
		project = c.Project
	}
	path := "/api/agents/" + url.PathEscape(project) + "/" + url.PathEscape(name) + "/rename"
	resp, err := c.postJSON(ctx, path, map[string]string{"new_name": newName})
	if err != nil {
		return Agent{}, err
	}
	return decode[Agent](resp, 200)
}

// Delete removes an agent permanently.
func (c *Client) Delete(ctx context.Context, project, name string) (DeleteResult, error) {
	if project == "" {
		project = c.Project
	}
	resp, err := c.delete(ctx, "/api/agents/"+url.PathEscape(project)+"/"+url.PathEscape(name))
	if err != nil {
		return DeleteResult{}, err
	}
	return decode[DeleteResult](resp, 200)
}

// Send fans a message out.
func (c *Client) Send(ctx context.Context, in SendInput) (DeliveryResult, error) {
	if in.Project == "" {
		in.Project = c.Project
	}
	resp, err := c.postJSON(ctx, "/api/messages", in)
	if err != nil {
		return DeliveryResult{}, err
	}
	return decode[DeliveryResult](resp, 200)
}

// Reply answers an existing message within its thread.
func (c *Client) Reply(ctx context.Context, messageID string, in ReplyInput) (DeliveryResult, error) {
	if in.Project == "" {
		in.Project = c.Project
	}
	resp, err := c.postJSON(ctx, "/api/messages/"+url.PathEscape(messageID)+"/reply", in)
	if err != nil {
		return DeliveryResult{}, err
	}
	return decode[DeliveryResult](resp, 200)
}

// MarkRead stamps a message read for the agent.
func (c *Client) MarkRead(ctx context.Context, project, agent, messageID string) error {
	return c.markMessage(ctx, project, agent, messageID, "read")
}

// Acknowledge stamps a message acknowledged for the agent.
func (c *Client) Acknowledge(ctx context.Context, project, agent, messageID string) error {
	return c.markMessage(ctx, project, agent, messageID, "ack")
}

func (c *Client) markMessage(ctx context.Context, project, agent, messageID, action string) error {
	if project == "" {
		project = c.Project
	}
	resp, err := c.postJSON(ctx, "/api/messages/"+url.PathEscape(messageID)+"/"+action,
		map[string]string{"project": project, "agent": agent})
	if err != nil {
		return err
	}
	return checkStatus(resp, 200)
}

// Inbox fetches an agent's received messages, newest first.
func (c *Client) Inbox(ctx context.Context, project, agent string, opts InboxOptions) ([]Message, error) {
	if project == "" {
		project = c.Project
	}
	values := url.Values{}
	if opts.Limit > 0 {
		values.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.UnreadOnly {
		values.Set("unread", "true")
	}
	path := "/api/inbox/" + url.PathEscape(project) + "/" + url.PathEscape(agent)
	if len(values) > 0 {
		path += "?" + values.Encode()
	}
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	out, err := decode[struct {
		Messages []Message `json:"messages"`
	}](resp, 200)
	return out.Messages, err
}

// Thread fetches a conversation oldest first.
func (c *Client) Thread(ctx context.Context, threadID string) ([]Message, error) {
	resp, err := c.get(ctx, "/api/threads/"+url.PathEscape(threadID))
	if err != nil {
		return nil, err
	}
	out, err := decode[struct {
		Messages []Message `json:"messages"`
	}](resp, 200)
	return out.Messages, err
}

// Reserve claims a path pattern.
func (c *Client) Reserve(ctx context.Context, in ReserveInput) (Reservation, error) {
	if in.Project == "" {
		in.Project = c.Project
	}
	resp, err := c.postJSON(ctx, "/api/reservations", in)
	if err != nil {
		return Reservation{}, err
	}
	return decode[Reservation](resp, 201)
}

// Reservations lists a project's active claims.
func (c *Client) Reservations(ctx context.Context, project string) ([]Reservation, error) {
	if project == "" {
		project = c.Project
	}
	resp, err := c.get(ctx, "/api/reservations?project="+url.QueryEscape(project))
	if err != nil {
		return nil, err
	}
	out, err := decode[struct {
		Reservations []Reservation `json:"reservations"`
	}](resp, 200)
	return out.Reservations, err
}

// Release ends a reservation. Force skips the ownership check.
func (c *Client) Release(ctx context.Context, id, agent string, force bool) error {
	resp, err := c.postJSON(ctx, "/api/reservations/"+url.PathEscape(id)+"/release",
		map[string]any{"agent": agent, "force": force})
	if err != nil {
		return err
	}
	return checkStatus(resp, 200)
}

// Renew extends an active reservation.
func (c *Client) Renew(ctx context.Context, id, agent string, ttlMinutes int) (Reservation, error) {
	resp, err := c.postJSON(ctx, "/api/reservations/"+url.PathEscape(id)+"/renew",
		map[string]any{"agent": agent, "ttl_minutes": ttlMinutes})
	if err != nil {
		return Reservation{}, err
	}
	return decode[Reservation](resp, 200)
}
