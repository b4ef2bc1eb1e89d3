package mail

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/mistakeknot/courier/internal/archive"
	"github.com/mistakeknot/courier/internal/core"
	"github.com/mistakeknot/courier/internal/names"
)

// SendInput is the caller's side of a send call. Recipient tokens may be
// bare names or cross-project "project:<key>#<name>" tokens.
type SendInput struct {
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Body        string
	Importance  string
	AckRequired bool
	ThreadID    string
}

// ReplyInput carries the reply body and optional explicit targets. When To
// is empty the reply goes to the parent message's sender.
type ReplyInput struct {
	Body string
	To   []string
	Cc   []string
}

// InboxQuery bounds an inbox listing.
type InboxQuery struct {
	Limit      int
	UnreadOnly bool
}

const (
	defaultInboxLimit = 20
	maxInboxLimit     = 100
)

// target is one resolved recipient.
type target struct {
	agent   core.Agent
	project core.Project
	kind    core.RecipientKind
}

// Send fans a message out to every resolvable recipient. Unresolvable
// tokens are skipped and reported in the result, never fatal. The message
// row lands in the sender's project regardless of where recipients live.
func (s *Service) Send(ctx context.Context, projectKey, senderName string, in SendInput) (core.DeliveryResult, error) {
	project, sender, err := s.resolve(ctx, projectKey, senderName)
	if err != nil {
		return core.DeliveryResult{}, err
	}

	targets, unresolved, err := s.resolveRecipients(ctx, project, in)
	if err != nil {
		return core.DeliveryResult{}, err
	}

	threadID := strings.TrimSpace(in.ThreadID)
	if threadID == "" {
		threadID = uuid.NewString()
	}
	importance := strings.TrimSpace(in.Importance)
	if importance == "" {
		importance = "normal"
	}

	msg := core.Message{
		ID:          uuid.NewString(),
		ProjectID:   project.ID,
		SenderID:    sender.ID,
		Subject:     in.Subject,
		Body:        in.Body,
		ThreadID:    threadID,
		Importance:  importance,
		AckRequired: in.AckRequired,
		CreatedAt:   s.now(),
	}
	recipients := make([]core.Recipient, 0, len(targets))
	for _, t := range targets {
		recipients = append(recipients, core.Recipient{MessageID: msg.ID, AgentID: t.agent.ID, Kind: t.kind})
	}
	if err := s.store.CreateMessage(ctx, msg, recipients); err != nil {
		return core.DeliveryResult{}, err
	}

	s.mirrorDelivery(ctx, msg, sender, project, targets)

	for _, t := range targets {
		s.emit(t.project.Slug, t.agent.Name, core.EventMessageCreated, map[string]any{
			"message_id": msg.ID,
			"thread_id":  msg.ThreadID,
			"from":       sender.Name,
			"subject":    msg.Subject,
			"importance": msg.Importance,
		})
	}

	result := core.DeliveryResult{
		MessageID:  msg.ID,
		ThreadID:   msg.ThreadID,
		Count:      len(targets),
		Unresolved: unresolved,
	}
	counts := map[string]int{}
	for _, t := range targets {
		if counts[t.project.Slug] == 0 {
			result.Deliveries = append(result.Deliveries, core.ProjectDelivery{Project: t.project.Slug})
		}
		counts[t.project.Slug]++
	}
	for i := range result.Deliveries {
		result.Deliveries[i].Count = counts[result.Deliveries[i].Project]
	}
	return result, nil
}

// resolveRecipients walks to, cc and bcc in order, resolving each token
// independently. An agent reached through several tokens is delivered to
// once, under the first kind that mentioned it.
func (s *Service) resolveRecipients(ctx context.Context, sender core.Project, in SendInput) ([]target, []string, error) {
	var (
		targets    []target
		unresolved []string
		seen       = map[string]bool{}
	)
	for _, set := range []struct {
		tokens []string
		kind   core.RecipientKind
	}{
		{in.To, core.KindTo},
		{in.Cc, core.KindCc},
		{in.Bcc, core.KindBcc},
	} {
		for _, token := range set.tokens {
			if strings.TrimSpace(token) == "" {
				continue
			}
			agent, proj, err := s.resolveToken(ctx, sender, token)
			switch {
			case err == nil:
			case isUnresolvable(err):
				unresolved = append(unresolved, token)
				continue
			default:
				return nil, nil, err
			}
			if seen[agent.ID] {
				continue
			}
			seen[agent.ID] = true
			targets = append(targets, target{agent: agent, project: proj, kind: set.kind})
		}
	}
	return targets, unresolved, nil
}

// resolveToken finds the agent a token addresses. Remote tokens ensure
// their project exists first, exactly like registration does, so sending
// to a fresh project key creates it even when the agent lookup then
// misses.
func (s *Service) resolveToken(ctx context.Context, sender core.Project, token string) (core.Agent, core.Project, error) {
	a := parseAddress(token)
	normalized, err := names.Normalize(a.name)
	if err != nil {
		return core.Agent{}, core.Project{}, fmt.Errorf("recipient %q: %w", token, core.ErrInvalidName)
	}
	project := sender
	if a.remote {
		project, err = s.EnsureProject(ctx, a.project)
		if err != nil {
			return core.Agent{}, core.Project{}, err
		}
	}
	agent, err := s.store.ActiveAgentByName(ctx, project.ID, normalized)
	if err != nil {
		return core.Agent{}, core.Project{}, fmt.Errorf("recipient %q: %w", token, err)
	}
	return agent, project, nil
}

func isUnresolvable(err error) bool {
	return errors.Is(err, core.ErrAgentNotFound) ||
		errors.Is(err, core.ErrProjectNotFound) ||
		errors.Is(err, core.ErrInvalidName)
}

// mirrorDelivery writes the archive artifacts, one commit per touched
// project. The relational write has already committed, so failures here
// are logged and the call carries on.
func (s *Service) mirrorDelivery(ctx context.Context, msg core.Message, sender core.Agent, senderProject core.Project, targets []target) {
	var toNames, ccNames []string
	for _, t := range targets {
		switch t.kind {
		case core.KindTo:
			toNames = append(toNames, t.agent.Name)
		case core.KindCc:
			ccNames = append(ccNames, t.agent.Name)
		}
	}

	drops := map[string]*archive.MessageDrop{
		senderProject.Slug: {Outbox: sender.Name},
	}
	order := []string{senderProject.Slug}
	for _, t := range targets {
		d, ok := drops[t.project.Slug]
		if !ok {
			d = &archive.MessageDrop{}
			drops[t.project.Slug] = d
			order = append(order, t.project.Slug)
		}
		d.Inboxes = append(d.Inboxes, t.agent.Name)
	}

	for _, slug := range order {
		if err := s.archive.DeliverMessage(ctx, slug, msg, sender.Name, toNames, ccNames, *drops[slug]); err != nil {
			log.Printf("mail: archive mirror for %s: %v", slug, err)
		}
	}
}

// Reply loads the parent message by id, regardless of which project it
// lives in, and sends into its thread. Without explicit targets the reply
// goes to the parent's sender.
func (s *Service) Reply(ctx context.Context, projectKey, senderName, messageID string, in ReplyInput) (core.DeliveryResult, error) {
	parent, err := s.store.MessageByID(ctx, messageID)
	if err != nil {
		return core.DeliveryResult{}, fmt.Errorf("parent %s: %w", messageID, err)
	}

	to := in.To
	if len(to) == 0 {
		parentSender, err := s.store.AgentByID(ctx, parent.SenderID)
		if err != nil {
			return core.DeliveryResult{}, fmt.Errorf("parent sender: %w", err)
		}
		parentProject, err := s.store.ProjectByID(ctx, parent.ProjectID)
		if err != nil {
			return core.DeliveryResult{}, err
		}
		to = []string{"project:" + parentProject.HumanKey + "#" + parentSender.Name}
	}

	return s.Send(ctx, projectKey, senderName, SendInput{
		To:          to,
		Cc:          in.Cc,
		Subject:     replySubject(parent.Subject),
		Body:        in.Body,
		Importance:  parent.Importance,
		AckRequired: false,
		ThreadID:    parent.ThreadID,
	})
}

func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	if subject == "" {
		return "Re:"
	}
	return "Re: " + subject
}

// Inbox lists an agent's received messages, most recent first, annotated
// with display names.
func (s *Service) Inbox(ctx context.Context, projectKey, agentName string, q InboxQuery) ([]core.MessageView, error) {
	_, agent, err := s.resolve(ctx, projectKey, agentName)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultInboxLimit
	}
	if limit > maxInboxLimit {
		limit = maxInboxLimit
	}
	entries, err := s.store.Inbox(ctx, agent.ID, limit, q.UnreadOnly)
	if err != nil {
		return nil, err
	}
	views := make([]core.MessageView, 0, len(entries))
	for _, e := range entries {
		view, err := s.annotate(ctx, e.Message)
		if err != nil {
			return nil, err
		}
		view.Kind = e.Kind
		view.Read = e.ReadAt != nil
		view.Acked = e.AckedAt != nil
		views = append(views, view)
	}
	return views, nil
}

// Thread lists a conversation oldest-first, annotated like an inbox.
func (s *Service) Thread(ctx context.Context, threadID string) ([]core.MessageView, error) {
	msgs, err := s.store.ThreadMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	views := make([]core.MessageView, 0, len(msgs))
	for _, m := range msgs {
		view, err := s.annotate(ctx, m)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// annotate builds the display view of a message: sender and recipient
// names instead of ids, bcc edges omitted.
func (s *Service) annotate(ctx context.Context, m core.Message) (core.MessageView, error) {
	view := core.MessageView{
		ID:          m.ID,
		ThreadID:    m.ThreadID,
		Subject:     m.Subject,
		Body:        m.Body,
		Importance:  m.Importance,
		AckRequired: m.AckRequired,
		CreatedAt:   m.CreatedAt,
	}
	sender, err := s.store.AgentByID(ctx, m.SenderID)
	if err == nil {
		view.From = sender.Name
	} else if !errors.Is(err, core.ErrAgentNotFound) {
		return core.MessageView{}, err
	}
	views, err := s.store.RecipientViews(ctx, m.ID)
	if err != nil {
		return core.MessageView{}, err
	}
	for _, r := range views {
		switch r.Kind {
		case core.KindTo:
			view.To = append(view.To, r.Name)
		case core.KindCc:
			view.Cc = append(view.Cc, r.Name)
		}
	}
	return view, nil
}

// MarkRead stamps the recipient edge's read timestamp. Marking twice keeps
// the first timestamp.
func (s *Service) MarkRead(ctx context.Context, projectKey, agentName, messageID string) error {
	_, agent, err := s.resolve(ctx, projectKey, agentName)
	if err != nil {
		return err
	}
	return s.store.MarkRead(ctx, messageID, agent.ID, s.now())
}

// Acknowledge stamps the recipient edge's ack timestamp. Independent of
// the read mark.
func (s *Service) Acknowledge(ctx context.Context, projectKey, agentName, messageID string) error {
	_, agent, err := s.resolve(ctx, projectKey, agentName)
	if err != nil {
		return err
	}
	return s.store.MarkAcked(ctx, messageID, agent.ID, s.now())
}
