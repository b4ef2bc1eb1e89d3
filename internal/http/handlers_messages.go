package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mistakeknot/courier/internal/mail"
)

type sendMessageRequest struct {
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

func (s *Service) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req sendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Project) == "" || strings.TrimSpace(req.From) == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "project and from required"})
		return
	}
	if len(req.To)+len(req.Cc)+len(req.Bcc) == 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "at least one recipient required"})
		return
	}
	if !projectAllowed(r, req.Project) {
		forbidden(w)
		return
	}
	result, err := s.mail.Send(r.Context(), req.Project, req.From, mail.SendInput{
		To:          req.To,
		Cc:          req.Cc,
		Bcc:         req.Bcc,
		Subject:     req.Subject,
		Body:        req.Body,
		Importance:  req.Importance,
		AckRequired: req.AckRequired,
		ThreadID:    req.ThreadID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type replyRequest struct {
	Project string   `json:"project"`
	From    string   `json:"from"`
	Body    string   `json:"body"`
	To      []string `json:"to,omitempty"`
	Cc      []string `json:"cc,omitempty"`
}

type messageActionRequest struct {
	Project string `json:"project"`
	Agent   string `json:"agent"`
}

// handleMessageAction routes POST /api/messages/{id}/{reply|read|ack}.
func (s *Service) handleMessageAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/messages/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	messageID, action := parts[0], parts[1]

	switch action {
	case "reply":
		s.replyMessage(w, r, messageID)
	case "read", "ack":
		s.markMessage(w, r, messageID, action)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Service) replyMessage(w http.ResponseWriter, r *http.Request, messageID string) {
	var req replyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Project) == "" || strings.TrimSpace(req.From) == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "project and from required"})
		return
	}
	if !projectAllowed(r, req.Project) {
		forbidden(w)
		return
	}
	result, err := s.mail.Reply(r.Context(), req.Project, req.From, messageID, mail.ReplyInput{
		Body: req.Body,
		To:   req.To,
		Cc:   req.Cc,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) markMessage(w http.ResponseWriter, r *http.Request, messageID, action string) {
	var req messageActionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Project) == "" || strings.TrimSpace(req.Agent) == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "project and agent required"})
		return
	}
	if !projectAllowed(r, req.Project) {
		forbidden(w)
		return
	}
	var err error
	if action == "read" {
		err = s.mail.MarkRead(r.Context(), req.Project, req.Agent, messageID)
	} else {
		err = s.mail.Acknowledge(r.Context(), req.Project, req.Agent, messageID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleInbox serves GET /api/inbox/{project}/{agent}.
func (s *Service) handleInbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/inbox/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	project, agent := parts[0], parts[1]
	if !projectAllowed(r, project) {
		forbidden(w)
		return
	}

	var q mail.InboxQuery
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "limit must be an integer"})
			return
		}
		q.Limit = n
	}
	q.UnreadOnly = r.URL.Query().Get("unread") == "true"

	messages, err := s.mail.Inbox(r.Context(), project, agent, q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
