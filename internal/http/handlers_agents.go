package httpapi

import (
	"net/http"
	"strings"

	"github.com/mistakeknot/courier/internal/mail"
	"github.com/mistakeknot/courier/internal/names"
)

type registerAgentRequest struct {
	Project         string `json:"project"`
	Name            string `json:"name"`
	Program         string `json:"program,omitempty"`
	Model           string `json:"model,omitempty"`
	TaskDescription string `json:"task_description,omitempty"`
}

func (s *Service) handleAgents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listAgents(w, r)
	case http.MethodPost:
		s.registerAgent(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) registerAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Project) == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "project required"})
		return
	}
	if !projectAllowed(r, req.Project) {
		forbidden(w)
		return
	}
	agent, err := s.mail.Register(r.Context(), req.Project, mail.RegisterInput{
		Name:            req.Name,
		Program:         req.Program,
		Model:           req.Model,
		TaskDescription: req.TaskDescription,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIAgent(names.Slugify(req.Project), agent))
}

func (s *Service) listAgents(w http.ResponseWriter, r *http.Request) {
	project := strings.TrimSpace(r.URL.Query().Get("project"))
	if project == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "project query parameter required"})
		return
	}
	if !projectAllowed(r, project) {
		forbidden(w)
		return
	}
	agents, err := s.mail.Agents(r.Context(), project)
	if err != nil {
		writeError(w, err)
		return
	}
	slug := names.Slugify(project)
	out := make([]apiAgent, 0, len(agents))
	for _, a := range agents {
		out = append(out, toAPIAgent(slug, a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": out})
}

type renameAgentRequest struct {
	NewName string `json:"new_name"`
}

// handleAgentByPath routes /api/agents/{project}/{name} and the rename
// action nested under it.
func (s *Service) handleAgentByPath(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/agents/"), "/"), "/")
	switch {
	case len(parts) == 2:
		project, name := parts[0], parts[1]
		if !projectAllowed(r, project) {
			forbidden(w)
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.whoisAgent(w, r, project, name)
		case http.MethodDelete:
			s.deleteAgent(w, r, project, name)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 3 && parts[2] == "rename":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !projectAllowed(r, parts[0]) {
			forbidden(w)
			return
		}
		s.renameAgent(w, r, parts[0], parts[1])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Service) whoisAgent(w http.ResponseWriter, r *http.Request, project, name string) {
	agent, err := s.mail.Whois(r.Context(), project, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIAgent(names.Slugify(project), agent))
}

func (s *Service) renameAgent(w http.ResponseWriter, r *http.Request, project, name string) {
	var req renameAgentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	agent, err := s.mail.Rename(r.Context(), project, name, req.NewName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIAgent(names.Slugify(project), agent))
}

func (s *Service) deleteAgent(w http.ResponseWriter, r *http.Request, project, name string) {
	result, err := s.mail.Delete(r.Context(), project, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": result.Deleted,
		"agent":   toAPIAgent(names.Slugify(project), result.Agent),
	})
}
