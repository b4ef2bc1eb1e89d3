package httpapi

import (
	"net/http"
	"strings"
)

type ensureProjectRequest struct {
	HumanKey string `json:"human_key"`
}

func (s *Service) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listProjects(w, r)
	case http.MethodPost:
		s.ensureProject(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.mail.Projects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Service) ensureProject(w http.ResponseWriter, r *http.Request) {
	var req ensureProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.HumanKey) == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "human_key required"})
		return
	}
	if !projectAllowed(r, req.HumanKey) {
		forbidden(w)
		return
	}
	project, err := s.mail.EnsureProject(r.Context(), req.HumanKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}
