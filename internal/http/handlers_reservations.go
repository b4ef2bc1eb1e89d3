package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/mistakeknot/courier/internal/mail"
	"github.com/mistakeknot/courier/internal/names"
)

type reserveRequest struct {
	Project     string `json:"project"`
	Agent       string `json:"agent"`
	PathPattern string `json:"path_pattern"`
	Exclusive   *bool  `json:"exclusive,omitempty"`
	Reason      string `json:"reason,omitempty"`
	TTLMinutes  int    `json:"ttl_minutes,omitempty"`
}

func (s *Service) handleReservations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listReservations(w, r)
	case http.MethodPost:
		s.createReservation(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) createReservation(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
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
	// Claims default to exclusive; shared claims are opt-in.
	exclusive := true
	if req.Exclusive != nil {
		exclusive = *req.Exclusive
	}
	res, err := s.mail.Reserve(r.Context(), req.Project, req.Agent, mail.ReserveInput{
		PathPattern: req.PathPattern,
		Exclusive:   exclusive,
		Reason:      req.Reason,
		TTL:         time.Duration(req.TTLMinutes) * time.Minute,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAPIReservation(res, names.Slugify(req.Project), req.Agent))
}

func (s *Service) listReservations(w http.ResponseWriter, r *http.Request) {
	project := strings.TrimSpace(r.URL.Query().Get("project"))
	if project == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "project query parameter required"})
		return
	}
	if !projectAllowed(r, project) {
		forbidden(w)
		return
	}
	reservations, err := s.mail.ActiveReservations(r.Context(), project)
	if err != nil {
		writeError(w, err)
		return
	}
	slug := names.Slugify(project)
	out := make([]apiReservation, 0, len(reservations))
	for _, res := range reservations {
		out = append(out, toAPIReservation(res, slug, ""))
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": out})
}

type releaseRequest struct {
	Agent string `json:"agent"`
	Force bool   `json:"force,omitempty"`
}

type renewRequest struct {
	Agent      string `json:"agent"`
	TTLMinutes int    `json:"ttl_minutes,omitempty"`
}

// handleReservationAction routes POST /api/reservations/{id}/{release|renew}.
func (s *Service) handleReservationAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/reservations/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id, action := parts[0], parts[1]

	switch action {
	case "release":
		var req releaseRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Agent) == "" && !req.Force {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "agent required"})
			return
		}
		if err := s.mail.Release(r.Context(), id, req.Agent, req.Force); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
	case "renew":
		var req renewRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Agent) == "" {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "agent required"})
			return
		}
		res, err := s.mail.Renew(r.Context(), id, req.Agent, time.Duration(req.TTLMinutes)*time.Minute)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAPIReservation(res, "", req.Agent))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
