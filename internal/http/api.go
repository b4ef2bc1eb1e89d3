package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/mistakeknot/courier/internal/auth"
	"github.com/mistakeknot/courier/internal/core"
	"github.com/mistakeknot/courier/internal/names"
)

type apiError struct {
	Error string `json:"error"`
}

// apiAgent is the wire shape of an agent. Project carries the slug;
// timestamp fields match the archived profile document.
type apiAgent struct {
	Name            string `json:"name"`
	Project         string `json:"project"`
	Program         string `json:"program,omitempty"`
	Model           string `json:"model,omitempty"`
	TaskDescription string `json:"task_description,omitempty"`
	RegisteredAt    string `json:"registered_ts"`
	UpdatedAt       string `json:"updated_ts"`
}

func toAPIAgent(projectSlug string, a core.Agent) apiAgent {
	return apiAgent{
		Name:            a.Name,
		Project:         projectSlug,
		Program:         a.Program,
		Model:           a.Model,
		TaskDescription: a.TaskDescription,
		RegisteredAt:    a.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:       a.UpdatedAt.Format(time.RFC3339Nano),
	}
}

type apiReservation struct {
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

func toAPIReservation(r core.Reservation, projectSlug, agentName string) apiReservation {
	if agentName == "" {
		agentName = r.AgentName
	}
	api := apiReservation{
		ID:          r.ID,
		Project:     projectSlug,
		Agent:       agentName,
		PathPattern: r.PathPattern,
		Exclusive:   r.Exclusive,
		Reason:      r.Reason,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339Nano),
		ExpiresAt:   r.ExpiresAt.Format(time.RFC3339Nano),
		Active:      r.IsActive(),
	}
	if r.ReleasedAt != nil {
		s := r.ReleasedAt.Format(time.RFC3339Nano)
		api.ReleasedAt = &s
	}
	return api
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Reservation conflicts
// get a structured body so callers can show who holds what.
func writeError(w http.ResponseWriter, err error) {
	var conflict *core.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "reservation_conflict",
			"conflicts": conflict.Conflicts,
		})
	case errors.Is(err, core.ErrInvalidName), errors.Is(err, core.ErrInvalidOperation):
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
	case errors.Is(err, core.ErrAgentNotFound),
		errors.Is(err, core.ErrProjectNotFound),
		errors.Is(err, core.ErrMessageNotFound),
		errors.Is(err, core.ErrReservationNotFound):
		writeJSON(w, http.StatusNotFound, apiError{Error: err.Error()})
	case errors.Is(err, core.ErrNotOwner):
		writeJSON(w, http.StatusForbidden, apiError{Error: err.Error()})
	case errors.Is(err, core.ErrNameTaken),
		errors.Is(err, core.ErrNameConflict),
		errors.Is(err, core.ErrReferencedByMessages),
		errors.Is(err, core.ErrReferencedByLinks),
		errors.Is(err, core.ErrActiveReservation):
		writeJSON(w, http.StatusConflict, apiError{Error: err.Error()})
	default:
		log.Printf("http: internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "malformed json body"})
		return false
	}
	return true
}

// projectAllowed reports whether the request may act on the named
// project. Localhost callers roam freely; key-scoped callers stay inside
// the project their key names, compared by slug.
func projectAllowed(r *http.Request, projectKey string) bool {
	info, ok := auth.FromContext(r.Context())
	if !ok || info.Mode != auth.ModeAPIKey {
		return true
	}
	return names.Slugify(info.Project) == names.Slugify(projectKey)
}

func forbidden(w http.ResponseWriter) {
	writeJSON(w, http.StatusForbidden, apiError{Error: "project not allowed"})
}
