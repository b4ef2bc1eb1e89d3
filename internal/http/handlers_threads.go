package httpapi

import (
	"net/http"
	"strings"
)

// handleThread serves GET /api/threads/{id}: every message in the thread,
// oldest first, across project boundaries.
func (s *Service) handleThread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	threadID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/threads/"), "/")
	if threadID == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "thread id required"})
		return
	}
	messages, err := s.mail.Thread(r.Context(), threadID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
