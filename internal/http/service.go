// Package httpapi exposes the mail service over HTTP. Handlers stay
// thin: decode, delegate to mail, map domain errors to status codes.
package httpapi

import (
	"net/http"

	"github.com/mistakeknot/courier/internal/mail"
)

type Service struct {
	mail *mail.Service
}

func NewService(m *mail.Service) *Service {
	return &Service{mail: m}
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.mail.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
