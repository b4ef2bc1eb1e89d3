package core

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced to callers. Handlers map these to status codes;
// everything else is a 500. Wrap with fmt.Errorf("...: %w", Err...) to add
// detail, match with errors.Is.
var (
	ErrInvalidName          = errors.New("invalid name")
	ErrNameTaken            = errors.New("name taken")
	ErrAgentNotFound        = errors.New("agent not found")
	ErrProjectNotFound      = errors.New("project not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrInvalidOperation     = errors.New("invalid operation")
	ErrNameConflict         = errors.New("name conflict")
	ErrReferencedByMessages = errors.New("agent is referenced by messages")
	ErrReferencedByLinks    = errors.New("agent is referenced by links")
	ErrActiveReservation    = errors.New("agent holds an active file reservation")
	ErrNotOwner             = errors.New("reservation held by another agent")
)

// ConflictError reports the active reservations whose patterns overlap a
// requested one.
type ConflictError struct {
	Conflicts []Reservation
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("reservation conflict: %d overlapping active reservation(s)", len(e.Conflicts))
}
