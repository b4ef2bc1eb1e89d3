package core

import "time"

type EventType string

const (
	EventAgentRegistered     EventType = "agent.registered"
	EventAgentRenamed        EventType = "agent.renamed"
	EventAgentDeleted        EventType = "agent.deleted"
	EventMessageCreated      EventType = "message.created"
	EventReservationCreated  EventType = "reservation.created"
	EventReservationReleased EventType = "reservation.released"
	EventReservationExpired  EventType = "reservation.expired"
)

// Event is the envelope broadcast to WebSocket subscribers. Agent is the
// canonical name of the agent the event concerns, empty for project-wide
// events.
type Event struct {
	Type    EventType `json:"type"`
	Project string    `json:"project"`
	Agent   string    `json:"agent,omitempty"`
	At      time.Time `json:"ts"`
	Payload any       `json:"payload,omitempty"`
}
