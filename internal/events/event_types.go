package events

import (
	"time"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketIssued   EventType = "ticket.issued"
	EventTicketVerified EventType = "ticket.verified"
	EventTicketUpdated  EventType = "ticket.updated"
)

// AllEventTypes lists every event the services publish.
var AllEventTypes = []EventType{EventTicketIssued, EventTicketVerified, EventTicketUpdated}

// Event represents a domain event emitted by services.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	TicketNumber string    `json:"ticket_number"`
	Timestamp    time.Time `json:"timestamp"`
	Payload      any       `json:"payload"`
}

// TicketIssuedPayload payload.
type TicketIssuedPayload struct {
	Artifact  string `json:"artifact"`
	EmailSent bool   `json:"email_sent"`
}

// TicketVerifiedPayload payload.
type TicketVerifiedPayload struct {
	AttendanceTime time.Time               `json:"attendance_time"`
	Source         domain.AttendanceSource `json:"source"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	Keys         []string `json:"keys"`
	Transitioned bool     `json:"transitioned"`
}
