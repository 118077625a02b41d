package domain

import "time"

// Ticket number alphabet and length.
const (
	TicketNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	TicketNumberLength   = 8

	// TicketNumberKey is the reserved details key holding the ticket number.
	TicketNumberKey = "ticket_number"
)

// TicketState is the lifecycle position derived from the verified flag.
type TicketState string

const (
	TicketStateIssued   TicketState = "ISSUED"
	TicketStateVerified TicketState = "VERIFIED"
)

// Ticket is an issued event ticket. AttendanceTime is set exactly when
// Verified is true, and Verified never goes back to false.
type Ticket struct {
	TicketNumber   string
	CreatedAt      time.Time
	Details        Details
	Verified       bool
	AttendanceTime *time.Time
	Artifact       string
}

// State reports the lifecycle position.
func (t *Ticket) State() TicketState {
	if t.Verified {
		return TicketStateVerified
	}
	return TicketStateIssued
}

// IsValidTicketNumber reports whether s is 8 uppercase alphanumerics.
func IsValidTicketNumber(s string) bool {
	if len(s) != TicketNumberLength {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
