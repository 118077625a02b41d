package domain

import "time"

// AttendanceSource names the operation that verified a ticket.
type AttendanceSource string

const (
	AttendanceSourceVerify AttendanceSource = "verify"
	AttendanceSourceUpdate AttendanceSource = "update"
)

// AttendanceRecord is an append-only log entry written when a ticket
// transitions to verified.
type AttendanceRecord struct {
	ID           string
	TicketNumber string
	VerifiedAt   time.Time
	Details      Details
	Source       AttendanceSource
}
