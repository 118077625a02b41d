package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
)

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateTicket is returned when the ticket number is already taken.
	ErrDuplicateTicket = errors.New("ticket number already exists")
	// ErrInvalidTransition is returned when a job status would move backwards.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// TicketRepository is the durable ticket store. It is the sole authority
// for ticket number uniqueness and for the issued -> verified transition.
type TicketRepository interface {
	// Insert stores a new unverified ticket and fills CreatedAt. It fails
	// with ErrDuplicateTicket when the number exists.
	Insert(ctx context.Context, ticket *domain.Ticket) error
	Exists(ctx context.Context, ticketNumber string) (bool, error)
	FindByNumber(ctx context.Context, ticketNumber string) (*domain.Ticket, error)
	// MarkVerified atomically verifies an unverified ticket, merging merge
	// into its details. An already verified ticket is returned unchanged
	// with transitioned=false.
	MarkVerified(ctx context.Context, ticketNumber string, merge domain.Details, at time.Time) (ticket *domain.Ticket, transitioned bool, err error)
	// ReplaceDetails overwrites details and drives the ticket to verified.
	// AttendanceTime is only set by the first transition.
	ReplaceDetails(ctx context.Context, ticketNumber string, details domain.Details, at time.Time) (ticket *domain.Ticket, transitioned bool, err error)
	// List pages tickets ordered by creation time.
	List(ctx context.Context, offset, limit int) ([]domain.Ticket, int64, error)
}

// AttendanceRepository is the append-only attendance log.
type AttendanceRepository interface {
	Append(ctx context.Context, record *domain.AttendanceRecord) error
	ListByTicket(ctx context.Context, ticketNumber string) ([]domain.AttendanceRecord, error)
}

// JobRepository stores job records for polling.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	// Transition moves a job to next, storing result. Backwards or
	// repeated terminal moves fail with ErrInvalidTransition.
	Transition(ctx context.Context, id string, next domain.JobStatus, result json.RawMessage) (*domain.Job, error)
	// ListPending returns queued and processing jobs in creation order.
	ListPending(ctx context.Context) ([]domain.Job, error)
}

func normalizePage(offset, limit int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}
