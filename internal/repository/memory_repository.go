package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
)

// MemoryTicketRepository keeps tickets in process memory. It backs the
// "memory" store driver and the service tests.
type MemoryTicketRepository struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	order   []string
	now     func() time.Time
}

// NewMemoryTicketRepository builds an empty in-memory ticket store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{tickets: make(map[string]*domain.Ticket), now: time.Now}
}

func (r *MemoryTicketRepository) Insert(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tickets[ticket.TicketNumber]; exists {
		return ErrDuplicateTicket
	}
	ticket.CreatedAt = r.now()
	ticket.Verified = false
	ticket.AttendanceTime = nil
	r.tickets[ticket.TicketNumber] = cloneTicket(ticket)
	r.order = append(r.order, ticket.TicketNumber)
	return nil
}

func (r *MemoryTicketRepository) Exists(_ context.Context, ticketNumber string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tickets[ticketNumber]
	return ok, nil
}

func (r *MemoryTicketRepository) FindByNumber(_ context.Context, ticketNumber string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketNumber]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTicket(ticket), nil
}

func (r *MemoryTicketRepository) MarkVerified(_ context.Context, ticketNumber string, merge domain.Details, at time.Time) (*domain.Ticket, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketNumber]
	if !ok {
		return nil, false, ErrNotFound
	}
	if ticket.Verified {
		return cloneTicket(ticket), false, nil
	}
	ticket.Details = ticket.Details.Merge(merge)
	ticket.Verified = true
	ticket.AttendanceTime = &at
	return cloneTicket(ticket), true, nil
}

func (r *MemoryTicketRepository) ReplaceDetails(_ context.Context, ticketNumber string, details domain.Details, at time.Time) (*domain.Ticket, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketNumber]
	if !ok {
		return nil, false, ErrNotFound
	}
	transitioned := !ticket.Verified
	ticket.Details = details.Clone()
	ticket.Verified = true
	if ticket.AttendanceTime == nil {
		ticket.AttendanceTime = &at
	}
	return cloneTicket(ticket), transitioned, nil
}

func (r *MemoryTicketRepository) List(_ context.Context, offset, limit int) ([]domain.Ticket, int64, error) {
	offset, limit = normalizePage(offset, limit)
	r.mu.Lock()
	defer r.mu.Unlock()

	result := []domain.Ticket{}
	for i := offset; i < len(r.order) && len(result) < limit; i++ {
		result = append(result, *cloneTicket(r.tickets[r.order[i]]))
	}
	return result, int64(len(r.order)), nil
}

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	out := *t
	out.Details = t.Details.Clone()
	if t.AttendanceTime != nil {
		at := *t.AttendanceTime
		out.AttendanceTime = &at
	}
	return &out
}

// MemoryAttendanceRepository is an in-memory attendance log.
type MemoryAttendanceRepository struct {
	mu      sync.Mutex
	records []domain.AttendanceRecord
}

// NewMemoryAttendanceRepository builds an empty log.
func NewMemoryAttendanceRepository() *MemoryAttendanceRepository {
	return &MemoryAttendanceRepository{}
}

func (r *MemoryAttendanceRepository) Append(_ context.Context, record *domain.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := *record
	entry.Details = record.Details.Clone()
	r.records = append(r.records, entry)
	return nil
}

func (r *MemoryAttendanceRepository) ListByTicket(_ context.Context, ticketNumber string) ([]domain.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []domain.AttendanceRecord{}
	for _, record := range r.records {
		if record.TicketNumber == ticketNumber {
			result = append(result, record)
		}
	}
	return result, nil
}

// MemoryJobRepository keeps job records in process memory.
type MemoryJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewMemoryJobRepository builds an empty job store.
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]*domain.Job), now: time.Now}
}

func (r *MemoryJobRepository) Create(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *job
	r.jobs[job.ID] = &stored
	return nil
}

func (r *MemoryJobRepository) Get(_ context.Context, id string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *job
	return &out, nil
}

func (r *MemoryJobRepository) Transition(_ context.Context, id string, next domain.JobStatus, result json.RawMessage) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !job.Status.CanTransitionTo(next) {
		return nil, ErrInvalidTransition
	}
	job.Status = next
	job.UpdatedAt = r.now().UTC()
	if result != nil {
		job.Result = result
	}
	out := *job
	return &out, nil
}

func (r *MemoryJobRepository) ListPending(_ context.Context) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []domain.Job{}
	for _, job := range r.jobs {
		if !job.Status.IsTerminal() {
			result = append(result, *job)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
