package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
	"github.com/spec-kit/qr-ticket-service/internal/events"
	"github.com/spec-kit/qr-ticket-service/internal/repository"
	apperrors "github.com/spec-kit/qr-ticket-service/pkg/util/errorutil"
)

// VerificationStatus is the outcome of a verify or update call.
type VerificationStatus string

const (
	VerificationNotFound        VerificationStatus = "NOT_FOUND"
	VerificationValid           VerificationStatus = "VALID"
	VerificationAlreadyVerified VerificationStatus = "ALREADY_VERIFIED"
)

// VerificationResult describes the ticket after verification.
type VerificationResult struct {
	Status         VerificationStatus `json:"status"`
	TicketNumber   string             `json:"ticket_number"`
	Verified       bool               `json:"verified"`
	AttendanceTime *time.Time         `json:"attendance_time,omitempty"`
	Details        *domain.Details    `json:"details,omitempty"`
}

// VerificationService performs the issued -> verified transition.
type VerificationService struct {
	tickets    repository.TicketRepository
	attendance repository.AttendanceRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewVerificationService constructs the service.
func NewVerificationService(tickets repository.TicketRepository, attendance repository.AttendanceRepository, dispatcher events.Dispatcher, logger *zap.Logger) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationService{
		tickets:    tickets,
		attendance: attendance,
		dispatcher: dispatcher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeTicketNumber trims and upper-cases user input.
func NormalizeTicketNumber(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Verify marks a ticket as attended, merging attendance into its details.
// An unknown number is reported through the result, not as an error.
func (s *VerificationService) Verify(ctx context.Context, ticketNumber string, attendance domain.Details) (*VerificationResult, error) {
	number := NormalizeTicketNumber(ticketNumber)
	if number == "" {
		return nil, apperrors.NewMissingField("ticket_number")
	}

	current, err := s.tickets.FindByNumber(ctx, number)
	if errors.Is(err, repository.ErrNotFound) {
		return &VerificationResult{Status: VerificationNotFound, TicketNumber: number}, nil
	}
	if err != nil {
		return nil, storeError(err)
	}
	if current.Verified {
		return resultFor(VerificationAlreadyVerified, current), nil
	}

	ticket, transitioned, err := s.tickets.MarkVerified(ctx, number, attendance, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return &VerificationResult{Status: VerificationNotFound, TicketNumber: number}, nil
	}
	if err != nil {
		return nil, storeError(err)
	}
	if !transitioned {
		// lost the race to a concurrent verifier
		return resultFor(VerificationAlreadyVerified, ticket), nil
	}

	s.recordAttendance(ctx, ticket, domain.AttendanceSourceVerify)
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:         events.EventTicketVerified,
		TicketNumber: number,
		Payload:      events.TicketVerifiedPayload{AttendanceTime: *ticket.AttendanceTime, Source: domain.AttendanceSourceVerify},
	})
	return resultFor(VerificationValid, ticket), nil
}

// Update overwrites a ticket's details with data and drives it to
// verified. Unlike Verify it replaces details on every call, and an
// unknown number is an error.
func (s *VerificationService) Update(ctx context.Context, ticketNumber string, data domain.Details) (*VerificationResult, error) {
	number := NormalizeTicketNumber(ticketNumber)
	if number == "" {
		return nil, apperrors.NewMissingField("ticket_number")
	}

	ticket, transitioned, err := s.tickets.ReplaceDetails(ctx, number, data, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_number": number})
	}
	if err != nil {
		return nil, storeError(err)
	}

	status := VerificationAlreadyVerified
	if transitioned {
		status = VerificationValid
		s.recordAttendance(ctx, ticket, domain.AttendanceSourceUpdate)
		publishEvent(ctx, s.dispatcher, events.Event{
			Type:         events.EventTicketVerified,
			TicketNumber: number,
			Payload:      events.TicketVerifiedPayload{AttendanceTime: *ticket.AttendanceTime, Source: domain.AttendanceSourceUpdate},
		})
	}
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:         events.EventTicketUpdated,
		TicketNumber: number,
		Payload:      events.TicketUpdatedPayload{Keys: data.Keys(), Transitioned: transitioned},
	})
	return resultFor(status, ticket), nil
}

// Attendance lists the attendance log of one ticket.
func (s *VerificationService) Attendance(ctx context.Context, ticketNumber string) ([]domain.AttendanceRecord, error) {
	number := NormalizeTicketNumber(ticketNumber)
	if _, err := s.tickets.FindByNumber(ctx, number); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_number": number})
		}
		return nil, storeError(err)
	}
	records, err := s.attendance.ListByTicket(ctx, number)
	if err != nil {
		return nil, storeError(err)
	}
	return records, nil
}

// recordAttendance appends to the log. The transition already happened,
// so a failed append is logged rather than returned.
func (s *VerificationService) recordAttendance(ctx context.Context, ticket *domain.Ticket, source domain.AttendanceSource) {
	if s.attendance == nil {
		return
	}
	record := &domain.AttendanceRecord{
		ID:           uuid.NewString(),
		TicketNumber: ticket.TicketNumber,
		VerifiedAt:   *ticket.AttendanceTime,
		Details:      ticket.Details.Clone(),
		Source:       source,
	}
	if err := s.attendance.Append(ctx, record); err != nil {
		s.logger.Error("append attendance record",
			zap.String("ticket_number", ticket.TicketNumber),
			zap.Error(err))
	}
}

func resultFor(status VerificationStatus, ticket *domain.Ticket) *VerificationResult {
	details := ticket.Details.Clone()
	return &VerificationResult{
		Status:         status,
		TicketNumber:   ticket.TicketNumber,
		Verified:       ticket.Verified,
		AttendanceTime: ticket.AttendanceTime,
		Details:        &details,
	}
}
