package service

import (
	"context"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
	"github.com/spec-kit/qr-ticket-service/internal/repository"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// TicketPage is one page of the ticket list.
type TicketPage struct {
	Tickets []domain.Ticket
	Page    int
	PerPage int
	Total   int64
}

// TicketQueryService serves read-only ticket listings.
type TicketQueryService struct {
	tickets repository.TicketRepository
}

// NewTicketQueryService constructs the service.
func NewTicketQueryService(tickets repository.TicketRepository) *TicketQueryService {
	return &TicketQueryService{tickets: tickets}
}

// List returns the 1-based page of tickets ordered by creation time.
func (s *TicketQueryService) List(ctx context.Context, page, perPage int) (*TicketPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	tickets, total, err := s.tickets.List(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return nil, storeError(err)
	}
	return &TicketPage{Tickets: tickets, Page: page, PerPage: perPage, Total: total}, nil
}
