package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
)

const uniqueViolation = "23505"

const ticketColumns = `ticket_number, created_at, details, verified, attendance_time, artifact`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgxPool is the subset of *pgxpool.Pool the repository uses.
type pgxPool interface {
	querier
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type ticketRepository struct {
	pool pgxPool
}

// NewTicketRepository instantiates the postgres ticket store.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Insert(ctx context.Context, ticket *domain.Ticket) error {
	details, err := json.Marshal(ticket.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	const query = `
        INSERT INTO tickets (ticket_number, details, verified, attendance_time, artifact)
        VALUES ($1,$2,FALSE,NULL,$3)
        RETURNING created_at`
	err = r.pool.QueryRow(ctx, query, ticket.TicketNumber, details, ticket.Artifact).Scan(&ticket.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateTicket
		}
		return err
	}
	ticket.Verified = false
	ticket.AttendanceTime = nil
	return nil
}

func (r *ticketRepository) Exists(ctx context.Context, ticketNumber string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE ticket_number=$1)`, ticketNumber).Scan(&exists)
	return exists, err
}

func (r *ticketRepository) FindByNumber(ctx context.Context, ticketNumber string) (*domain.Ticket, error) {
	return fetchTicket(ctx, r.pool, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_number=$1`, ticketNumber)
}

func (r *ticketRepository) MarkVerified(ctx context.Context, ticketNumber string, merge domain.Details, at time.Time) (*domain.Ticket, bool, error) {
	var (
		result       *domain.Ticket
		transitioned bool
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		ticket, err := fetchTicket(ctx, tx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_number=$1 FOR UPDATE`, ticketNumber)
		if err != nil {
			return err
		}
		if ticket.Verified {
			result = ticket
			return nil
		}

		ticket.Details = ticket.Details.Merge(merge)
		if err := updateVerified(ctx, tx, ticket, at); err != nil {
			return err
		}
		result, transitioned = ticket, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, transitioned, nil
}

func (r *ticketRepository) ReplaceDetails(ctx context.Context, ticketNumber string, details domain.Details, at time.Time) (*domain.Ticket, bool, error) {
	var (
		result       *domain.Ticket
		transitioned bool
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		ticket, err := fetchTicket(ctx, tx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_number=$1 FOR UPDATE`, ticketNumber)
		if err != nil {
			return err
		}
		transitioned = !ticket.Verified
		if ticket.AttendanceTime != nil {
			at = *ticket.AttendanceTime
		}
		ticket.Details = details.Clone()
		if err := updateVerified(ctx, tx, ticket, at); err != nil {
			return err
		}
		result = ticket
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, transitioned, nil
}

func updateVerified(ctx context.Context, tx pgx.Tx, ticket *domain.Ticket, at time.Time) error {
	details, err := json.Marshal(ticket.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	const query = `
        UPDATE tickets SET verified=TRUE, attendance_time=$2, details=$3
        WHERE ticket_number=$1`
	cmd, err := tx.Exec(ctx, query, ticket.TicketNumber, at, details)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	ticket.Verified = true
	ticket.AttendanceTime = &at
	return nil
}

func (r *ticketRepository) List(ctx context.Context, offset, limit int) ([]domain.Ticket, int64, error) {
	offset, limit = normalizePage(offset, limit)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets
             ORDER BY created_at ASC, ticket_number ASC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

func fetchTicket(ctx context.Context, q querier, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(q.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ticket, err
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket  domain.Ticket
		details []byte
	)
	if err := row.Scan(
		&ticket.TicketNumber,
		&ticket.CreatedAt,
		&details,
		&ticket.Verified,
		&ticket.AttendanceTime,
		&ticket.Artifact,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(details, &ticket.Details); err != nil {
		return nil, fmt.Errorf("decode details for %s: %w", ticket.TicketNumber, err)
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
