package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
)

type attendanceRepository struct {
	pool *pgxpool.Pool
}

// NewAttendanceRepository builds the postgres attendance log.
func NewAttendanceRepository(pool *pgxpool.Pool) AttendanceRepository {
	return &attendanceRepository{pool: pool}
}

func (r *attendanceRepository) Append(ctx context.Context, record *domain.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	details, err := json.Marshal(record.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	const query = `
        INSERT INTO attendance_log (id, ticket_number, verified_at, details, source)
        VALUES ($1,$2,$3,$4,$5)`
	_, err = r.pool.Exec(ctx, query, record.ID, record.TicketNumber, record.VerifiedAt, details, record.Source)
	return err
}

func (r *attendanceRepository) ListByTicket(ctx context.Context, ticketNumber string) ([]domain.AttendanceRecord, error) {
	const query = `
        SELECT id, ticket_number, verified_at, details, source
        FROM attendance_log WHERE ticket_number=$1 ORDER BY verified_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.AttendanceRecord{}
	for rows.Next() {
		var (
			record  domain.AttendanceRecord
			details []byte
		)
		if err := rows.Scan(
			&record.ID,
			&record.TicketNumber,
			&record.VerifiedAt,
			&details,
			&record.Source,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(details, &record.Details); err != nil {
			return nil, fmt.Errorf("decode attendance details: %w", err)
		}
		result = append(result, record)
	}
	return result, rows.Err()
}
