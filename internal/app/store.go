package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/qr-ticket-service/internal/config"
	"github.com/spec-kit/qr-ticket-service/internal/persistence"
	"github.com/spec-kit/qr-ticket-service/internal/repository"
)

// TicketStore is the selected ticket backend and its attendance log.
type TicketStore struct {
	Tickets    repository.TicketRepository
	Attendance repository.AttendanceRepository
	Pingers    map[string]persistence.Pinger

	closers []func()
}

// OpenTicketStore connects the backend named by STORE_DRIVER.
func OpenTicketStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*TicketStore, error) {
	store := &TicketStore{Pingers: map[string]persistence.Pinger{}}

	switch cfg.Store.TicketDriver {
	case config.DriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		store.closers = append(store.closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				store.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		store.Tickets = repository.NewTicketRepository(pg.PoolHandle())
		store.Attendance = repository.NewAttendanceRepository(pg.PoolHandle())
		store.Pingers["postgres"] = pg

	case config.DriverMongo:
		m, err := persistence.NewMongo(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		store.closers = append(store.closers, func() { m.Close(context.Background()) })
		if err := repository.EnsureTicketIndexes(ctx, m.Database); err != nil {
			store.Close()
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		store.Tickets = repository.NewMongoTicketRepository(m.Database)
		store.Attendance = repository.NewMongoAttendanceRepository(m.Database)
		store.Pingers["mongo"] = m

	case config.DriverMemory:
		logger.Warn("using in-memory ticket store; tickets are lost on restart")
		store.Tickets = repository.NewMemoryTicketRepository()
		store.Attendance = repository.NewMemoryAttendanceRepository()

	default:
		return nil, fmt.Errorf("unsupported ticket store %q", cfg.Store.TicketDriver)
	}
	return store, nil
}

// Close releases the backend connection.
func (s *TicketStore) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
