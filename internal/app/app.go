// Package app builds the long-lived handles shared by the server and the CLI.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/qr-ticket-service/internal/config"
	"github.com/spec-kit/qr-ticket-service/internal/events"
	"github.com/spec-kit/qr-ticket-service/internal/imaging"
	"github.com/spec-kit/qr-ticket-service/internal/mailer"
	"github.com/spec-kit/qr-ticket-service/internal/observability"
	"github.com/spec-kit/qr-ticket-service/internal/persistence"
	"github.com/spec-kit/qr-ticket-service/internal/repository"
	"github.com/spec-kit/qr-ticket-service/internal/service"
	"github.com/spec-kit/qr-ticket-service/internal/worker"
)

// ServiceContext holds every collaborator, constructed once at start-up.
type ServiceContext struct {
	Config  *config.Config
	Loggers *observability.LoggerFactory
	Metrics *observability.Metrics

	Store *TicketStore
	Jobs  repository.JobRepository

	Imaging    *imaging.Imaging
	Dispatcher events.Dispatcher
	Queue      *worker.Queue

	Auth          *service.AuthService
	Issuance      *service.IssuanceService
	Verification  *service.VerificationService
	JobService    *service.JobService
	Queries       *service.TicketQueryService
	Notifications *service.NotificationService
	Worker        *worker.Worker

	dependencies map[string]persistence.Pinger
	closers      []func()
}

// New connects the configured backends and wires the services.
func New(ctx context.Context, cfg *config.Config, base *zap.Logger) (*ServiceContext, error) {
	loggers := observability.NewLoggerFactory(base)
	sc := &ServiceContext{
		Config:       cfg,
		Loggers:      loggers,
		Metrics:      observability.NewMetrics(),
		dependencies: map[string]persistence.Pinger{},
	}

	store, err := OpenTicketStore(ctx, cfg, loggers.Create("store"))
	if err != nil {
		return nil, err
	}
	sc.Store = store
	sc.closers = append(sc.closers, store.Close)
	for name, pinger := range store.Pingers {
		sc.dependencies[name] = pinger
	}

	sc.Jobs, err = sc.openJobStore(cfg)
	if err != nil {
		sc.Close()
		return nil, err
	}

	catalog, err := config.LoadTemplateCatalog(cfg.Templates)
	if err != nil {
		sc.Close()
		return nil, err
	}
	sc.Imaging, err = imaging.New(cfg.Artifacts.Dir, cfg.Templates.FetchTimeout())
	if err != nil {
		sc.Close()
		return nil, err
	}

	var publisher events.Publisher
	conn, err := persistence.NewNats(cfg.Nats, cfg.App.Name, loggers.Create("nats"))
	if err != nil {
		sc.Close()
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if conn != nil {
		publisher = events.NewNATSPublisher(conn, cfg.Nats.SubjectPrefix)
		sc.closers = append(sc.closers, func() { _ = conn.Drain() })
	}

	sc.Dispatcher = events.NewInMemoryDispatcher(loggers.Create("events"))
	sc.Notifications = service.NewNotificationService(sc.Dispatcher, publisher, loggers.Create("notifications"))
	sc.Notifications.RegisterHandlers()

	sc.Queue = worker.NewQueue()
	sc.Auth = service.NewAuthService(cfg.Auth)
	sc.JobService = service.NewJobService(sc.Jobs, sc.Queue, loggers.Create("jobs"))
	sc.Queries = service.NewTicketQueryService(store.Tickets)
	sc.Verification = service.NewVerificationService(store.Tickets, store.Attendance, sc.Dispatcher, loggers.Create("verification"))
	sc.Issuance = service.NewIssuanceService(service.IssuanceDependencies{
		TicketRepo: store.Tickets,
		Imaging:    sc.Imaging,
		QR:         imaging.NewQREncoder(),
		Mailer:     mailer.New(cfg.Mail),
		Catalog:    catalog,
		Dispatcher: sc.Dispatcher,
		Metrics:    sc.Metrics,
		Logger:     loggers.Create("issuance"),
		MailDefaults: mailer.Credentials{
			User:       cfg.Mail.User,
			Password:   cfg.Mail.Password,
			SenderName: cfg.Mail.SenderName,
		},
		FetchTimeout:  cfg.Templates.FetchTimeout(),
		MailTimeout:   cfg.Mail.Timeout(),
		PublicBaseURL: cfg.App.PublicBaseURL,
		MaxAttempts:   cfg.Tickets.NumberMaxAttempts,
	})

	throttleMin, throttleMax := cfg.Worker.ThrottleRange()
	sc.Worker = worker.New(sc.Queue, sc.JobService,
		worker.NewProcessors(sc.Issuance, sc.Verification),
		worker.Config{ThrottleMin: throttleMin, ThrottleMax: throttleMax, JobTimeout: cfg.Worker.JobTimeout()},
		loggers.Create("worker"), sc.Metrics)

	return sc, nil
}

func (sc *ServiceContext) openJobStore(cfg *config.Config) (repository.JobRepository, error) {
	if cfg.Store.JobDriver == config.DriverMemory {
		return repository.NewMemoryJobRepository(), nil
	}
	rdb, err := persistence.NewRedis(cfg.Redis, sc.Loggers.Create("redis"))
	if err != nil {
		return nil, err
	}
	sc.closers = append(sc.closers, rdb.Close)
	sc.dependencies["redis"] = rdb
	return repository.NewRedisJobRepository(rdb.Client, cfg.Store.JobTTL()), nil
}

// Dependencies returns the backends checked by the readiness probe.
func (sc *ServiceContext) Dependencies() map[string]persistence.Pinger {
	return sc.dependencies
}

// Close releases connections in reverse order of creation.
func (sc *ServiceContext) Close() {
	for i := len(sc.closers) - 1; i >= 0; i-- {
		sc.closers[i]()
	}
	sc.closers = nil
}
