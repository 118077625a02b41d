package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/qr-ticket-service/internal/api/http"
	"github.com/spec-kit/qr-ticket-service/internal/api/http/handlers"
	"github.com/spec-kit/qr-ticket-service/internal/app"
	"github.com/spec-kit/qr-ticket-service/internal/auth"
	"github.com/spec-kit/qr-ticket-service/internal/config"
	"github.com/spec-kit/qr-ticket-service/internal/observability"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer services.Close()

	if err := services.Worker.Recover(ctx); err != nil {
		logger.Fatal("failed to recover jobs", zap.Error(err))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		services.Worker.Run(ctx)
	}()

	server := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(server, services.Loggers.Create("http"), services.Metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:                  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, services.Dependencies(), services.Queue, services.Metrics),
		Tickets:                 handlers.NewTicketsHandler(services.JobService, services.Verification, services.Queries, services.Imaging),
		Jobs:                    handlers.NewJobsHandler(services.JobService),
		Staff:                   handlers.NewStaffHandler(services.Auth),
		AuthMiddleware:          auth.NewAuthMiddleware(services.Auth.TokenManager()),
		IssueRateLimitPerMinute: cfg.App.IssueRateLimitPerMinute,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := server.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	wg.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
