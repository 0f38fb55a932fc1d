package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/lgdx/activity-service/internal/config"
	"github.com/lgdx/activity-service/internal/github"
	"github.com/lgdx/activity-service/internal/repository/postgres"
	"github.com/lgdx/activity-service/internal/service"
	myhttp "github.com/lgdx/activity-service/internal/transport/http"
	"github.com/lgdx/activity-service/pkg/logger/slogpretty"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	log := slogpretty.SetupLogger(cfg.Env)

	log.Info("starting activity-service", slog.String("env", cfg.Env))

	errChan := make(chan error, 1)

	db, err := postgres.NewDB(cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("failed to init db: %v", err)
	}
	defer func() {
		err = db.DB().Close()
		if err != nil {
			errChan <- fmt.Errorf("db close failed: %v", err)
		}
	}()

	activities := postgres.NewActivityRepository(db.DB(), log)
	syncStates := postgres.NewSyncStateRepository(db.DB(), log)
	integrations := postgres.NewIntegrationRepository(db.DB(), log)
	webhookLogs := postgres.NewWebhookLogRepository(db.DB(), log)

	newClient := func(token string) service.GitHubClient {
		return github.NewClient(token, cfg.GitHub.RequestsPerSec, cfg.GitHub.PageSize, cfg.GitHub.CallTimeout, log)
	}

	srv := myhttp.NewServer(
		log,
		cfg.GitHub.WebhookSecret,
		service.NewIngestService(db.DB(), log, activities, integrations, webhookLogs),
		service.NewSyncService(db.DB(), log, activities, syncStates, integrations, cfg.GitHub, newClient),
		service.NewActivityService(log, activities),
		service.NewIntegrationService(db.DB(), log, integrations, activities, syncStates, cfg.GitHub, github.ExchangeCode, newClient),
	)

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go startServer(log, httpServer, errChan)

	select {
	case err := <-errChan:
		return fmt.Errorf("http server error: %v", err)

	case <-ctx.Done():
		log.Info("stopping server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shuting down http server: %v", err)
	}

	return nil
}

func startServer(log *slog.Logger, httpServer *http.Server, errChan chan error) {
	defer close(errChan)

	log.Info("service started", slog.String("addr", httpServer.Addr))

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errChan <- fmt.Errorf("error listening and serving: %v", err)
	}
}
