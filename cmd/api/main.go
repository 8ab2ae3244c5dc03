package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emilythestrangee/devquery/backend/internal/config"
	"github.com/emilythestrangee/devquery/backend/internal/database"
	"github.com/emilythestrangee/devquery/backend/internal/handlers"
	"github.com/emilythestrangee/devquery/backend/internal/ledger"
	"github.com/emilythestrangee/devquery/backend/internal/ledger/gormstore"
	"github.com/emilythestrangee/devquery/backend/internal/logging"
	"github.com/emilythestrangee/devquery/backend/internal/notify"
	"github.com/emilythestrangee/devquery/backend/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", "event", "api_exit", "module", "cmd/api", "error", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DSN(), database.Options{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
		Debug:        cfg.LogLevel == "debug",
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db.SQL()); err != nil {
		return err
	}

	var sender notify.Sender = notify.NewLogSender(logger)
	if cfg.TwilioEnabled() {
		sender = notify.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber,
			notify.NewGormDirectory(db.GetDB()), logger)
	}
	dispatcher := notify.NewDispatcher(sender, notify.DispatcherOptions{
		QueueSize: cfg.NotifyQueueSize,
		Workers:   cfg.NotifyWorkers,
		Logger:    logger,
	})

	svc := ledger.NewService(gormstore.New(db.GetDB(), logger), ledger.Options{
		MaxAttempts:                cfg.LedgerMaxAttempts,
		ReverseAcceptBonusOnDelete: cfg.ReverseAcceptBonusOnDelete,
		Notifier:                   dispatcher,
		Logger:                     logger,
	})

	h := handlers.NewHandler(handlers.Deps{
		DB:             db.GetDB(),
		Ledger:         svc,
		JWTSecret:      []byte(cfg.JWTSecret),
		JWTTTL:         cfg.JWTTTL,
		GoogleClientID: cfg.GoogleClientID,
		Logger:         logger,
	})
	srv := server.New(cfg, db, h, logger)
	defer srv.Close()
	httpServer := srv.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", "event", "api_started", "module", "cmd/api", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down", "event", "api_stopping", "module", "cmd/api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "event", "api_shutdown_failed", "module", "cmd/api", "error", err.Error())
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("notification queue not drained", "event", "notify_drain_incomplete", "module", "cmd/api", "error", err.Error())
	}
	return nil
}
