package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/eaziwage/ewa/internal/advance"
	"github.com/eaziwage/ewa/internal/api"
	"github.com/eaziwage/ewa/internal/config"
	"github.com/eaziwage/ewa/internal/db"
	"github.com/eaziwage/ewa/internal/jobs"
	"github.com/eaziwage/ewa/internal/logging"
	"github.com/eaziwage/ewa/internal/notify"
	"github.com/eaziwage/ewa/internal/policy"
	"github.com/eaziwage/ewa/internal/review"
	"github.com/eaziwage/ewa/internal/store"
	"github.com/eaziwage/ewa/internal/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policies, err := loadPolicy(cfg.Policy)
	if err != nil {
		return err
	}
	reviewer, err := review.New(policies, logger)
	if err != nil {
		return err
	}
	current, err := policies.Policy(ctx)
	if err != nil {
		return err
	}
	if err := reviewer.Check(current); err != nil {
		return fmt.Errorf("auto review rules: %w", err)
	}

	var (
		advStore advance.Store
		dir      workers.Directory
		inbox    notify.Inbox
		enqueuer notify.Enqueuer
		ready    func(context.Context) error
	)
	switch cfg.Store {
	case "memory":
		mem := store.NewMemory()
		advStore, dir = mem, mem
		memInbox := notify.NewMemoryInbox()
		inbox = memInbox
		enqueuer = notify.NewInline(notify.NewHandlers(memInbox, notify.NewMailer(cfg.Mail, logger), logger))
		logger.Warn("using in-memory store; data is lost on restart")
	default:
		pool, err := db.Connect(ctx, cfg.Database.DSN(), logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		sqlDB := db.SQL(pool)
		defer sqlDB.Close()
		if err := db.EnsureSchema(ctx, sqlDB, logger); err != nil {
			return err
		}
		pg := store.NewPostgres(sqlDB)
		advStore, dir = pg, pg
		inbox = notify.NewPGInbox(pool)

		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr})
		defer client.Close()
		enqueuer = client
		ready = pool.Ping
	}

	advances := advance.NewService(advStore, policies,
		advance.WithNotifier(notify.NewNotifier(enqueuer, cfg.AppURL)),
		advance.WithReviewer(reviewer),
		advance.WithLogger(logger),
	)
	workerSvc := workers.NewService(dir, policies, logger)

	sched, err := jobs.NewScheduler(cfg.Jobs.SweepSpec, advances, logger)
	if err != nil {
		return err
	}
	sched.Start()

	e := api.NewRouter(api.Deps{
		Advances:       advances,
		Workers:        workerSvc,
		Inbox:          inbox,
		Policies:       policies,
		Logger:         logger,
		JWTSecret:      cfg.Auth.JWTSecret,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RateLimit:      cfg.HTTP.RateLimit,
		Ready:          ready,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
		logger.Info("API server listening", "addr", addr, "store", cfg.Store)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	sched.Stop(shutdownCtx)
	return e.Shutdown(shutdownCtx)
}

func loadPolicy(cfg config.PolicyConfig) (policy.Provider, error) {
	if cfg.Path != "" {
		return policy.NewFile(cfg.Path)
	}
	return policy.NewStatic(policy.Default())
}
