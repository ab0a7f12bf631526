package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hibiken/asynq"

	"github.com/eaziwage/ewa/internal/config"
	"github.com/eaziwage/ewa/internal/db"
	"github.com/eaziwage/ewa/internal/logging"
	"github.com/eaziwage/ewa/internal/notify"
)

const concurrency = 10

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)

	if cfg.Store == "memory" {
		logger.Error("the notification worker needs postgres; in-memory mode delivers inline from the API process")
		os.Exit(1)
	}

	pool, err := db.Connect(context.Background(), cfg.Database.DSN(), logger)
	if err != nil {
		logger.Error("database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	handlers := notify.NewHandlers(notify.NewPGInbox(pool), notify.NewMailer(cfg.Mail, logger), logger)
	mux := asynq.NewServeMux()
	handlers.Register(mux)

	srv := notify.NewServer(cfg.Redis.Addr, concurrency, logger)
	logger.Info("notification worker starting", "redis", cfg.Redis.Addr)
	// Run blocks until SIGTERM or SIGINT and then drains in-flight tasks.
	if err := srv.Run(mux); err != nil {
		logger.Error("worker stopped", "error", err)
		pool.Close()
		os.Exit(1)
	}
}
