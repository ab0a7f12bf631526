package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/eaziwage/ewa/internal/config"
	"github.com/eaziwage/ewa/internal/db"
	"github.com/eaziwage/ewa/internal/logging"
)

func main() {
	email := flag.String("email", "", "Email of the worker to approve")
	flag.Parse()

	if *email == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/approve_worker -email worker@example.com")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database.DSN(), logging.New(cfg.Logging))
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer pool.Close()

	// Mark both employment and KYC approved so the worker can request advances.
	ct, err := pool.Exec(ctx, `
        UPDATE workers SET employment_status = 'approved', kyc_status = 'approved', updated_at = NOW()
        WHERE email = $1`, *email)
	if err != nil {
		log.Fatalf("failed to approve worker: %v", err)
	}
	if ct.RowsAffected() == 0 {
		log.Fatalf("no worker found with email: %s", *email)
	}

	fmt.Printf("Worker %s approved for advances.\n", *email)
}
