package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/eaziwage/ewa/internal/config"
	"github.com/eaziwage/ewa/internal/middleware"
)

func main() {
	subject := flag.String("sub", "", "user id; the worker id for employees")
	role := flag.String("role", middleware.RoleEmployee, "employee, employer or admin")
	employer := flag.String("employer", "", "employer id, required for role=employer")
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to JWT_TTL")
	flag.Parse()

	if *subject == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/issue_token -sub w-1 -role employee")
	}
	switch *role {
	case middleware.RoleEmployee, middleware.RoleAdmin:
	case middleware.RoleEmployer:
		if *employer == "" {
			log.Fatalf("-employer is required for role=employer")
		}
	default:
		log.Fatalf("unknown role %q", *role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := middleware.IssueToken(cfg.Auth.JWTSecret, middleware.Claims{
		UserID:     *subject,
		Role:       *role,
		EmployerID: *employer,
	}, lifetime)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Println(token)
	log.Printf("token for %s (%s) expires %s", *subject, *role, time.Now().Add(lifetime).Format(time.RFC3339))
}
