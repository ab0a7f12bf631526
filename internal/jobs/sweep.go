// Package jobs schedules background work that runs inside the API process.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Expirer rejects pending advances that waited longer than the policy
// allows. *advance.Service implements it.
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Scheduler owns the cron runner for the pending-timeout sweep.
type Scheduler struct {
	cron    *cron.Cron
	expirer Expirer
	logger  *slog.Logger
	timeout time.Duration
}

// NewScheduler registers the sweep on spec. Overlapping runs are skipped.
func NewScheduler(spec string, expirer Expirer, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		expirer: expirer,
		logger:  logger,
		timeout: time.Minute,
	}
	if _, err := s.cron.AddFunc(spec, s.Sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// Sweep runs one pass of the pending-timeout sweep.
func (s *Scheduler) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		s.logger.Error("pending sweep failed", "expired", n, "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("pending sweep", "expired", n)
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cron jobs scheduled", "entries", len(s.cron.Entries()))
}

// Stop halts the scheduler and waits for a running sweep or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
