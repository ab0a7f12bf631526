package advance

import (
	"context"
	"time"
)

// Store persists workers, requests and their side records. Every change to
// a worker's requests happens inside WithWorker so concurrent submissions
// for the same worker serialize and cannot overdraw the limit.
type Store interface {
	// WithWorker locks the worker row, runs fn and commits when fn returns
	// nil. Returns ErrWorkerNotFound for an unknown worker.
	WithWorker(ctx context.Context, workerID string, fn func(ctx context.Context, tx WorkerTx) error) error

	Worker(ctx context.Context, id string) (Worker, error)
	// Request returns one request with its transition history.
	Request(ctx context.Context, id string) (Request, error)
	// Requests lists matching requests, newest first, without history.
	Requests(ctx context.Context, f Filter) ([]Request, error)
	Entries(ctx context.Context, workerID string) ([]Entry, error)
}

// WorkerTx is the view of one locked worker.
type WorkerTx interface {
	Worker() Worker
	// Requests returns all requests of the worker, newest first, including
	// writes made earlier in this transaction.
	Requests(ctx context.Context) ([]Request, error)
	// Request returns one of the worker's requests with its full history as
	// of the lock. Returns ErrNotFound for a request of another worker.
	Request(ctx context.Context, id string) (Request, error)
	// Insert stores a new request and the transitions already in its history.
	Insert(ctx context.Context, r *Request) error
	// Save persists r's new status and appends t to the stored history.
	Save(ctx context.Context, r *Request, t Transition) error
	ScheduleDeduction(ctx context.Context, d Deduction) error
	Record(ctx context.Context, e Entry) error
}

// Filter narrows Store.Requests. Zero fields match everything.
type Filter struct {
	WorkerID      string
	EmployerID    string
	Status        Status
	CreatedBefore time.Time
	Limit         int
}

// Match reports whether r passes f, ignoring Limit.
func (f Filter) Match(r Request) bool {
	if f.WorkerID != "" && r.WorkerID != f.WorkerID {
		return false
	}
	if f.EmployerID != "" && r.EmployerID != f.EmployerID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.CreatedBefore.IsZero() && r.CreatedAt.After(f.CreatedBefore) {
		return false
	}
	return true
}
