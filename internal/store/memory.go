package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/eaziwage/ewa/internal/advance"
	"github.com/eaziwage/ewa/internal/money"
	"github.com/eaziwage/ewa/internal/workers"
)

// Memory keeps everything in process. It backs tests and the demo mode of
// cmd/server. Writes for one worker are serialized by a per-worker mutex
// and become visible only when the transaction function succeeds.
type Memory struct {
	mu         sync.RWMutex
	locks      map[string]*sync.Mutex
	workers    map[string]advance.Worker
	requests   map[string]advance.Request
	deductions []advance.Deduction
	entries    []advance.Entry
}

var (
	_ advance.Store     = (*Memory)(nil)
	_ workers.Directory = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		locks:    map[string]*sync.Mutex{},
		workers:  map[string]advance.Worker{},
		requests: map[string]advance.Request{},
	}
}

func (m *Memory) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// withLocked runs fn while holding the worker lock; fn sees the current row.
func (m *Memory) withLocked(id string, fn func(w advance.Worker) error) error {
	if _, err := m.Worker(context.Background(), id); err != nil {
		return err
	}
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()
	w, err := m.Worker(context.Background(), id)
	if err != nil {
		return err
	}
	return fn(w)
}

func (m *Memory) WithWorker(ctx context.Context, workerID string, fn func(ctx context.Context, tx advance.WorkerTx) error) error {
	return m.withLocked(workerID, func(w advance.Worker) error {
		tx := &memoryTx{m: m, worker: w, changed: map[string]advance.Request{}}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		for id, r := range tx.changed {
			m.requests[id] = r
		}
		m.deductions = append(m.deductions, tx.deductions...)
		m.entries = append(m.entries, tx.entries...)
		return nil
	})
}

func (m *Memory) Worker(_ context.Context, id string) (advance.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[id]
	if !ok {
		return advance.Worker{}, advance.ErrWorkerNotFound
	}
	return w, nil
}

func (m *Memory) Request(_ context.Context, id string) (advance.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return advance.Request{}, advance.ErrNotFound
	}
	r.History = slices.Clone(r.History)
	return r, nil
}

func (m *Memory) Requests(_ context.Context, f advance.Filter) ([]advance.Request, error) {
	m.mu.RLock()
	var out []advance.Request
	for _, r := range m.requests {
		if f.Match(r) {
			r.History = nil
			out = append(out, r)
		}
	}
	m.mu.RUnlock()
	sortNewest(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) Entries(_ context.Context, workerID string) ([]advance.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []advance.Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].WorkerID == workerID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func sortNewest(rs []advance.Request) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].ID > rs[j].ID
		}
		return rs[i].CreatedAt.After(rs[j].CreatedAt)
	})
}

type memoryTx struct {
	m          *Memory
	worker     advance.Worker
	changed    map[string]advance.Request
	deductions []advance.Deduction
	entries    []advance.Entry
}

func (tx *memoryTx) Worker() advance.Worker { return tx.worker }

func (tx *memoryTx) Requests(ctx context.Context) ([]advance.Request, error) {
	out, err := tx.m.Requests(ctx, advance.Filter{WorkerID: tx.worker.ID})
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for i, r := range out {
		if c, ok := tx.changed[r.ID]; ok {
			out[i] = c
			seen[r.ID] = true
		}
	}
	for id, c := range tx.changed {
		if !seen[id] {
			out = append(out, c)
		}
	}
	sortNewest(out)
	return out, nil
}

func (tx *memoryTx) Request(ctx context.Context, id string) (advance.Request, error) {
	if c, ok := tx.changed[id]; ok {
		c.History = slices.Clone(c.History)
		return c, nil
	}
	r, err := tx.m.Request(ctx, id)
	if err != nil {
		return advance.Request{}, err
	}
	if r.WorkerID != tx.worker.ID {
		return advance.Request{}, advance.ErrNotFound
	}
	return r, nil
}

func (tx *memoryTx) Insert(_ context.Context, r *advance.Request) error {
	tx.m.mu.RLock()
	_, exists := tx.m.requests[r.ID]
	tx.m.mu.RUnlock()
	if _, pending := tx.changed[r.ID]; exists || pending {
		return fmt.Errorf("request %s already exists", r.ID)
	}
	c := *r
	c.History = slices.Clone(r.History)
	tx.changed[r.ID] = c
	return nil
}

func (tx *memoryTx) Save(ctx context.Context, r *advance.Request, t advance.Transition) error {
	stored, err := tx.Request(ctx, r.ID)
	if err != nil {
		return err
	}
	c := *r
	c.History = append(stored.History, t)
	tx.changed[r.ID] = c
	return nil
}

func (tx *memoryTx) ScheduleDeduction(_ context.Context, d advance.Deduction) error {
	tx.deductions = append(tx.deductions, d)
	return nil
}

func (tx *memoryTx) Record(_ context.Context, e advance.Entry) error {
	tx.entries = append(tx.entries, e)
	return nil
}

// Directory side.

func (m *Memory) Workers(_ context.Context, employerID string) ([]advance.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []advance.Worker
	for _, w := range m.workers {
		if employerID == "" || w.EmployerID == employerID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateWorker(_ context.Context, w advance.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workers[w.ID]; ok {
		return workers.ErrWorkerExists
	}
	m.workers[w.ID] = w
	return nil
}

func (m *Memory) update(id string, fn func(w *advance.Worker) error) error {
	return m.withLocked(id, func(w advance.Worker) error {
		if err := fn(&w); err != nil {
			return err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.workers[id] = w
		return nil
	})
}

func (m *Memory) SetEmploymentStatus(_ context.Context, id string, s advance.EmploymentStatus) error {
	return m.update(id, func(w *advance.Worker) error {
		w.EmploymentStatus = s
		return nil
	})
}

func (m *Memory) SetKycStatus(_ context.Context, id string, s advance.KycStatus) error {
	return m.update(id, func(w *advance.Worker) error {
		w.KycStatus = s
		return nil
	})
}

func (m *Memory) SetRiskScore(_ context.Context, id string, score float64) error {
	return m.update(id, func(w *advance.Worker) error {
		w.RiskScore = score
		return nil
	})
}

func (m *Memory) SetLimitCap(_ context.Context, id string, limit *money.Amount) error {
	return m.update(id, func(w *advance.Worker) error {
		w.LimitCap = limit
		return nil
	})
}

func (m *Memory) RaiseEarnings(_ context.Context, employerID, workerID string, earned money.Amount) error {
	return m.update(workerID, func(w *advance.Worker) error {
		if w.EmployerID != employerID {
			return advance.ErrWorkerNotFound
		}
		if earned < w.EarnedWages {
			return workers.ErrEarningsDecreased
		}
		w.EarnedWages = earned
		return nil
	})
}

func (m *Memory) CloseCycle(ctx context.Context, employerID string, at time.Time) (workers.CycleResult, error) {
	staff, err := m.Workers(ctx, employerID)
	if err != nil {
		return workers.CycleResult{}, err
	}
	// Sorted by id, so lock order is stable.
	for _, w := range staff {
		l := m.lockFor(w.ID)
		l.Lock()
		defer l.Unlock()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	res := workers.CycleResult{EmployerID: employerID, ClosedAt: at}
	for _, w := range staff {
		cur := m.workers[w.ID]
		cur.EarnedWages = 0
		cur.CycleStartedAt = at
		m.workers[w.ID] = cur
		res.WorkersReset++
	}
	for i := range m.deductions {
		d := &m.deductions[i]
		if d.EmployerID != employerID || d.Status != advance.DeductionScheduled {
			continue
		}
		settled := at
		d.Status = advance.DeductionDeducted
		d.DeductedAt = &settled
		if r, ok := m.requests[d.RequestID]; ok {
			r.SettledAt = &settled
			m.requests[r.ID] = r
		}
		res.Settled++
		res.Recovered += d.Amount
	}
	return res, nil
}

func (m *Memory) Deductions(_ context.Context, employerID string, status advance.DeductionStatus) ([]advance.Deduction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []advance.Deduction
	for _, d := range m.deductions {
		if (employerID == "" || d.EmployerID == employerID) && (status == "" || d.Status == status) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Memory) Summary(_ context.Context, employerID string) (workers.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := workers.Summary{ByStatus: map[advance.Status]int{}}
	for _, w := range m.workers {
		if employerID != "" && w.EmployerID != employerID {
			continue
		}
		s.Workers++
		if w.KycStatus == advance.KycSubmitted {
			s.PendingKyc++
		}
	}
	for _, r := range m.requests {
		if employerID != "" && r.EmployerID != employerID {
			continue
		}
		s.ByStatus[r.Status]++
		if r.Status == advance.StatusDisbursed {
			s.Disbursed += r.NetPayout
			s.Fees += r.TotalFee()
			if r.Outstanding() {
				s.Outstanding += r.Amount
			}
		}
	}
	return s, nil
}
