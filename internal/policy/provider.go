package policy

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// Provider supplies the current policy snapshot. The engine asks for it on
// every computation and never caches it across calls.
type Provider interface {
	Policy(ctx context.Context) (*Policy, error)
}

// Static always returns the same policy.
type Static struct {
	p *Policy
}

// NewStatic validates p and wraps it.
func NewStatic(p *Policy) (*Static, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Static{p: p}, nil
}

func (s *Static) Policy(context.Context) (*Policy, error) {
	return s.p, nil
}

// File serves the policy stored in a YAML file and reloads it when the file's
// modification time changes. A broken edit fails closed: the error is
// returned until the file is fixed.
type File struct {
	path string

	mu      sync.Mutex
	current *Policy
	modTime time.Time
}

// NewFile loads path once so misconfiguration surfaces at startup.
func NewFile(path string) (*File, error) {
	f := &File{path: path}
	if _, err := f.Policy(context.Background()); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Policy(context.Context) (*Policy, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return nil, fmt.Errorf("stat policy %s: %w", f.path, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current != nil && info.ModTime().Equal(f.modTime) {
		return f.current, nil
	}
	p, err := Load(f.path)
	if err != nil {
		return nil, err
	}
	f.current = p
	f.modTime = info.ModTime()
	return p, nil
}
