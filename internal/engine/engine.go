// Package engine provides the step execution engine and state manager.
// It owns the public command surface: session and step mutation, step
// execution with optional downstream cascade, and snapshot save/revert.
package engine

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/datastep-labs/datastep/internal/dataframe"
	"github.com/datastep-labs/datastep/pkg/core"
)

// DefaultTimeout bounds one execution including its cascade.
const DefaultTimeout = 10 * time.Minute

// Engine orchestrates step execution against a session's pipeline.
//
// Concurrency model: one mutex per session. Every mutating command and
// every execution holds it for the full operation, so a revert can never
// interleave with a running cascade. Different sessions proceed in
// parallel.
type Engine struct {
	store   core.Store
	frames  dataframe.Store
	logger  *slog.Logger
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Config holds engine configuration.
type Config struct {
	// Store is the state store for sessions, steps, and snapshots.
	Store core.Store
	// Frames loads and saves the datasets flowing between steps.
	Frames dataframe.Store
	// Timeout bounds one execution including its cascade (default 10m).
	Timeout time.Duration
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// New creates a new engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine requires a state store")
	}
	if cfg.Frames == nil {
		return nil, fmt.Errorf("engine requires a dataframe store")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Engine{
		store:   cfg.Store,
		frames:  cfg.Frames,
		logger:  logger,
		timeout: timeout,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Store exposes the underlying state store for read-only introspection.
func (e *Engine) Store() core.Store {
	return e.store
}

// sessionLock returns the per-session mutex, creating it on first use.
func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[sessionID] = lock
	}
	return lock
}
