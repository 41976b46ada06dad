package handlers

import (
	"context"
	"sync"

	"github.com/SAP-F-2025/session-runtime/internal/runtime"
	"github.com/SAP-F-2025/session-runtime/internal/services"
	"github.com/SAP-F-2025/session-runtime/internal/utils"
)

// EngineFactory builds one engine wired to its collaborators.
type EngineFactory func(sessionID uint) *runtime.Engine

// Registry owns the running engines, one per session. Opening an already-open
// session returns the existing engine rather than a second one; two engines
// for one session would mean two countdowns racing to submit.
type Registry struct {
	factory EngineFactory
	logger  utils.Logger

	mu      sync.Mutex
	engines map[uint]*runtime.Engine
}

func NewRegistry(factory EngineFactory, logger utils.Logger) *Registry {
	return &Registry{
		factory: factory,
		logger:  logger,
		engines: make(map[uint]*runtime.Engine),
	}
}

// Open returns the running engine for the session, starting one if needed.
// The lock is held across Start so a burst of duplicate open requests cannot
// build competing engines.
func (r *Registry) Open(ctx context.Context, sessionID uint) (*runtime.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if engine, ok := r.engines[sessionID]; ok {
		return engine, nil
	}

	engine := r.factory(sessionID)
	if err := engine.Start(ctx); err != nil {
		engine.Close()
		return nil, err
	}
	r.engines[sessionID] = engine
	r.logger.Info("Session engine opened", "session_id", sessionID, "running", len(r.engines))
	return engine, nil
}

// Get returns the running engine or ErrSessionNotRunning.
func (r *Registry) Get(sessionID uint) (*runtime.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	engine, ok := r.engines[sessionID]
	if !ok {
		return nil, services.ErrSessionNotRunning
	}
	return engine, nil
}

// Close tears down one session's engine and removes it from the registry.
func (r *Registry) Close(sessionID uint) {
	r.mu.Lock()
	engine, ok := r.engines[sessionID]
	delete(r.engines, sessionID)
	r.mu.Unlock()

	if ok {
		engine.Close()
		r.logger.Info("Session engine closed", "session_id", sessionID)
	}
}

// CloseAll tears down every engine. Called on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	engines := r.engines
	r.engines = make(map[uint]*runtime.Engine)
	r.mu.Unlock()

	for id, engine := range engines {
		engine.Close()
		r.logger.Debug("Session engine closed on shutdown", "session_id", id)
	}
}

// Count reports the number of running engines.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}
