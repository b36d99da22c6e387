package jobs

import (
	"context"
	"errors"
	"sync"

	"batch-transcriber/internal/domain"
)

// ErrRunAlreadyActive is returned when starting a second active run.
var ErrRunAlreadyActive = errors.New("batch run already active")

// ErrNoActiveRun is returned when cancel is requested for idle state.
var ErrNoActiveRun = errors.New("no active batch run")

// Manager tracks the single allowed active run.
type Manager struct {
	mu      sync.RWMutex
	current *Tracker
	cancel  context.CancelFunc
	active  bool
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{}
}

// Start registers a new run. cancel is invoked by Cancel.
func (m *Manager) Start(runID string, items []domain.WorkItem, cancel context.CancelFunc) (*Tracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return nil, ErrRunAlreadyActive
	}
	m.current = NewTracker(runID, items)
	m.cancel = cancel
	m.active = true
	return m.current, nil
}

// Finish marks the run as no longer active. The tracker stays readable.
func (m *Manager) Finish(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.RunID() == runID {
		m.active = false
		m.cancel = nil
	}
}

// Current returns the latest run, active or not.
func (m *Manager) Current() (*Tracker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.current != nil
}

// IsRunning reports whether a run is active.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Cancel requests a cooperative stop of the active run.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return ErrNoActiveRun
	}
	m.current.RequestCancel()
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}
