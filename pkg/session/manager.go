package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "hireprep-server/pkg/errors"
	"hireprep-server/pkg/metrics"
)

// Manager is the registry of live interview sessions.
type Manager struct {
	logger *logrus.Logger
	deps   Deps

	mu       sync.RWMutex
	sessions map[string]*Orchestrator
}

// NewManager creates a session manager.
func NewManager(logger *logrus.Logger, deps Deps) *Manager {
	return &Manager{
		logger:   logger,
		deps:     deps,
		sessions: make(map[string]*Orchestrator),
	}
}

// Create builds a new orchestrator under a fresh UUID and registers it. The
// caller still has to start it.
func (m *Manager) Create(cfg InterviewConfig) *Orchestrator {
	id := uuid.New().String()

	deps := m.deps
	if deps.NewAnalyzer != nil {
		deps.Analysis = deps.NewAnalyzer()
	}
	userEnd := deps.OnEnd
	deps.OnEnd = func(record *InterviewSession) {
		m.remove(id)
		if userEnd != nil {
			userEnd(record)
		}
	}

	o := NewOrchestrator(id, cfg, deps)

	m.mu.Lock()
	m.sessions[id] = o
	m.mu.Unlock()

	metrics.SessionsActive.Inc()
	m.logger.WithField("session_id", id).Info("Interview session created")
	return o
}

// Get returns a registered session.
func (m *Manager) Get(id string) (*Orchestrator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return o, nil
}

// Count reports the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StopAll tears down every registered session, for server shutdown.
func (m *Manager) StopAll() {
	m.mu.RLock()
	active := make([]*Orchestrator, 0, len(m.sessions))
	for _, o := range m.sessions {
		active = append(active, o)
	}
	m.mu.RUnlock()

	for _, o := range active {
		o.StopSession()
	}
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		metrics.SessionsActive.Dec()
		m.logger.WithField("session_id", id).Info("Interview session removed")
	}
}
