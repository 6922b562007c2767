package http

import (
	"context"
	"time"

	"hireprep-server/pkg/session"
)

const defaultMetricsFeedInterval = 500 * time.Millisecond

// ManagerAdapter exposes a session.Manager through the Sessions interface.
// When a metrics hub is attached, starting a session also starts a feed
// goroutine that broadcasts delivery metrics snapshots until the session ends.
type ManagerAdapter struct {
	manager      *session.Manager
	hub          *MetricsHub
	feedInterval time.Duration
}

// NewManagerAdapter wraps a session manager for the HTTP layer.
func NewManagerAdapter(manager *session.Manager) *ManagerAdapter {
	return &ManagerAdapter{manager: manager, feedInterval: defaultMetricsFeedInterval}
}

// WithMetricsHub attaches a hub that receives live metrics for each running
// session.
func (a *ManagerAdapter) WithMetricsHub(hub *MetricsHub) *ManagerAdapter {
	a.hub = hub
	return a
}

func (a *ManagerAdapter) Create(userID string, cfg session.InterviewConfig) (string, error) {
	o := a.manager.Create(cfg)
	if userID != "" {
		o.SetUser(userID)
	}
	return o.ID(), nil
}

func (a *ManagerAdapter) Start(id string) error {
	o, err := a.manager.Get(id)
	if err != nil {
		return err
	}
	if err := o.StartSession(context.Background()); err != nil {
		return err
	}
	if a.hub != nil {
		go a.feedMetrics(o)
	}
	return nil
}

func (a *ManagerAdapter) Stop(id string) error {
	o, err := a.manager.Get(id)
	if err != nil {
		return err
	}
	o.StopSession()
	return nil
}

func (a *ManagerAdapter) State(id string) (session.State, error) {
	o, err := a.manager.Get(id)
	if err != nil {
		return session.State{}, err
	}
	return o.State(), nil
}

func (a *ManagerAdapter) feedMetrics(o *session.Orchestrator) {
	ticker := time.NewTicker(a.feedInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.Done():
			return
		case <-ticker.C:
			a.hub.BroadcastMetrics(o.ID(), o.Snapshot())
		}
	}
}
