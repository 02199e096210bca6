package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/penwyp/podscope/internal/config"
)

// ResourceStatus is the last known state of one subscribed resource.
type ResourceStatus struct {
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Format       string    `json:"format"`
	Pulls        int       `json:"pulls"`
	Points       int       `json:"points"`
	LastPull     time.Time `json:"last_pull"`
	LastError    string    `json:"last_error,omitempty"`
	Subscription string    `json:"subscription"`
}

// Status is the snapshot served by the status endpoint.
type Status struct {
	StartedAt   time.Time        `json:"started_at"`
	LastRefresh time.Time        `json:"last_refresh"`
	Bus         string           `json:"bus"`
	Live        int              `json:"live"`
	CSV         int              `json:"csv"`
	Sessions    int              `json:"sessions"`
	Resources   []ResourceStatus `json:"resources"`
}

// StateManager tracks resource and bus state in a thread-safe manner
type StateManager struct {
	mu sync.RWMutex

	startedAt   time.Time
	lastRefresh time.Time
	bus         string
	resources   map[string]*ResourceStatus
}

// NewStateManager registers every configured resource as unsubscribed.
func NewStateManager(resources []config.Resource, startedAt time.Time) *StateManager {
	sm := &StateManager{
		startedAt: startedAt,
		bus:       "disabled",
		resources: make(map[string]*ResourceStatus, len(resources)),
	}
	for _, r := range resources {
		sm.resources[r.URL] = &ResourceStatus{
			Name:         r.Name,
			URL:          r.URL,
			Format:       r.Format,
			Subscription: "none",
		}
	}
	return sm
}

// RecordPull stores the outcome of one load of url.
func (sm *StateManager) RecordPull(url string, points int, err error, at time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	rs := sm.resource(url)
	rs.Pulls++
	rs.LastPull = at
	if err != nil {
		rs.LastError = err.Error()
		return
	}
	rs.LastError = ""
	rs.Points = points
}

// SetSubscription records the subscription state of url.
func (sm *StateManager) SetSubscription(url, state string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.resource(url).Subscription = state
}

// SetRefreshed marks the end of a full refresh.
func (sm *StateManager) SetRefreshed(at time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.lastRefresh = at
}

// SetBus records the bus listener state.
func (sm *StateManager) SetBus(state string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.bus = state
}

// Snapshot returns a copy, resources ordered by name.
func (sm *StateManager) Snapshot() Status {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	status := Status{
		StartedAt:   sm.startedAt,
		LastRefresh: sm.lastRefresh,
		Bus:         sm.bus,
		Resources:   make([]ResourceStatus, 0, len(sm.resources)),
	}
	for _, rs := range sm.resources {
		status.Resources = append(status.Resources, *rs)
	}
	sort.Slice(status.Resources, func(i, j int) bool {
		return status.Resources[i].Name < status.Resources[j].Name
	})
	return status
}

// resource must be called with mu held.
func (sm *StateManager) resource(url string) *ResourceStatus {
	rs, ok := sm.resources[url]
	if !ok {
		rs = &ResourceStatus{Name: url, URL: url, Subscription: "none"}
		sm.resources[url] = rs
	}
	return rs
}
