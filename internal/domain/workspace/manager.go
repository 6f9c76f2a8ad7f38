package workspace

import (
	"context"
	"sort"
	"sync"

	"github.com/GriffinCanCode/playground/internal/shared/id"
)

// Manager tracks the open workspaces of a server
type Manager struct {
	mu         sync.RWMutex
	workspaces map[id.WorkspaceID]*Workspace // Protected by mu
	deps       Deps
	cfg        Config
}

// NewManager creates a workspace manager
func NewManager(deps Deps, cfg Config) *Manager {
	return &Manager{
		workspaces: make(map[id.WorkspaceID]*Workspace),
		deps:       deps,
		cfg:        cfg,
	}
}

// Open creates and opens a workspace that reports to listener
func (m *Manager) Open(ctx context.Context, listener Listener) (*Workspace, error) {
	w := New(m.deps, m.cfg, listener)
	if err := w.Open(ctx); err != nil {
		w.Close()
		return nil, err
	}

	m.mu.Lock()
	m.workspaces[w.ID()] = w
	count := len(m.workspaces)
	m.mu.Unlock()

	m.updateMetrics(count)
	return w, nil
}

// Get retrieves a workspace by ID
func (m *Manager) Get(wsID id.WorkspaceID) (*Workspace, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workspaces[wsID]
	return w, ok
}

// List returns snapshots of every open workspace, oldest first
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	workspaces := make([]*Workspace, 0, len(m.workspaces))
	for _, w := range m.workspaces {
		workspaces = append(workspaces, w)
	}
	m.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(workspaces))
	for _, w := range workspaces {
		snaps = append(snaps, w.Snapshot())
	}
	// ULIDs sort by creation time
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps
}

// Count returns the number of open workspaces
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workspaces)
}

// Close closes and forgets a workspace
func (m *Manager) Close(wsID id.WorkspaceID) bool {
	m.mu.Lock()
	w, ok := m.workspaces[wsID]
	delete(m.workspaces, wsID)
	count := len(m.workspaces)
	m.mu.Unlock()

	if !ok {
		return false
	}
	w.Close()
	m.updateMetrics(count)
	return true
}

// CloseAll closes every workspace
func (m *Manager) CloseAll() {
	m.mu.Lock()
	workspaces := m.workspaces
	m.workspaces = make(map[id.WorkspaceID]*Workspace)
	m.mu.Unlock()

	for _, w := range workspaces {
		w.Close()
	}
	m.updateMetrics(0)
}

func (m *Manager) updateMetrics(count int) {
	if m.deps.Metrics != nil {
		m.deps.Metrics.SetWorkspacesActive(count)
	}
}
