package app

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/microhost/internal/shared/id"
	"github.com/GriffinCanCode/microhost/internal/shared/types"
)

var (
	ErrAppExists         = errors.New("app already exists")
	ErrAppNotFound       = errors.New("app not found")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// transitions lists the states each state may move to.
var transitions = map[types.State][]types.State{
	types.StateCreated:     {types.StateLoading},
	types.StateLoading:     {types.StateBeforeMount, types.StateLoadFailed},
	types.StateLoadFailed:  {types.StateLoading},
	types.StateBeforeMount: {types.StateMounting},
	types.StateMounting:    {types.StateMounted, types.StateUnmount},
	types.StateMounted:     {types.StateUnmount},
	types.StateUnmount:     {types.StateMounting},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to types.State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Observer is notified of every state an instance enters.
type Observer interface {
	AppStateChanged(app string, state types.State)
}

// Manager tracks app instances.
type Manager struct {
	mu       sync.RWMutex
	apps     map[string]*types.Instance // Protected by mu
	observer Observer
	now      func() time.Time
}

// NewManager creates a new app manager.
func NewManager() *Manager {
	return &Manager{
		apps: make(map[string]*types.Instance),
		now:  time.Now,
	}
}

// WithObserver adds state tracking to the manager.
func (m *Manager) WithObserver(observer Observer) *Manager {
	m.observer = observer
	return m
}

// Create registers a new instance in the created state.
func (m *Manager) Create(instance types.Instance) (*types.Instance, error) {
	m.mu.Lock()
	if _, exists := m.apps[instance.Name]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAppExists, instance.Name)
	}

	now := m.now()
	instance.ID = id.NewAppID().String()
	instance.State = types.StateCreated
	instance.KeepAlive = types.KeepAliveNone
	instance.Error = ""
	instance.Mounts = 0
	instance.CreatedAt = now
	instance.UpdatedAt = now

	stored := instance
	m.apps[instance.Name] = &stored
	m.mu.Unlock()

	m.notify(instance.Name, types.StateCreated)
	return &instance, nil
}

// Get retrieves an instance by app name.
func (m *Manager) Get(name string) (*types.Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	instance, ok := m.apps[name]
	if !ok {
		return nil, false
	}

	// Return a copy to prevent external modifications
	instanceCopy := *instance
	return &instanceCopy, true
}

// List returns all instances sorted by name, optionally filtered by state.
func (m *Manager) List(state *types.State) []*types.Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	instances := make([]*types.Instance, 0, len(m.apps))
	for _, instance := range m.apps {
		if state == nil || instance.State == *state {
			instanceCopy := *instance
			instances = append(instances, &instanceCopy)
		}
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Name < instances[j].Name })
	return instances
}

// Transition moves an instance to a new state. Entering a non-failure state
// clears the recorded error; entering mounted counts a mount.
func (m *Manager) Transition(name string, to types.State) error {
	m.mu.Lock()
	instance, ok := m.apps[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAppNotFound, name)
	}
	if !CanTransition(instance.State, to) {
		from := instance.State
		m.mu.Unlock()
		return fmt.Errorf("%w: %s from %s to %s", ErrInvalidTransition, name, from, to)
	}

	instance.State = to
	instance.UpdatedAt = m.now()
	switch to {
	case types.StateMounted:
		instance.Mounts++
		instance.Error = ""
		instance.KeepAlive = types.KeepAliveNone
	case types.StateLoading, types.StateBeforeMount:
		instance.Error = ""
	}
	m.mu.Unlock()

	m.notify(name, to)
	return nil
}

// Fail records err on an instance without changing its state.
func (m *Manager) Fail(name string, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	instance, ok := m.apps[name]
	if !ok || err == nil {
		return false
	}
	instance.Error = err.Error()
	instance.UpdatedAt = m.now()
	return true
}

// SetKeepAlive updates the keep-alive state of an instance.
func (m *Manager) SetKeepAlive(name string, state types.KeepAliveState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	instance, ok := m.apps[name]
	if !ok {
		return false
	}
	instance.KeepAlive = state
	instance.UpdatedAt = m.now()
	return true
}

// Remove destroys an instance.
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.apps[name]; !ok {
		return false
	}
	delete(m.apps, name)
	return true
}

// Stats returns manager statistics.
func (m *Manager) Stats() types.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats types.Stats
	for _, instance := range m.apps {
		stats.TotalApps++
		switch {
		case instance.State == types.StateMounted:
			stats.MountedApps++
		case instance.State == types.StateLoadFailed:
			stats.FailedApps++
		}
		if instance.Hidden() {
			stats.HiddenApps++
		}
	}
	return stats
}

func (m *Manager) notify(name string, state types.State) {
	if m.observer != nil {
		m.observer.AppStateChanged(name, state)
	}
}
