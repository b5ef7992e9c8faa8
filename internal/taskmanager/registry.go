package taskmanager

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownOntology is returned when no manager is registered for a name.
	ErrUnknownOntology = errors.New("unknown ontology")
	// ErrAlreadyRegistered is returned when registering a name twice.
	ErrAlreadyRegistered = errors.New("ontology already registered")
)

// Registry maps ontology names to their managers. It is safe for concurrent
// use.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]*Manager
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{managers: make(map[string]*Manager)}
}

// Register adds a manager under its ontology name.
func (r *Registry) Register(m *Manager) error {
	if m == nil || m.Name() == "" {
		return fmt.Errorf("cannot register manager without ontology name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.managers[m.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, m.Name())
	}
	r.managers[m.Name()] = m
	return nil
}

// Get returns the manager for an ontology.
func (r *Registry) Get(name string) (*Manager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.managers[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOntology, name)
	}
	return m, nil
}

// Names returns the registered ontology names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.managers))
	for name := range r.managers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// States returns a snapshot of every manager's state.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]State, len(r.managers))
	for name, m := range r.managers {
		out[name] = m.State()
	}
	return out
}
