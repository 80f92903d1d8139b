package registry

import (
	"fmt"
	"sync"

	"github.com/loykin/bringup/internal/process"
)

// DuplicateServiceError means a second handle was registered under a name
// already present. This is a configuration error and fatal for startup.
type DuplicateServiceError struct {
	Name string
}

func (e *DuplicateServiceError) Error() string {
	return fmt.Sprintf("service %s already registered", e.Name)
}

// Registry maps logical service names to live process handles for one
// supervisor run. It remembers insertion order so shutdown can walk the
// services deterministically. Reads may come from other goroutines (status
// API, metrics); all writes belong to the supervising goroutine.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*process.Process
	order  []string
}

func New() *Registry {
	return &Registry{byName: make(map[string]*process.Process)}
}

// Register adds a started process under its service name. At most one
// handle per name may exist at any time.
func (r *Registry) Register(p *process.Process) error {
	name := p.Name()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return &DuplicateServiceError{Name: name}
	}
	r.byName[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get returns the handle registered under name.
func (r *Registry) Get(name string) (*process.Process, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// All returns a snapshot of the registered handles in insertion order,
// i.e. the order the services were started.
func (r *Registry) All() []*process.Process {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*process.Process, 0, len(r.order))
	for _, name := range r.order {
		if p, ok := r.byName[name]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Names returns the registered names in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if _, ok := r.byName[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Statuses returns point-in-time snapshots in insertion order.
func (r *Registry) Statuses() []process.Status {
	procs := r.All()
	out := make([]process.Status, 0, len(procs))
	for _, p := range procs {
		out = append(out, p.Snapshot())
	}
	return out
}

// Remove drops the handle registered under name. Removing an absent name
// is a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		return
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Len reports the number of registered services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
