package recovery

import (
	"slices"
	"sync"
)

// Registry records components taken out of service for new critical work.
// The guard consults it through IsIsolated.
type Registry struct {
	mu       sync.RWMutex
	isolated map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{isolated: make(map[string]struct{})}
}

func (r *Registry) Isolate(component string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isolated[component] = struct{}{}
}

func (r *Registry) Release(component string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.isolated, component)
}

func (r *Registry) IsIsolated(component string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.isolated[component]
	return ok
}

// Isolated lists isolated components in sorted order.
func (r *Registry) Isolated() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.isolated))
	for c := range r.isolated {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}
