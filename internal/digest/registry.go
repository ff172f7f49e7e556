package digest

import "sync"

// Registry holds the ordered set of registered digesters. Order matters:
// the coordinator runs digesters in registration order, so text producers
// must be registered ahead of their consumers.
type Registry struct {
	mu        sync.RWMutex
	digesters []Digester
	byName    map[string]Digester
}

// NewRegistry creates an empty digester registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Digester)}
}

// Register adds a digester. Registering the same name twice is a no-op, so
// initialization code may run more than once safely.
func (r *Registry) Register(d Digester) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[d.Name()]; exists {
		return
	}

	r.byName[d.Name()] = d
	r.digesters = append(r.digesters, d)
}

// All returns the registered digesters in registration order.
func (r *Registry) All() []Digester {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Digester, len(r.digesters))
	copy(result, r.digesters)
	return result
}

// Get returns the digester registered under name.
func (r *Registry) Get(name string) (Digester, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byName[name]
	return d, ok
}

// DigestTypes returns every digest row name the registered digesters
// produce, in registration order. This is the full set of digest types the
// selector considers when deciding whether a file still needs work.
func (r *Registry) DigestTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var types []string
	seen := make(map[string]struct{})
	for _, d := range r.digesters {
		for _, name := range outputNames(d) {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			types = append(types, name)
		}
	}
	return types
}
