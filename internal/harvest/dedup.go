package harvest

import "sync"

// Registry is the run-scoped set of accepted identity keys. It is safe for
// concurrent use.
type Registry struct {
	mu   sync.Mutex
	seen map[IdentityKey]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[IdentityKey]struct{})}
}

// InsertIfAbsent adds key and returns true, or returns false when key was
// already present. The check and the insert happen under one lock.
func (r *Registry) InsertIfAbsent(key IdentityKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[key]; ok {
		return false
	}
	r.seen[key] = struct{}{}
	return true
}

// Contains reports whether key has been inserted.
func (r *Registry) Contains(key IdentityKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[key]
	return ok
}

// Len returns the number of keys in the registry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}
