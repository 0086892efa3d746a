package guildstate

import "sync"

// Registry is the locked accessor for per-guild state. Lifecycle is
// create-on-enable, retain-until-disable: Disable flips the flag but keeps
// the state object so thresholds, whitelist and incident history survive.
type Registry struct {
	mu        sync.RWMutex
	guilds    map[string]*State
	queueSize int
}

func NewRegistry(queueSize int) *Registry {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Registry{
		guilds:    make(map[string]*State),
		queueSize: queueSize,
	}
}

// Get returns the state for a guild, or false when protection was never
// enabled there.
func (r *Registry) Get(guildID string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.guilds[guildID]
	return s, ok
}

// Create returns the existing state for a guild or creates a fresh enabled
// one. Safe to call from concurrent enable paths.
func (r *Registry) Create(guildID string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.guilds[guildID]; ok {
		return s
	}
	s := newState(guildID, r.queueSize)
	r.guilds[guildID] = s
	return s
}

// All returns a snapshot of every registered state.
func (r *Registry) All() []*State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*State, 0, len(r.guilds))
	for _, s := range r.guilds {
		out = append(out, s)
	}
	return out
}

// Size reports how many guilds have ever enabled protection.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.guilds)
}
