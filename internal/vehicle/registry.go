package vehicle

import "sync"

// Registry tracks the live Client for each vehicle id a process has started,
// mirroring OrderSubscriber.h's `instances_` map. One process runs exactly
// one Client (cmd/vehicle is selected by a single UVDISPATCH_UV_ID), so
// Registry exists for lifecycle bookkeeping at Start/Stop rather than a
// cross-instance lookup.
type Registry struct {
	mu        sync.RWMutex
	instances map[int64]*Client
}

func NewRegistry() *Registry {
	return &Registry{instances: make(map[int64]*Client)}
}

func (r *Registry) Register(uvID int64, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[uvID] = c
}

func (r *Registry) Unregister(uvID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, uvID)
}
