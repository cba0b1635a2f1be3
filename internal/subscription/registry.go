// Package subscription implements the Subscription Registry (spec.md §4.3):
// which MACs must be actively probed, at what interval, and whether the
// next Dispatcher tick should force an update for them. Same single-mutex
// shape as internal/presence.Table.
package subscription

import "sync"

// entry is one Subscription Registry record.
type entry struct {
	interval int
	force    bool
}

// Registry is the shared set of actively-probed MACs.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Set adds mac with the given interval, or updates its interval if already
// present (spec.md §4.3: "set with an existing MAC simply updates the
// interval").
func (r *Registry) Set(mac string, interval int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[mac]; ok {
		e.interval = interval
		return
	}
	r.entries[mac] = &entry{interval: interval}
}

// Unset removes mac unconditionally.
//
// This does not reference-count: if two sessions both subscribed to the
// same MAC, either one disconnecting (or sending "stop") removes it for
// both. spec.md §9 flags this as a likely defect in the original source
// but directs implementers to keep it for compatibility — so this does,
// deliberately. See DESIGN.md.
func (r *Registry) Unset(mac string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, mac)
}

// MarkForce sets the force flag on mac, if it is still registered.
func (r *Registry) MarkForce(mac string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[mac]; ok {
		e.force = true
	}
}

// DrainForce returns every MAC whose force flag is set and clears it.
func (r *Registry) DrainForce() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var forced []string
	for mac, e := range r.entries {
		if e.force {
			forced = append(forced, mac)
			e.force = false
		}
	}
	return forced
}

// Subscription is a read-only snapshot entry returned by Snapshot.
type Subscription struct {
	MAC      string
	Interval int
}

// Snapshot returns a point-in-time copy of every registered MAC and
// interval, safe to range over without holding the Registry's lock.
func (r *Registry) Snapshot() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Subscription, 0, len(r.entries))
	for mac, e := range r.entries {
		out = append(out, Subscription{MAC: mac, Interval: e.interval})
	}
	return out
}

// Contains reports whether mac is currently registered.
func (r *Registry) Contains(mac string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[mac]
	return ok
}

// Len returns the number of registered MACs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
