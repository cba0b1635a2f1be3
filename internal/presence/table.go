// Package presence implements the Presence Table (spec.md §4.2): the
// concurrency-safe mapping from MAC to last-known reachability state.
// Single writer (the Scanner), many readers (the Dispatcher). Grounded on
// the teacher's internal/analysers.Deduplicator — a single mutex guarding
// a plain map, with no per-key locking.
package presence

import (
	"strings"
	"sync"

	"github.com/npresenced/npresenced/pkg/models"
)

// Table is the shared store of Device state.
type Table struct {
	mu      sync.Mutex
	devices map[string]models.Device
}

// New creates an empty Table.
func New() *Table {
	return &Table{devices: make(map[string]models.Device)}
}

// Upsert applies spec.md §4.2's contract: on first sight of mac it inserts
// with timestamp == prev_timestamp == ts; otherwise it shifts the previous
// timestamp down and overwrites with ts. name only replaces any existing
// real name when the proposed value is non-empty and not the unknown
// sentinel; address_type is always overwritten (lower-cased).
func (t *Table) Upsert(mac, name, addressType string, ts int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	addressType = strings.ToLower(addressType)
	existing, ok := t.devices[mac]
	if !ok {
		resolved := name
		t.devices[mac] = models.Device{
			MAC:           mac,
			Name:          resolved,
			AddressType:   addressType,
			Timestamp:     ts,
			PrevTimestamp: ts,
		}
		return
	}

	resolvedName := existing.Name
	if name != "" && name != models.UnknownName {
		resolvedName = name
	} else if resolvedName == "" {
		resolvedName = name
	}

	existing.Name = resolvedName
	existing.AddressType = addressType
	existing.PrevTimestamp = existing.Timestamp
	existing.Timestamp = ts
	t.devices[mac] = existing
}

// Read returns a copy of the entry for mac, if any.
func (t *Table) Read(mac string) (models.Device, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.devices[mac]
	return d, ok
}

// Iterate calls fn once per entry with a private copy of each Device. fn
// must not call back into the Table; the lock is held for the duration.
func (t *Table) Iterate(fn func(models.Device)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range t.devices {
		fn(d)
	}
}

// Remove deletes mac, if present.
func (t *Table) Remove(mac string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.devices, mac)
}

// Len returns the number of tracked devices (for ping/stats responses).
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.devices)
}
