// Package bind owns the bind/lifecycle manager (spec.md §4.5): it maps a
// declarative topology.Cluster onto a set of bound transport.Node
// listeners, assigns ids/tokens, rolls back partial binds, and drives the
// accept/reject/unregister transitions an operator issues afterwards.
package bind

import (
	"sync"

	"github.com/bjmb/simulacron-go/transport"
)

// ActivityLog is the per-cluster, append-only record of observed requests
// spec.md §3 attaches to every Cluster. It implements
// transport.ActivityLogger so every Node belonging to this cluster can
// append to it directly.
type ActivityLog struct {
	enabled bool

	mu      sync.RWMutex
	entries []transport.ActivityEntry
}

// NewActivityLog creates a log. When enabled is false, Log is a no-op,
// matching an operator who registered with activity logging turned off.
func NewActivityLog(enabled bool) *ActivityLog {
	return &ActivityLog{enabled: enabled}
}

// Log appends entry. Readers may observe any suffix concurrently, per
// spec.md §5.
func (l *ActivityLog) Log(entry transport.ActivityEntry) {
	if !l.enabled {
		return
	}
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a snapshot of every entry logged so far.
func (l *ActivityLog) Entries() []transport.ActivityEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]transport.ActivityEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Clear discards every logged entry.
func (l *ActivityLog) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}
