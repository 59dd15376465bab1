package transport

import (
	"time"

	"github.com/bjmb/simulacron-go/store"
	"github.com/bjmb/simulacron-go/topology"
)

// ActivityEntry is one observed request, the unit package bind's
// append-only per-cluster activity log is built from, per spec.md §3.
type ActivityEntry struct {
	Node           topology.NodeRef
	Request        store.Request
	RemoteAddr     string
	MatchedPrimeID *uint64
	Timestamp      time.Time
}

// ActivityLogger receives one ActivityEntry per request a Node observes.
// transport never stores entries itself; package bind owns the log (it is
// a property of a Cluster, not of a single connection engine) and injects
// an implementation into every Node belonging to that cluster.
type ActivityLogger interface {
	Log(entry ActivityEntry)
}
