package bind

import (
	"sync"

	"github.com/bjmb/simulacron-go/addr"
	"github.com/bjmb/simulacron-go/store"
	"github.com/bjmb/simulacron-go/topology"
	"github.com/bjmb/simulacron-go/transport"
)

// BoundCluster is a fully bound topology.Cluster: the resolved/token-
// assigned tree plus one live transport.Node per topology node, and the
// per-cluster activity log spec.md §3 attaches to a Cluster.
type BoundCluster struct {
	Topology *topology.Cluster
	Nodes    map[topology.NodeRef]*transport.Node
	Activity *ActivityLog

	// standalone marks a cluster that exists only to host a single
	// RegisterNode call, per spec.md §4.5; Unregister treats it the same
	// as any other cluster, it is just never surfaced by name.
	standalone bool

	// resolver/autoAddrs record which addresses this cluster's own nodes
	// borrowed from a Resolver at register time, so Unregister can hand
	// them back.
	resolver  addr.Resolver
	autoAddrs []string

	// mu guards Nodes/autoAddrs against Manager.bindAll's concurrent
	// per-node goroutines during the register() window: once a bind budget
	// times out, Register calls Close while some of those goroutines may
	// still be running (see bindAll's ctx.Done race), so reads/writes of
	// these two fields must not assume bindAll has already finished.
	mu sync.Mutex
}

// addNode records a newly bound node under ref, safe to call concurrently
// with Close.
func (b *BoundCluster) addNode(ref topology.NodeRef, n *transport.Node) {
	b.mu.Lock()
	b.Nodes[ref] = n
	b.mu.Unlock()
}

// addAutoAddr records an address borrowed from the resolver, safe to call
// concurrently with Close.
func (b *BoundCluster) addAutoAddr(a string) {
	b.mu.Lock()
	b.autoAddrs = append(b.autoAddrs, a)
	b.mu.Unlock()
}

// ID returns the cluster's assigned identifier.
func (b *BoundCluster) ID() int64 { return b.Topology.ID }

// NodeRefs lists every node address in this cluster, in DataCenter/Node
// order.
func (b *BoundCluster) NodeRefs() []topology.NodeRef {
	refs := make([]topology.NodeRef, 0, b.Topology.NodeCount())
	for _, dc := range b.Topology.DataCenters {
		for _, n := range dc.Nodes {
			refs = append(refs, topology.NodeRef{ClusterID: b.Topology.ID, DataCenterID: dc.ID, NodeID: n.ID})
		}
	}
	return refs
}

// Node looks up the transport.Node bound to ref within this cluster.
func (b *BoundCluster) Node(ref topology.NodeRef) (*transport.Node, bool) {
	n, ok := b.Nodes[ref]
	return n, ok
}

// Close unbinds and disconnects every node in the cluster and returns any
// addresses it borrowed from a Resolver, per spec.md §4.5's unregister()
// contract. It snapshots Nodes/autoAddrs under mu before acting on them, so
// it is safe to call while Manager.bindAll's per-node goroutines are still
// populating them (the timed-out-register path) as well as after they have
// all finished; calling it more than once on the same BoundCluster is safe,
// since transport.Node.Close and Resolver.Release both tolerate repeats.
func (b *BoundCluster) Close() {
	b.mu.Lock()
	nodes := make([]*transport.Node, 0, len(b.Nodes))
	for _, n := range b.Nodes {
		nodes = append(nodes, n)
	}
	addrs := append([]string(nil), b.autoAddrs...)
	b.mu.Unlock()

	for _, n := range nodes {
		n.Close()
	}
	if b.resolver != nil {
		for _, a := range addrs {
			b.resolver.Release(a)
		}
	}
}

// closeScope implements transport.CloseScopeFunc for every node in this
// cluster: a DataCenter-scoped disconnect reaches every sibling node in the
// same data center, a Cluster-scoped one reaches every node in the cluster.
func (b *BoundCluster) closeScope(ref topology.NodeRef, scope store.DisconnectScope, how store.DisconnectHow) {
	for other, node := range b.Nodes {
		switch scope {
		case store.ScopeDataCenter:
			if other.ClusterID == ref.ClusterID && other.DataCenterID == ref.DataCenterID {
				node.DisconnectAll(how)
			}
		case store.ScopeCluster:
			if other.ClusterID == ref.ClusterID {
				node.DisconnectAll(how)
			}
		}
	}
}
