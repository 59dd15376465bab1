// Package topology models the declarative Cluster -> DataCenter -> Node tree
// described by an operator, independent of whether any of it is currently
// bound to a listening socket.
//
// Ownership runs one way, arena-style: a Cluster owns its DataCenters, a
// DataCenter owns its Nodes. A Node never holds a pointer back to its parent
// DataCenter (and a DataCenter never points back to its Cluster); callers
// that need the parent already have it, since they are walking the tree
// top-down. This sidesteps the reference cycles that a naive Node.Parent
// field would create and keeps the tree trivially copyable.
package topology

import "fmt"

// PeerInfo is a free-form bag of operator-supplied metadata attached to a
// Cluster or Node. Keys are preserved verbatim; the simulator never
// interprets them.
type PeerInfo map[string]interface{}

// Node is a single simulated cluster member. An unbound Node is pure
// configuration; binding it (see package bind) attaches a listener, accepted
// connections, reject-state and a prepared-statement cache that live outside
// this package.
type Node struct {
	ID         int
	Address    string // operator-supplied listen address, empty to auto-assign
	Cassandra  string
	DSE        string
	PeerInfo   PeerInfo
	Token      string

	// hasParent is set by (*DataCenter).AddNode so that a standalone
	// register() of a Node that already belongs to a DataCenter can be
	// rejected, per spec.
	hasParent bool
}

// HasParent reports whether this Node was added to a DataCenter via
// AddNode, and therefore cannot be registered standalone.
func (n *Node) HasParent() bool { return n.hasParent }

// NewNode creates unbound, parentless node configuration. Token is left
// empty so AssignTokens can tell "no token supplied" apart from an
// operator-chosen one; EffectiveToken reports "0" for a node that is still
// parentless when inspected before binding.
func NewNode() *Node {
	return &Node{}
}

// EffectiveToken returns the node's token, falling back to "0" for a
// parentless node that has not gone through AssignTokens yet.
func (n *Node) EffectiveToken() string {
	if n.Token == "" {
		return "0"
	}
	return n.Token
}

// DataCenter is a named group of Nodes within a Cluster.
type DataCenter struct {
	ID    int
	Name  string
	Nodes []*Node
}

// NewDataCenter creates an empty, parentless data center.
func NewDataCenter(name string) *DataCenter {
	return &DataCenter{Name: name}
}

// Copy duplicates the DataCenter's scalar attributes but starts with zero
// nodes, per spec's data-model invariant for DC copies.
func (dc *DataCenter) Copy() *DataCenter {
	return &DataCenter{Name: dc.Name}
}

// AddNode appends n to dc, assigning n's ID in insertion order (0-based)
// within this data center and marking it as having a parent.
func (dc *DataCenter) AddNode(n *Node) *DataCenter {
	n.ID = len(dc.Nodes)
	n.hasParent = true
	dc.Nodes = append(dc.Nodes, n)
	return dc
}

// Cluster is the root of a topology tree.
type Cluster struct {
	ID          int64
	Name        string
	Cassandra   string
	DSE         string
	PeerInfo    PeerInfo
	DataCenters []*DataCenter
}

// NewCluster creates an empty cluster with no assigned ID; the bind manager
// assigns one at register() time if it is still zero.
func NewCluster(name string) *Cluster {
	return &Cluster{Name: name}
}

// AddDataCenter appends dc to c, assigning dc's ID in insertion order.
func (c *Cluster) AddDataCenter(dc *DataCenter) *Cluster {
	dc.ID = len(c.DataCenters)
	c.DataCenters = append(c.DataCenters, dc)
	return c
}

// NodeCount returns the total number of nodes across all data centers.
func (c *Cluster) NodeCount() int {
	n := 0
	for _, dc := range c.DataCenters {
		n += len(dc.Nodes)
	}
	return n
}

// Clone deep-copies the tree so a register() call can mutate IDs/tokens
// without affecting the caller's original topology value.
func (c *Cluster) Clone() *Cluster {
	out := &Cluster{
		ID:        c.ID,
		Name:      c.Name,
		Cassandra: c.Cassandra,
		DSE:       c.DSE,
		PeerInfo:  clonePeerInfo(c.PeerInfo),
	}
	for _, dc := range c.DataCenters {
		outDC := &DataCenter{ID: dc.ID, Name: dc.Name}
		for _, n := range dc.Nodes {
			outDC.Nodes = append(outDC.Nodes, &Node{
				ID:        n.ID,
				Address:   n.Address,
				Cassandra: n.Cassandra,
				DSE:       n.DSE,
				PeerInfo:  clonePeerInfo(n.PeerInfo),
				Token:     n.Token,
				hasParent: true,
			})
		}
		out.DataCenters = append(out.DataCenters, outDC)
	}
	return out
}

func clonePeerInfo(p PeerInfo) PeerInfo {
	if p == nil {
		return nil
	}
	out := make(PeerInfo, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// NodeRef addresses a single node within a cloned/bound cluster tree.
type NodeRef struct {
	ClusterID    int64
	DataCenterID int
	NodeID       int
}

func (r NodeRef) String() string {
	return fmt.Sprintf("cluster=%d/dc=%d/node=%d", r.ClusterID, r.DataCenterID, r.NodeID)
}
