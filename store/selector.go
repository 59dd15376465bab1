package store

import "github.com/bjmb/simulacron-go/topology"

// Selector scopes a Prime's visibility, or an operator command's target, to
// the whole deployment, one cluster, one data center, or one node. A nil
// field widens the scope along that axis; an all-nil Selector matches
// every bound node.
type Selector struct {
	ClusterID    *int64
	DataCenterID *int
	NodeID       *int
}

// Everywhere is the whole-deployment scope.
func Everywhere() Selector { return Selector{} }

// ForCluster scopes to a single cluster.
func ForCluster(id int64) Selector { return Selector{ClusterID: &id} }

// ForDataCenter scopes to a single data center within a cluster.
func ForDataCenter(clusterID int64, dcID int) Selector {
	return Selector{ClusterID: &clusterID, DataCenterID: &dcID}
}

// ForNode scopes to a single node.
func ForNode(ref topology.NodeRef) Selector {
	return Selector{ClusterID: &ref.ClusterID, DataCenterID: &ref.DataCenterID, NodeID: &ref.NodeID}
}

// Contains reports whether ref falls within s.
func (s Selector) Contains(ref topology.NodeRef) bool {
	if s.ClusterID != nil && *s.ClusterID != ref.ClusterID {
		return false
	}
	if s.DataCenterID != nil && *s.DataCenterID != ref.DataCenterID {
		return false
	}
	if s.NodeID != nil && *s.NodeID != ref.NodeID {
		return false
	}
	return true
}
