package transport

import (
	"strings"

	"github.com/google/uuid"

	"github.com/bjmb/simulacron-go/store"
	"github.com/bjmb/simulacron-go/topology"
)

// systemTableResponse answers the common schema/topology queries every
// driver issues before it considers a cluster usable, per spec.md §4.3:
// system_schema.*/system.schema_* always come back empty unless a user
// explicitly primed them (Store.Find already had first refusal before this
// is reached), and system.local/system.peers reflect the actual bound
// topology via the rows baked in at bind time. It returns nil when q isn't
// one of these, so the caller falls through to the generic default-Void
// path.
func (n *Node) systemTableResponse(q string) *store.ResponseSpec {
	norm := normalizeQuery(q)
	switch {
	case isSchemaQuery(norm):
		return &store.ResponseSpec{Kind: store.RespRows}
	case strings.Contains(norm, "from system.local"):
		return rowsFromSystemRow(n.Local)
	case strings.Contains(norm, "from system.peers"):
		spec := &store.ResponseSpec{Kind: store.RespRows}
		if len(n.Peers) > 0 {
			spec.Columns = n.Peers[0].Columns
		}
		for _, p := range n.Peers {
			spec.Rows = append(spec.Rows, p.Values)
		}
		return spec
	default:
		return nil
	}
}

func rowsFromSystemRow(row SystemRow) *store.ResponseSpec {
	if row.Columns == nil {
		return &store.ResponseSpec{Kind: store.RespRows}
	}
	return &store.ResponseSpec{Kind: store.RespRows, Columns: row.Columns, Rows: [][]interface{}{row.Values}}
}

func normalizeQuery(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	return strings.Join(strings.Fields(q), " ")
}

func isSchemaQuery(normalized string) bool {
	return strings.Contains(normalized, "system_schema.") || strings.Contains(normalized, "system.schema_")
}

var systemLocalColumns = []store.ColumnSpec{
	{Keyspace: "system", Table: "local", Name: "key", Type: "varchar"},
	{Keyspace: "system", Table: "local", Name: "broadcast_address", Type: "inet"},
	{Keyspace: "system", Table: "local", Name: "cluster_name", Type: "varchar"},
	{Keyspace: "system", Table: "local", Name: "cql_version", Type: "varchar"},
	{Keyspace: "system", Table: "local", Name: "data_center", Type: "varchar"},
	{Keyspace: "system", Table: "local", Name: "host_id", Type: "uuid"},
	{Keyspace: "system", Table: "local", Name: "listen_address", Type: "inet"},
	{Keyspace: "system", Table: "local", Name: "rack", Type: "varchar"},
	{Keyspace: "system", Table: "local", Name: "release_version", Type: "varchar"},
	{Keyspace: "system", Table: "local", Name: "rpc_address", Type: "inet"},
	{Keyspace: "system", Table: "local", Name: "schema_version", Type: "uuid"},
	{Keyspace: "system", Table: "local", Name: "tokens", Type: "varchar"},
}

var systemPeersColumns = []store.ColumnSpec{
	{Keyspace: "system", Table: "peers", Name: "peer", Type: "inet"},
	{Keyspace: "system", Table: "peers", Name: "cluster_name", Type: "varchar"},
	{Keyspace: "system", Table: "peers", Name: "data_center", Type: "varchar"},
	{Keyspace: "system", Table: "peers", Name: "host_id", Type: "uuid"},
	{Keyspace: "system", Table: "peers", Name: "rack", Type: "varchar"},
	{Keyspace: "system", Table: "peers", Name: "release_version", Type: "varchar"},
	{Keyspace: "system", Table: "peers", Name: "rpc_address", Type: "inet"},
	{Keyspace: "system", Table: "peers", Name: "schema_version", Type: "uuid"},
	{Keyspace: "system", Table: "peers", Name: "tokens", Type: "varchar"},
}

// hostID derives a stable uuid for ref so repeated lookups of the same
// bound node (e.g. across system.local and system.peers rows for its
// siblings) always report the same host_id, without needing to persist
// one anywhere.
func hostID(ref topology.NodeRef) string {
	return uuid.NewSHA1(uuid.Nil, []byte(ref.String())).String()
}

// BuildLocalRow computes the system.local row a node answers about itself,
// baked in once at bind time from the final (post-AssignTokens,
// post-address-resolution) topology.
func BuildLocalRow(ref topology.NodeRef, node *topology.Node, dc *topology.DataCenter, cluster *topology.Cluster) SystemRow {
	return SystemRow{
		Columns: systemLocalColumns,
		Values: []interface{}{
			"local",
			node.Address,
			cluster.Name,
			"3.4.4",
			dc.Name,
			hostID(ref),
			node.Address,
			"rack1",
			releaseVersion(node, cluster),
			node.Address,
			hostID(ref),
			node.EffectiveToken(),
		},
	}
}

// BuildPeerRows computes one system.peers row for every other bound node
// in self's cluster, per SPEC_FULL.md §12's multi-node generalization of
// spec.md §4.3's peer-metadata handler.
func BuildPeerRows(self topology.NodeRef, cluster *topology.Cluster) []SystemRow {
	var rows []SystemRow
	for _, dc := range cluster.DataCenters {
		for _, node := range dc.Nodes {
			ref := topology.NodeRef{ClusterID: cluster.ID, DataCenterID: dc.ID, NodeID: node.ID}
			if ref == self {
				continue
			}
			rows = append(rows, SystemRow{
				Columns: systemPeersColumns,
				Values: []interface{}{
					node.Address,
					cluster.Name,
					dc.Name,
					hostID(ref),
					"rack1",
					releaseVersion(node, cluster),
					node.Address,
					hostID(ref),
					node.EffectiveToken(),
				},
			})
		}
	}
	return rows
}

func releaseVersion(node *topology.Node, cluster *topology.Cluster) string {
	if node.Cassandra != "" {
		return node.Cassandra
	}
	if cluster.Cassandra != "" {
		return cluster.Cassandra
	}
	return "3.11.2"
}
