// Package integration drives a registered simulator cluster with the real
// gocql driver, exercising the connection engine the way an actual
// application would rather than through a raw socket, per SPEC_FULL.md
// §10's test-tooling section.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/bjmb/simulacron-go"
	"github.com/bjmb/simulacron-go/addr"
	"github.com/bjmb/simulacron-go/store"
	"github.com/bjmb/simulacron-go/topology"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newServer(t *testing.T, basePort int) *simulacron.Server {
	t.Helper()
	return simulacron.NewServer(simulacron.WithServerResolver(addr.NewLoopbackResolver(basePort, 20)))
}

func threeNodeCluster() *topology.Cluster {
	c := topology.NewCluster("integration")
	dc := topology.NewDataCenter("dc1")
	for i := 0; i < 3; i++ {
		dc.AddNode(topology.NewNode())
	}
	c.AddDataCenter(dc)
	return c
}

// A gocql session can connect, run its startup handshake against
// system.local/system.peers, and get back a primed row set for a query it
// issues, same as it would against a real cluster.
func TestGocqlSessionAgainstPrimedQuery(t *testing.T) {
	srv := newServer(t, 22000)
	bc, err := srv.Register(context.Background(), threeNodeCluster())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	t.Cleanup(func() { _ = srv.Unregister(bc.ID()) })

	const query = "SELECT name FROM accounts.users WHERE id = ?"
	srv.Prime(store.ForCluster(bc.ID()), store.Matcher{
		Kind:   store.KindQuery,
		Query:  query,
		Params: []store.Param{{Index: 0, Value: store.Wildcard}},
	}, store.Action{
		Kind: store.ActionRespond,
		Response: store.ResponseSpec{
			Kind:    store.RespRows,
			Columns: []store.ColumnSpec{{Keyspace: "accounts", Table: "users", Name: "name", Type: "varchar"}},
			Rows:    [][]interface{}{{"ada"}},
		},
	})

	addresses := make([]string, 0, 3)
	for _, ref := range bc.NodeRefs() {
		node, _ := bc.Node(ref)
		addresses = append(addresses, node.Addr)
	}

	cluster := gocql.NewCluster(addresses...)
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second
	session, err := cluster.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer session.Close()

	var name string
	if err := session.Query(query, 7).Scan(&name); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if diff := cmp.Diff("ada", name); diff != "" {
		t.Fatalf("unexpected row (-want +got):\n%s", diff)
	}

	entries, err := srv.ActivityLog(bc.ID())
	if err != nil {
		t.Fatalf("ActivityLog: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Request.QueryString == query {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the primed query to show up in the activity log")
	}
}

// Stopping a node makes gocql mark it down; the remaining nodes keep
// answering primed queries.
func TestGocqlSurvivesNodeStop(t *testing.T) {
	srv := newServer(t, 22100)
	bc, err := srv.Register(context.Background(), threeNodeCluster())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	t.Cleanup(func() { _ = srv.Unregister(bc.ID()) })

	const query = "SELECT now() FROM system.local"
	srv.Prime(store.Everywhere(), store.Matcher{Kind: store.KindQuery, Query: query},
		store.Action{Kind: store.ActionRespond, Response: store.ResponseSpec{
			Kind:    store.RespRows,
			Columns: []store.ColumnSpec{{Name: "now", Type: "varchar"}},
			Rows:    [][]interface{}{{"now"}},
		}})

	refs := bc.NodeRefs()
	downRef := refs[0]
	if err := srv.Stop(store.ForNode(downRef)); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	addresses := make([]string, 0, len(refs)-1)
	for _, ref := range refs[1:] {
		node, _ := bc.Node(ref)
		addresses = append(addresses, node.Addr)
	}

	cluster := gocql.NewCluster(addresses...)
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second
	session, err := cluster.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer session.Close()

	var col string
	if err := session.Query(query).Scan(&col); err != nil {
		t.Fatalf("Scan against the surviving nodes: %v", err)
	}
}
