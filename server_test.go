package simulacron

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/datastax/go-cassandra-native-protocol/primitive"
	"go.uber.org/goleak"

	"github.com/bjmb/simulacron-go/addr"
	"github.com/bjmb/simulacron-go/store"
	"github.com/bjmb/simulacron-go/topology"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(base int) *Server {
	return NewServer(WithServerResolver(addr.NewLoopbackResolver(base, 20)))
}

func oneNodeTopology() *topology.Cluster {
	c := topology.NewCluster("it")
	dc := topology.NewDataCenter("dc1")
	dc.AddNode(topology.NewNode())
	c.AddDataCenter(dc)
	return c
}

func dialAndStartup(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	req := frame.NewFrame(primitive.ProtocolVersion4, 0, &message.Startup{})
	enc := frame.NewCodec()
	if err := enc.EncodeFrame(req, conn); err != nil {
		t.Fatalf("encode startup: %v", err)
	}
	r := bufio.NewReader(conn)
	resp, err := enc.DecodeFrame(r)
	if err != nil {
		t.Fatalf("decode startup response: %v", err)
	}
	if _, ok := resp.Body.Message.(*message.Ready); !ok {
		t.Fatalf("expected Ready, got %T", resp.Body.Message)
	}
	return conn, r
}

func queryOver(t *testing.T, conn net.Conn, r *bufio.Reader, streamID int16, query string) message.Message {
	t.Helper()
	enc := frame.NewCodec()
	req := frame.NewFrame(primitive.ProtocolVersion4, streamID, &message.Query{Query: query})
	if err := enc.EncodeFrame(req, conn); err != nil {
		t.Fatalf("encode query: %v", err)
	}
	resp, err := enc.DecodeFrame(r)
	if err != nil {
		t.Fatalf("decode query response: %v", err)
	}
	return resp.Body.Message
}

// End-to-end: register a one-node cluster, connect, startup, prime a query,
// observe it in the activity log, then unregister and confirm the listener
// is gone.
func TestServerEndToEnd(t *testing.T) {
	s := newTestServer(21000)
	ctx := context.Background()

	bc, err := s.Register(ctx, oneNodeTopology())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	ref := bc.NodeRefs()[0]
	node, _ := bc.Node(ref)

	s.Prime(store.ForCluster(bc.ID()), store.Matcher{Kind: store.KindQuery, Query: "SELECT * FROM ks.t"}, store.Action{
		Kind:     store.ActionRespond,
		Response: store.ResponseSpec{Kind: store.RespRows, Columns: []store.ColumnSpec{{Name: "c", Type: "varchar"}}, Rows: [][]interface{}{{"v"}}},
	})

	conn, r := dialAndStartup(t, node.Addr)
	if msg := queryOver(t, conn, r, 1, "SELECT * FROM ks.t"); msg == nil {
		t.Fatal("expected a response")
	} else if _, ok := msg.(*message.RowsResult); !ok {
		t.Fatalf("expected RowsResult, got %T", msg)
	}

	entries, err := s.ActivityLog(bc.ID())
	if err != nil {
		t.Fatalf("ActivityLog: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one activity entry")
	}

	conns, err := s.Connections(store.ForCluster(bc.ID()))
	if err != nil {
		t.Fatalf("Connections: %v", err)
	}
	if len(conns[ref]) != 1 {
		t.Fatalf("expected 1 connection reported, got %d", len(conns[ref]))
	}

	if err := s.Unregister(bc.ID()); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, err := net.DialTimeout("tcp", node.Addr, 100*time.Millisecond); err == nil {
		t.Fatal("expected listener to be gone after unregister")
	}
}

func TestServerStopAndStart(t *testing.T) {
	s := newTestServer(21100)
	ctx := context.Background()

	bc, err := s.Register(ctx, oneNodeTopology())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer bc.Close()
	ref := bc.NodeRefs()[0]
	node, _ := bc.Node(ref)

	if err := s.Stop(store.ForNode(ref)); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if node.Addr == "" {
		t.Fatal("node should still know its address after stop")
	}
	if _, err := net.DialTimeout("tcp", node.Addr, 100*time.Millisecond); err == nil {
		t.Fatal("expected the listener to be down after Stop")
	}

	if err := s.Start(ctx, store.ForNode(ref)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	conn, err := net.DialTimeout("tcp", node.Addr, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("expected the listener to accept again after Start: %v", err)
	}
	_ = conn.Close()
}

func TestServerCloseConnection(t *testing.T) {
	s := newTestServer(21200)
	ctx := context.Background()

	bc, err := s.Register(ctx, oneNodeTopology())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer bc.Close()
	ref := bc.NodeRefs()[0]
	node, _ := bc.Node(ref)

	conn, _ := dialAndStartup(t, node.Addr)
	local := conn.LocalAddr().String()

	if err := s.CloseConnection(store.ForNode(ref), local, store.Disconnect); err != nil {
		t.Fatalf("CloseConnection: %v", err)
	}

	buf := make([]byte, 1)
	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected the connection to be closed by the server")
	}
}
