package transport

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

	"github.com/bjmb/simulacron-go/store"
	"github.com/bjmb/simulacron-go/topology"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func bindNode(t *testing.T, n *Node) {
	t.Helper()
	if err := n.Bind(context.Background()); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	n.mu.Lock()
	n.Addr = n.listener.Addr().String()
	n.mu.Unlock()
	t.Cleanup(n.Close)
}

func sendQuery(t *testing.T, conn net.Conn, streamID int16, query string) message.Message {
	t.Helper()
	req := frame.NewFrame(primitive.ProtocolVersion4, streamID, &message.Query{Query: query})
	if err := writeFrame(conn, req); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	resp, err := readFrame(bufio.NewReader(conn))
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	return resp.Body.Message
}

// S1: a simple query prime answers with primed rows; anything else falls
// through to the default Void response.
func TestNodeAnswersSimpleQueryPrime(t *testing.T) {
	ref := topology.NodeRef{ClusterID: 1, DataCenterID: 0, NodeID: 0}
	st := store.New()
	st.Add(store.Everywhere(), store.Matcher{Kind: store.KindQuery, Query: "Select * FROM TABLE2"}, []store.Action{{
		Kind:     store.ActionRespond,
		Response: store.ResponseSpec{Kind: store.RespRows, Columns: []store.ColumnSpec{{Name: "column1", Type: "varchar"}}, Rows: [][]interface{}{{"column1"}}},
	}}, false)

	n := NewNode(ref, "127.0.0.1:0", st, nil)
	bindNode(t, n)

	conn := dial(t, n.Addr)
	if resp := sendQuery(t, conn, 1, "Select * FROM TABLE2"); resp == nil {
		t.Fatal("expected a response")
	} else if _, ok := resp.(*message.RowsResult); !ok {
		t.Fatalf("expected RowsResult, got %T", resp)
	}

	if resp := sendQuery(t, conn, 2, "Select * FROM OTHER"); resp == nil {
		t.Fatal("expected a response")
	} else if _, ok := resp.(*message.VoidResult); !ok {
		t.Fatalf("expected VoidResult for unmatched query, got %T", resp)
	}
}

// S7: Prepare -> Execute auto-primes to an empty Rows response.
func TestPrepareThenExecuteAutoPrime(t *testing.T) {
	ref := topology.NodeRef{ClusterID: 1, DataCenterID: 0, NodeID: 0}
	st := store.New()
	n := NewNode(ref, "127.0.0.1:0", st, nil)
	bindNode(t, n)

	conn := dial(t, n.Addr)
	query := "SELECT * FROM t WHERE k=?"

	prepReq := frame.NewFrame(primitive.ProtocolVersion4, 1, &message.Prepare{Query: query})
	if err := writeFrame(conn, prepReq); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	r := bufio.NewReader(conn)
	prepResp, err := readFrame(r)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	prepared, ok := prepResp.Body.Message.(*message.PreparedResult)
	if !ok {
		t.Fatalf("expected PreparedResult, got %T", prepResp.Body.Message)
	}

	execReq := frame.NewFrame(primitive.ProtocolVersion4, 2, &message.Execute{
		QueryId: prepared.PreparedQueryId,
		Options: &message.QueryOptions{PositionalValues: []*primitive.Value{{Contents: []byte("anything")}}},
	})
	if err := writeFrame(conn, execReq); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	execResp, err := readFrame(r)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	rows, ok := execResp.Body.Message.(*message.RowsResult)
	if !ok {
		t.Fatalf("expected RowsResult, got %T", execResp.Body.Message)
	}
	if len(rows.Data) != 0 {
		t.Fatalf("expected zero rows, got %d", len(rows.Data))
	}
}

// Invariant 5: Execute with an id no Prepare produced returns Unprepared.
func TestExecuteUnknownIDReturnsUnprepared(t *testing.T) {
	ref := topology.NodeRef{ClusterID: 1, DataCenterID: 0, NodeID: 0}
	st := store.New()
	n := NewNode(ref, "127.0.0.1:0", st, nil)
	bindNode(t, n)

	conn := dial(t, n.Addr)
	execReq := frame.NewFrame(primitive.ProtocolVersion4, 1, &message.Execute{QueryId: []byte("unknown-id")})
	if err := writeFrame(conn, execReq); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	resp, err := readFrame(bufio.NewReader(conn))
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if _, ok := resp.Body.Message.(*message.Unprepared); !ok {
		t.Fatalf("expected Unprepared, got %T", resp.Body.Message)
	}
}

// Invariant 6: reject(after=N, STOP) lets exactly N Startups through, then
// the listener stops accepting.
func TestRejectAfterNStop(t *testing.T) {
	ref := topology.NodeRef{ClusterID: 1, DataCenterID: 0, NodeID: 0}
	st := store.New()
	n := NewNode(ref, "127.0.0.1:0", st, nil)
	bindNode(t, n)

	n.Reject(1, RejectStop)

	conn := dial(t, n.Addr)
	r := bufio.NewReader(conn)
	startupReq := frame.NewFrame(primitive.ProtocolVersion4, 1, &message.Startup{})
	if err := writeFrame(conn, startupReq); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	resp, err := readFrame(r)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if _, ok := resp.Body.Message.(*message.Ready); !ok {
		t.Fatalf("expected Ready for the allowed startup, got %T", resp.Body.Message)
	}

	time.Sleep(50 * time.Millisecond)
	if _, err := net.DialTimeout("tcp", n.Addr, 100*time.Millisecond); err == nil {
		t.Fatal("expected the listener to have stopped accepting after the Nth startup")
	}
}

// reject(after=N>0, REJECT_STARTUP) must let exactly the next N Startups
// through with a normal Ready before it starts dropping, the same
// "answer the Nth, drop the (N+1)-th" shape UNBIND/STOP get, per spec.md
// §4.4.
func TestRejectAfterNRejectStartup(t *testing.T) {
	ref := topology.NodeRef{ClusterID: 1, DataCenterID: 0, NodeID: 0}
	st := store.New()
	n := NewNode(ref, "127.0.0.1:0", st, nil)
	bindNode(t, n)

	n.Reject(2, RejectStartup)

	conn := dial(t, n.Addr)
	r := bufio.NewReader(conn)

	for i := int16(1); i <= 2; i++ {
		startupReq := frame.NewFrame(primitive.ProtocolVersion4, i, &message.Startup{})
		if err := writeFrame(conn, startupReq); err != nil {
			t.Fatalf("writeFrame: %v", err)
		}
		resp, err := readFrame(r)
		if err != nil {
			t.Fatalf("readFrame %d: %v", i, err)
		}
		if _, ok := resp.Body.Message.(*message.Ready); !ok {
			t.Fatalf("expected Ready for startup %d, got %T", i, resp.Body.Message)
		}
	}

	thirdReq := frame.NewFrame(primitive.ProtocolVersion4, 3, &message.Startup{})
	if err := writeFrame(conn, thirdReq); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, err := readFrame(r); err == nil {
		t.Fatal("expected the (N+1)-th startup to be silently dropped, got a response")
	}
}

// Node.dispatch negotiates a Startup's COMPRESSION option onto the
// originating Conn, per spec.md §4.3's capability-advertisement table.
func TestStartupRecordsNegotiatedCompressor(t *testing.T) {
	ref := topology.NodeRef{ClusterID: 1, DataCenterID: 0, NodeID: 0}
	st := store.New()
	n := NewNode(ref, "127.0.0.1:0", st, nil)
	bindNode(t, n)

	conn := dial(t, n.Addr)
	r := bufio.NewReader(conn)
	startupReq := frame.NewFrame(primitive.ProtocolVersion4, 1, &message.Startup{
		Options: map[string]string{"COMPRESSION": "LZ4"},
	})
	if err := writeFrame(conn, startupReq); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	if _, err := readFrame(r); err != nil {
		t.Fatalf("readFrame: %v", err)
	}

	n.connsMu.Lock()
	var got Compressor
	for c := range n.conns {
		got = c.Compressor()
	}
	n.connsMu.Unlock()
	if got != CompressLZ4 {
		t.Fatalf("expected the connection to record CompressLZ4, got %q", got)
	}
}

func TestAcceptRebindsAfterUnbind(t *testing.T) {
	ref := topology.NodeRef{ClusterID: 1, DataCenterID: 0, NodeID: 0}
	st := store.New()
	ctx := context.Background()
	n := NewNode(ref, "127.0.0.1:0", st, nil)
	bindNode(t, n)

	n.Reject(0, RejectUnbind)
	if n.isBound() {
		t.Fatal("expected listener to be unbound")
	}

	if err := n.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if !n.isBound() {
		t.Fatal("expected listener to be rebound")
	}
}
