package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"

	"github.com/bjmb/simulacron-go/store"
	"github.com/bjmb/simulacron-go/topology"
)

// CloseScopeFunc resolves a Disconnect action whose scope reaches beyond a
// single node (DataCenter/Cluster) to the set of sibling Nodes it must
// apply to. It is supplied by package bind, which is the only layer that
// knows about sibling nodes in a registry; Node itself only ever sees
// itself and its own connections.
type CloseScopeFunc func(ref topology.NodeRef, scope store.DisconnectScope, how store.DisconnectHow)

// SystemRow is a precomputed row for one of the built-in system.local /
// system.peers responses, baked in once at bind time since a node's own
// identity and its siblings' addresses never change over a bound
// topology's lifetime.
type SystemRow struct {
	Columns []store.ColumnSpec
	Values  []interface{}
}

// Node is a bound cluster member: a listener, the set of currently
// accepted client connections, reject-state, the prepared-statement cache,
// and a reference to the cluster-wide prime store. It is the Go
// realization of spec.md §4.4's connection engine, one instance per bound
// node.
type Node struct {
	Ref    topology.NodeRef
	Addr   string
	Store  *store.Store
	Logger Logger

	// Activity, if non-nil, receives one entry per request observed on
	// this node, per spec.md §3's append-only activity log.
	Activity ActivityLogger

	// CloseScope resolves Disconnect actions scoped wider than this node.
	CloseScope CloseScopeFunc

	// Local/Peers back the built-in system.local / system.peers queries;
	// set once by the bind manager right after a successful register().
	Local SystemRow
	Peers []SystemRow

	mu       sync.Mutex
	listener net.Listener

	connsMu sync.Mutex
	conns   map[*Conn]struct{}

	reject   *rejectState
	prepared *preparedCache
}

// NewNode builds an unbound Node description; call Bind to start listening.
func NewNode(ref topology.NodeRef, addr string, st *store.Store, logger Logger) *Node {
	if logger == nil {
		logger = DefaultLogger{}
	}
	return &Node{
		Ref:      ref,
		Addr:     addr,
		Store:    st,
		Logger:   logger,
		conns:    make(map[*Conn]struct{}),
		reject:   newRejectState(),
		prepared: newPreparedCache(),
	}
}

// Bind opens the listener on n.Addr and starts accepting connections. ctx
// bounds only the act of binding the socket (per the bind manager's total
// bind-timeout budget); once bound, the accept loop runs until Close.
func (n *Node) Bind(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", n.Addr)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.listener = ln
	n.mu.Unlock()

	go n.acceptLoop(ln)
	return nil
}

func (n *Node) acceptLoop(ln net.Listener) {
	for {
		raw, err := ln.Accept()
		if err != nil {
			return
		}
		n.onAccept(raw)
	}
}

func (n *Node) onAccept(raw net.Conn) {
	conn := newConn(raw, n)
	n.connsMu.Lock()
	n.conns[conn] = struct{}{}
	n.connsMu.Unlock()
	conn.start()
}

func (n *Node) forgetConn(c *Conn) {
	n.connsMu.Lock()
	delete(n.conns, c)
	n.connsMu.Unlock()
}

// ConnCount reports the number of currently accepted connections.
func (n *Node) ConnCount() int {
	n.connsMu.Lock()
	defer n.connsMu.Unlock()
	return len(n.conns)
}

// RemoteAddrs lists the remote address of every currently accepted
// connection, for the Connections() report.
func (n *Node) RemoteAddrs() []string {
	n.connsMu.Lock()
	defer n.connsMu.Unlock()
	addrs := make([]string, 0, len(n.conns))
	for c := range n.conns {
		addrs = append(addrs, c.RemoteAddr())
	}
	return addrs
}

// unbindListener closes the listening socket only; accepted connections
// are left open (used by reject(UNBIND) and as the first half of Close).
func (n *Node) unbindListener() {
	n.mu.Lock()
	ln := n.listener
	n.listener = nil
	n.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
}

func (n *Node) isBound() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.listener != nil
}

// CloseConnection closes the single accepted connection whose remote
// address equals remoteAddr, reporting whether one was found.
func (n *Node) CloseConnection(remoteAddr string, how store.DisconnectHow) bool {
	n.connsMu.Lock()
	var target *Conn
	for c := range n.conns {
		if c.RemoteAddr() == remoteAddr {
			target = c
			break
		}
	}
	n.connsMu.Unlock()
	if target == nil {
		return false
	}
	target.CloseHow(how)
	return true
}

// DisconnectAll closes every connection currently accepted by this node
// without unbinding its listener, for use by a CloseScopeFunc implementation
// that needs to apply a DataCenter/Cluster-scoped disconnect to a sibling
// node it does not otherwise have access to.
func (n *Node) DisconnectAll(how store.DisconnectHow) {
	n.disconnectAll(how)
}

// disconnectAll closes every connection currently accepted by this node,
// tolerating the set changing concurrently as connections close
// themselves out from under the iteration.
func (n *Node) disconnectAll(how store.DisconnectHow) {
	n.connsMu.Lock()
	conns := make([]*Conn, 0, len(n.conns))
	for c := range n.conns {
		conns = append(conns, c)
	}
	n.connsMu.Unlock()

	for _, c := range conns {
		c.CloseHow(how)
	}
}

// Close unbinds the listener and disconnects every accepted channel, per
// spec.md §4.4's close() contract. Used by unregister.
func (n *Node) Close() {
	n.unbindListener()
	n.disconnectAll(store.Disconnect)
}

// Reject configures the reject-state machine. after == 0 applies scope
// immediately; after > 0 lets that many more Startup/Register frames
// through before the scope applies, per spec.md §4.4.
func (n *Node) Reject(after int64, scope RejectScope) {
	n.reject.reject(after, scope)
	if after == 0 {
		n.applyRejectScope(scope)
	}
}

// Accept resets reject-state to the default and, if the listener is
// currently unbound, rebinds it on the same address.
func (n *Node) Accept(ctx context.Context) error {
	n.reject.accept()
	if n.isBound() {
		return nil
	}
	return n.Bind(ctx)
}

func (n *Node) applyRejectScope(scope RejectScope) {
	switch scope {
	case RejectUnbind:
		n.unbindListener()
	case RejectStop:
		n.unbindListener()
		n.disconnectAll(store.Disconnect)
	case RejectStartup, RejectNone:
		// Nothing to apply synchronously; REJECT_STARTUP is enforced per
		// Startup frame in dispatch.
	}
}

// dispatch handles one decoded frame from conn. It always runs in its own
// goroutine (spawned by Conn.readLoop) so distinct requests on the same
// connection pipeline; slot is closed when this request is fully answered,
// which is what lets the writer goroutine move on to the next request's
// slot in arrival order.
func (n *Node) dispatch(c *Conn, f *frame.Frame, slot chan *frame.Frame) {
	defer close(slot)

	msg := f.Body.Message
	hdr := f.Header

	if isStartupFrame(msg) && n.reject.dropsStartup() {
		return
	}

	if startup, ok := msg.(*message.Startup); ok {
		c.SetCompressor(NegotiateCompressor(startup.Options["COMPRESSION"]))
	}

	req, ok := toRequest(msg, n.prepared)
	if !ok {
		if exec, isExec := msg.(*message.Execute); isExec {
			slot <- n.unpreparedFrame(hdr, exec.QueryId)
		}
		return
	}

	prime, matched := n.Store.Find(n.Ref, req)
	n.logActivity(req, c.RemoteAddr(), prime, matched)

	if matched {
		n.runActions(c, hdr, prime.Then, slot)
		return
	}

	n.runDefault(hdr, req, slot)
}

func isStartupFrame(msg message.Message) bool {
	switch msg.(type) {
	case *message.Startup, *message.Register:
		return true
	default:
		return false
	}
}

func (n *Node) unpreparedFrame(hdr *frame.Header, id []byte) *frame.Frame {
	msg, _ := toMessage(store.ResponseSpec{
		Kind:       store.RespUnprepared,
		PreparedID: string(id),
		Message:    unpreparedMessage(id),
	})
	return frame.NewFrame(hdr.Version, hdr.StreamId, msg)
}

// runActions executes a matched prime's action list in order, per
// spec.md §4.4: action k+1 does not begin until action k (including its
// delay) has completed.
func (n *Node) runActions(c *Conn, hdr *frame.Header, actions []store.Action, slot chan *frame.Frame) {
	for _, a := range actions {
		if a.DelayMs > 0 {
			time.Sleep(time.Duration(a.DelayMs) * time.Millisecond)
		}
		switch a.Kind {
		case store.ActionRespond:
			msg, err := toMessage(a.Response)
			if err != nil {
				n.Logger.Printf("transport: building response: %v", err)
				continue
			}
			slot <- frame.NewFrame(hdr.Version, hdr.StreamId, msg)
		case store.ActionNoResponse:
			// Nothing to send.
		case store.ActionDisconnect:
			n.applyDisconnect(c, a.DisconnectScope, a.DisconnectHow)
		}
	}
}

func (n *Node) applyDisconnect(c *Conn, scope store.DisconnectScope, how store.DisconnectHow) {
	switch scope {
	case store.ScopeConnection:
		c.CloseHow(how)
	case store.ScopeNode:
		n.disconnectAll(how)
	case store.ScopeDataCenter, store.ScopeCluster:
		if n.CloseScope != nil {
			n.CloseScope(n.Ref, scope, how)
		}
	}
}

// runDefault answers req with the minimal-viable-database table from
// spec.md §4.3 when no prime matched it.
func (n *Node) runDefault(hdr *frame.Header, req store.Request, slot chan *frame.Frame) {
	switch req.Kind {
	case store.KindStartup:
		n.defaultStartup(hdr, slot)
	case store.KindPrepare:
		n.defaultPrepare(hdr, req, slot)
	case store.KindQuery, store.KindBatch:
		if spec := n.systemTableResponse(req.QueryString); spec != nil {
			msg, err := toMessage(*spec)
			if err == nil {
				slot <- frame.NewFrame(hdr.Version, hdr.StreamId, msg)
			}
			return
		}
		n.sendDefault(hdr, req, slot)
	default:
		n.sendDefault(hdr, req, slot)
	}
}

func (n *Node) sendDefault(hdr *frame.Header, req store.Request, slot chan *frame.Frame) {
	spec := defaultResponse(req)
	if spec == nil {
		return
	}
	msg, err := toMessage(*spec)
	if err != nil {
		n.Logger.Printf("transport: building default response: %v", err)
		return
	}
	slot <- frame.NewFrame(hdr.Version, hdr.StreamId, msg)
}

// defaultStartup implements spec.md §4.4's reject-state interaction: the
// counter is only consumed by Startup/Register frames that reach this
// default path (i.e. weren't already silently dropped above), and any
// scheduled unbind/stop transition begins only after the Ready response
// has been handed to the slot channel.
func (n *Node) defaultStartup(hdr *frame.Header, slot chan *frame.Frame) {
	outcome := n.reject.observeStartup()
	if outcome.dropStartup {
		return
	}

	msg, _ := toMessage(store.ResponseSpec{Kind: store.RespReady})
	slot <- frame.NewFrame(hdr.Version, hdr.StreamId, msg)

	switch {
	case outcome.applyUnbind:
		n.unbindListener()
	case outcome.applyStop:
		n.unbindListener()
		n.disconnectAll(store.Disconnect)
	}
}

// defaultPrepare implements spec.md §4.3's auto-prime: it registers the
// deterministic prepared id, installs an internal Query prime (scoped to
// this node) that answers future Executes with zero rows, and replies
// Prepared(id).
func (n *Node) defaultPrepare(hdr *frame.Header, req store.Request, slot chan *frame.Frame) {
	id := n.prepared.register(req.QueryString)

	n.Store.Add(
		store.ForNode(n.Ref),
		store.Matcher{Kind: store.KindQuery, Query: req.QueryString, Params: autoPrimeParams(req.QueryString)},
		[]store.Action{{Kind: store.ActionRespond, Response: store.ResponseSpec{Kind: store.RespRows}}},
		true,
	)

	msg, _ := toMessage(store.ResponseSpec{Kind: store.RespPrepared, PreparedID: string(id)})
	slot <- frame.NewFrame(hdr.Version, hdr.StreamId, msg)
}

func (n *Node) logActivity(req store.Request, remoteAddr string, prime *store.Prime, matched bool) {
	if n.Activity == nil {
		return
	}
	entry := ActivityEntry{
		Node:       n.Ref,
		Request:    req,
		RemoteAddr: remoteAddr,
		Timestamp:  time.Now(),
	}
	if matched {
		id := prime.ID
		entry.MatchedPrimeID = &id
	}
	n.Activity.Log(entry)
}
