// Package simulacron implements a Cassandra-compatible cluster simulator: an
// operator declares a topology, the Server binds a real listener per node,
// and any CQL driver can connect to it as if it were talking to the
// cluster it describes. Canned responses ("primes") and connection-control
// commands (reject/accept/disconnect) let a test suite drive the simulated
// cluster through the failure modes a real one would exhibit.
package simulacron

import (
	"context"
	"fmt"

	"github.com/bjmb/simulacron-go/addr"
	"github.com/bjmb/simulacron-go/bind"
	"github.com/bjmb/simulacron-go/store"
	"github.com/bjmb/simulacron-go/topology"
	"github.com/bjmb/simulacron-go/transport"
)

// Server is the single entry point an operator talks to. It wraps a
// bind.Manager, translating the operator surface from spec.md §6 onto the
// manager/registry/store beneath it.
type Server struct {
	manager *bind.Manager
	logger  transport.Logger
}

// ServerOptions configures a Server at construction time, in the same
// functional-option shape as bind.RegisterOptions.
type ServerOptions struct {
	resolver addr.Resolver
	logger   transport.Logger
}

// ServerOption mutates a ServerOptions.
type ServerOption func(*ServerOptions)

// WithServerResolver overrides the default addr.Resolver new clusters draw
// auto-assigned listen addresses from. Defaults to a LoopbackResolver over
// ports [20000, 30000).
func WithServerResolver(r addr.Resolver) ServerOption {
	return func(o *ServerOptions) { o.resolver = r }
}

// WithServerLogger overrides the Logger attached to every bound node.
func WithServerLogger(l transport.Logger) ServerOption {
	return func(o *ServerOptions) { o.logger = l }
}

// NewServer constructs a Server ready to accept Register calls.
func NewServer(opts ...ServerOption) *Server {
	options := &ServerOptions{
		resolver: addr.NewLoopbackResolver(20000, 10000),
	}
	for _, o := range opts {
		o(options)
	}
	return &Server{
		manager: bind.NewManager(options.resolver, options.logger),
		logger:  options.logger,
	}
}

// Register binds cluster's topology to real listeners, per spec.md §4.5.
func (s *Server) Register(ctx context.Context, cluster *topology.Cluster, opts ...bind.RegisterOption) (*bind.BoundCluster, error) {
	return s.manager.Register(ctx, cluster, opts...)
}

// RegisterNode binds a single standalone node, per spec.md §4.5.
func (s *Server) RegisterNode(ctx context.Context, node *topology.Node, opts ...bind.RegisterOption) (*bind.BoundCluster, error) {
	return s.manager.RegisterNode(ctx, node, opts...)
}

// Unregister tears down the cluster registered under id.
func (s *Server) Unregister(id int64) error {
	return s.manager.Unregister(id)
}

// UnregisterAll tears down every currently registered cluster.
func (s *Server) UnregisterAll() {
	s.manager.UnregisterAll()
}

// Cluster returns the BoundCluster registered under id.
func (s *Server) Cluster(id int64) (*bind.BoundCluster, error) {
	bc, ok := s.manager.Registry.Get(id)
	if !ok {
		return nil, &bind.BadArgumentError{Reason: fmt.Sprintf("no cluster registered with id %d", id)}
	}
	return bc, nil
}

// Prime installs a canned response plan under scope, per spec.md §4.1/§4.2.
// It returns the assigned prime id, which Clear can later target
// indirectly (by kind) or which an operator can record for their own
// bookkeeping.
func (s *Server) Prime(scope store.Selector, matcher store.Matcher, then ...store.Action) uint64 {
	p := s.manager.Store.Add(scope, matcher, then, false)
	return p.ID
}

// Clear removes every user-installed prime visible under scope whose kind
// matches (or every kind, if kind is nil), returning the count removed.
func (s *Server) Clear(scope store.Selector, kind *store.Kind) int {
	return s.manager.Store.Clear(scope, kind)
}

// Reject configures scope's nodes to stop accepting/answering after the
// given number of further Startup frames, per spec.md §4.4. Reject applies
// to every node the scope currently contains; a scope that contains no node
// is a no-op and returns nil.
func (s *Server) Reject(scope store.Selector, after int64, how transport.RejectScope) error {
	return s.forEachNode(scope, func(n *transport.Node) { n.Reject(after, how) })
}

// Accept resets scope's nodes to the default accepting state, rebinding any
// listener a prior Reject unbound.
func (s *Server) Accept(ctx context.Context, scope store.Selector) error {
	return s.forEachNode(scope, func(n *transport.Node) {
		if err := n.Accept(ctx); err != nil && s.logger != nil {
			s.logger.Printf("simulacron: accept: %v", err)
		}
	})
}

// Stop is Reject(scope, 0, STOP): scope's nodes immediately unbind and
// disconnect every currently accepted connection.
func (s *Server) Stop(scope store.Selector) error {
	return s.Reject(scope, 0, transport.RejectStop)
}

// Start is Accept: it rebinds any listener a prior Stop/Reject unbound.
func (s *Server) Start(ctx context.Context, scope store.Selector) error {
	return s.Accept(ctx, scope)
}

// CloseConnections closes every currently accepted connection on scope's
// nodes without touching their listeners.
func (s *Server) CloseConnections(scope store.Selector, how store.DisconnectHow) error {
	return s.forEachNode(scope, func(n *transport.Node) { n.DisconnectAll(how) })
}

// CloseConnection closes a single connection identified by its remote
// address, wherever it is found among scope's nodes, per spec.md §6's
// close_connection(addr, how). It returns a BadArgumentError if no
// currently accepted connection has that remote address.
func (s *Server) CloseConnection(scope store.Selector, remoteAddr string, how store.DisconnectHow) error {
	found := false
	err := s.forEachNode(scope, func(n *transport.Node) {
		if n.CloseConnection(remoteAddr, how) {
			found = true
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return &bind.BadArgumentError{Reason: fmt.Sprintf("no connection from %s found", remoteAddr)}
	}
	return nil
}

// Connections reports the remote address of every currently accepted
// connection on scope's nodes, keyed by the node it belongs to.
func (s *Server) Connections(scope store.Selector) (map[topology.NodeRef][]string, error) {
	out := make(map[topology.NodeRef][]string)
	err := s.forEachNodeRef(scope, func(ref topology.NodeRef, n *transport.Node) {
		out[ref] = n.RemoteAddrs()
	})
	return out, err
}

// ActivityLog returns every entry logged for the cluster registered under
// id, per spec.md §3's append-only activity record.
func (s *Server) ActivityLog(clusterID int64) ([]transport.ActivityEntry, error) {
	bc, ok := s.manager.Registry.Get(clusterID)
	if !ok {
		return nil, &bind.BadArgumentError{Reason: fmt.Sprintf("no cluster registered with id %d", clusterID)}
	}
	return bc.Activity.Entries(), nil
}

// forEachNode runs fn against every node visible under scope, across every
// registered cluster. Selectors that pin a ClusterID but match no
// registered cluster are treated as matching zero nodes, not an error;
// spec.md's connection-control commands are no-ops against an empty scope.
func (s *Server) forEachNode(scope store.Selector, fn func(*transport.Node)) error {
	return s.forEachNodeRef(scope, func(_ topology.NodeRef, n *transport.Node) { fn(n) })
}

func (s *Server) forEachNodeRef(scope store.Selector, fn func(topology.NodeRef, *transport.Node)) error {
	for _, bc := range s.manager.Registry.All() {
		for _, ref := range bc.NodeRefs() {
			if !scope.Contains(ref) {
				continue
			}
			node, ok := bc.Node(ref)
			if !ok {
				continue
			}
			fn(ref, node)
		}
	}
	return nil
}
