// Package chord implements Chord ring membership and routing: the
// identifier-space successor/predecessor protocol, finger table
// maintenance, and the iterative lookup used to resolve a key to the node
// responsible for it. It has no notion of DHT values or MapReduce jobs —
// those are built on top of it in internal/dht and internal/coordinator.
package chord

import (
	"context"
	"fmt"
	"time"

	"chordmr/internal/errs"
	"chordmr/internal/logger"
	"chordmr/internal/ring"
)

// Node is one member of the Chord ring: its routing table plus the
// protocol operations (Join, LookUp, Notify, stabilization) that keep the
// table correct as peers come and go.
type Node struct {
	lgr   logger.Logger
	rt    *RoutingTable
	trans Transport

	requestTimeout time.Duration
	stop           chan struct{}
}

// Option configures a Node at construction time, mirroring the teacher's
// functional-options pattern (internal/node/chord/option.go).
type Option func(*Node)

func WithLogger(l logger.Logger) Option {
	return func(n *Node) { n.lgr = l }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(n *Node) { n.requestTimeout = d }
}

// New builds a Node. rt must already be populated with self's identity;
// trans carries RPCs to peers (internal/rpc.Client in production, an
// in-memory fake in tests).
func New(rt *RoutingTable, trans Transport, opts ...Option) *Node {
	n := &Node{
		lgr:            logger.NopLogger{},
		rt:             rt,
		trans:          trans,
		requestTimeout: 500 * time.Millisecond,
		stop:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Node) Self() NodeRef           { return n.rt.Self() }
func (n *Node) Space() ring.Space       { return n.rt.Space() }
func (n *Node) RoutingTable() *RoutingTable { return n.rt }

// CreateNewDHT initializes a brand-new ring containing only self, per
// spec section 4.2 ("a node may create a new ring").
func (n *Node) CreateNewDHT() {
	self := n.rt.Self()
	n.rt.SetSuccessorList(append([]NodeRef{self}, n.rt.SuccessorList()...))
	n.rt.ClearPredecessor()
	n.lgr.Info("created new ring", logger.F("self", self.Addr))
}

// Join contacts bootstrap peers in turn until one resolves self's
// successor, grounded in the teacher's Join (internal/node/chord/node.go).
func (n *Node) Join(ctx context.Context, peers []string) error {
	if len(peers) == 0 {
		return fmt.Errorf("chord: join: no bootstrap peers provided")
	}
	self := n.rt.Self()

	var succ NodeRef
	var lastErr error
	for _, addr := range peers {
		if addr == self.Addr {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, n.requestTimeout)
		got, err := n.lookupVia(cctx, addr, self.ID)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("join: bootstrap %s: %w", addr, err)
			continue
		}
		if got.ID.Equal(self.ID) {
			return fmt.Errorf("chord: join: a node with this id already exists")
		}
		succ = got
		n.lgr.Info("join: found successor", logger.F("bootstrap", addr), logger.F("successor", succ.Addr))
		break
	}
	if succ.IsZero() {
		if lastErr == nil {
			lastErr = errs.ErrRingEmpty
		}
		return fmt.Errorf("chord: join: all bootstrap peers failed: %w", lastErr)
	}

	n.rt.SetSuccessor(0, succ)
	n.lgr.Info("join: completed", logger.F("self", self.Addr), logger.F("successor", succ.Addr))
	return nil
}

// Leave sends this node's predecessor to the successor as a Notify
// candidate; the predecessor itself is not contacted. The successor adopts
// the candidate only under Notify's usual rule, so otherwise the gap is
// closed by stabilization and checkPredecessor.
func (n *Node) Leave(ctx context.Context) error {
	self := n.rt.Self()
	pred := n.rt.GetPredecessor()
	succ := n.rt.FirstSuccessor()

	if !succ.IsZero() && !succ.Equal(self) {
		cctx, cancel := context.WithTimeout(ctx, n.requestTimeout)
		_ = n.trans.Notify(cctx, succ.Addr, pred)
		cancel()
	}
	n.lgr.Info("leave: notified peers", logger.F("self", self.Addr))
	return nil
}

// Stop halts the node's background stabilization goroutines. Safe to call
// once; a second call panics by closing an already-closed channel, same
// as the teacher's one-shot Stop.
func (n *Node) Stop() {
	close(n.stop)
}

// LookUp resolves id to the node responsible for it, implementing the
// iterative-lookup Open Question resolution: the originator re-issues
// FindSuccessor itself against each returned hop rather than trusting a
// peer to forward on its behalf, capped at Bits hops to bound latency and
// catch routing loops.
func (n *Node) LookUp(ctx context.Context, id ring.ID) (NodeRef, error) {
	self := n.rt.Self()
	succ := n.rt.FirstSuccessor()
	if succ.IsZero() {
		return NodeRef{}, errs.ErrRingEmpty
	}
	if id.Between(self.ID, succ.ID) {
		return succ, nil
	}

	hop := n.rt.ClosestPrecedingNode(id)
	if hop.Equal(self) {
		return succ, nil
	}
	return n.lookupVia(ctx, hop.Addr, id)
}

// lookupVia runs the iterative hop chain starting at addr.
func (n *Node) lookupVia(ctx context.Context, addr string, id ring.ID) (NodeRef, error) {
	maxHops := n.rt.Space().Bits
	if maxHops <= 0 {
		maxHops = 1
	}
	visited := addr
	for i := 0; i < maxHops; i++ {
		cctx, cancel := context.WithTimeout(ctx, n.requestTimeout)
		res, err := n.trans.FindSuccessor(cctx, visited, id)
		cancel()
		if err != nil {
			return NodeRef{}, fmt.Errorf("chord: lookup via %s: %w", visited, err)
		}
		if res.Final {
			return res.Node, nil
		}
		if res.Node.Addr == visited {
			// The peer has nothing closer than itself; treat it as the
			// answer rather than spinning.
			return res.Node, nil
		}
		visited = res.Node.Addr
	}
	return NodeRef{}, fmt.Errorf("chord: lookup exceeded %d hops: %w", maxHops, errs.ErrRpcTimeout)
}

// HandleFindSuccessor answers a peer's FindSuccessor RPC purely from local
// state, the server-side half of the iterative protocol described above.
// internal/rpc wires this into the gRPC service surface.
func (n *Node) HandleFindSuccessor(target ring.ID) FindSuccessorResult {
	self := n.rt.Self()
	succ := n.rt.FirstSuccessor()
	if !succ.IsZero() && target.Between(self.ID, succ.ID) {
		return FindSuccessorResult{Node: succ, Final: true}
	}
	return FindSuccessorResult{Node: n.rt.ClosestPrecedingNode(target), Final: false}
}

// RemoteSuccessorList asks the node at addr for its successor list, so a
// caller can learn its own standing in another node's replica set (e.g.
// internal/dht deciding whether it is still one of owner's first R-1
// successors) without the Transport interface growing a DHT-specific
// method.
func (n *Node) RemoteSuccessorList(ctx context.Context, addr string) ([]NodeRef, error) {
	cctx, cancel := context.WithTimeout(ctx, n.requestTimeout)
	defer cancel()
	return n.trans.GetSuccessorList(cctx, addr)
}

// Notify is called (locally, by the gRPC handler) when a peer believes it
// may be our predecessor.
func (n *Node) Notify(candidate NodeRef) {
	if candidate.IsZero() {
		return
	}
	self := n.rt.Self()
	pred := n.rt.GetPredecessor()

	if pred.IsZero() {
		n.rt.SetPredecessor(candidate)
		n.lgr.Info("notify: set predecessor", logger.F("predecessor", candidate.Addr))
		return
	}
	if candidate.ID.BetweenOpen(pred.ID, self.ID) {
		n.lgr.Info("notify: updated predecessor", logger.F("old", pred.Addr), logger.F("new", candidate.Addr))
		n.rt.SetPredecessor(candidate)
	}
}
