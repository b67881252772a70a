package chord

import (
	"context"

	"chordmr/internal/ring"
)

// NodeRef identifies a peer on the ring: its identifier and the address
// other nodes dial to reach it.
type NodeRef struct {
	ID   ring.ID
	Addr string
}

// Equal reports whether two NodeRefs name the same ring member.
func (n NodeRef) Equal(o NodeRef) bool {
	return n.ID.Equal(o.ID) && n.Addr == o.Addr
}

// IsZero reports whether n is the zero value (used as "no peer").
func (n NodeRef) IsZero() bool {
	return n.Addr == "" && len(n.ID) == 0
}

// Transport is the boundary between the Chord protocol state machine and
// the network. It is implemented by internal/rpc for real nodes and can be
// stubbed in-process for tests, mirroring the armon/go-chord Transport
// interface: the ring logic never imports a gRPC type directly.
type Transport interface {
	// Ping checks liveness of the node at addr.
	Ping(ctx context.Context, addr string) error

	// GetPredecessor asks the node at addr for its predecessor. A zero
	// NodeRef means the peer currently has none.
	GetPredecessor(ctx context.Context, addr string) (NodeRef, error)

	// GetSuccessorList asks the node at addr for its successor list.
	GetSuccessorList(ctx context.Context, addr string) ([]NodeRef, error)

	// Notify tells the node at addr that self believes it may be its
	// predecessor.
	Notify(ctx context.Context, addr string, self NodeRef) error

	// FindSuccessor asks the node at addr to resolve target. The callee
	// answers from purely local state: if target falls in (self,
	// successor] it returns that successor with Final set; otherwise it
	// returns the closest preceding node it knows of as the next hop to
	// query. See Node.LookUp for the iterative-lookup Open Question
	// resolution this implements.
	FindSuccessor(ctx context.Context, addr string, target ring.ID) (FindSuccessorResult, error)
}

// FindSuccessorResult is one hop of an iterative findSuccessor lookup.
type FindSuccessorResult struct {
	Node  NodeRef
	Final bool
}
