package chord

import (
	"sync"

	"chordmr/internal/ring"
)

// RoutingTable holds one node's view of the ring: its successor list,
// finger table, and predecessor pointer, all guarded by a single RWMutex
// so reads (routing, the common case) don't block each other.
type RoutingTable struct {
	self  NodeRef
	space ring.Space

	mu            sync.RWMutex
	successorList []NodeRef // successorList[0] is the immediate successor
	fingers       []NodeRef // fingers[i] targets self + 2^i (mod 2^Bits)
	predecessor   NodeRef
}

// NewRoutingTable builds a routing table for self. succListSize is the
// number of successors to track for fault tolerance (spec's S, S >= R).
func NewRoutingTable(self NodeRef, space ring.Space, succListSize int) *RoutingTable {
	return &RoutingTable{
		self:          self,
		space:         space,
		successorList: make([]NodeRef, succListSize),
		fingers:       make([]NodeRef, space.Bits),
	}
}

func (rt *RoutingTable) Self() NodeRef   { return rt.self }
func (rt *RoutingTable) Space() ring.Space { return rt.space }

// SetSuccessor sets successorList[i]. Index 0 also updates finger[0],
// since the first finger is always the immediate successor.
func (rt *RoutingTable) SetSuccessor(i int, node NodeRef) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if i < 0 || i >= len(rt.successorList) {
		return
	}
	rt.successorList[i] = node
	if i == 0 {
		rt.fingers[0] = node
	}
}

// SetSuccessorList replaces the whole list at once, truncating or
// zero-padding to the configured size.
func (rt *RoutingTable) SetSuccessorList(nodes []NodeRef) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	n := copy(rt.successorList, nodes)
	for i := n; i < len(rt.successorList); i++ {
		rt.successorList[i] = NodeRef{}
	}
	if len(rt.successorList) > 0 {
		rt.fingers[0] = rt.successorList[0]
	}
}

func (rt *RoutingTable) FirstSuccessor() NodeRef {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if len(rt.successorList) == 0 {
		return NodeRef{}
	}
	return rt.successorList[0]
}

// SuccessorList returns a copy of the live (non-zero) successors, closest
// first.
func (rt *RoutingTable) SuccessorList() []NodeRef {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]NodeRef, 0, len(rt.successorList))
	for _, s := range rt.successorList {
		if !s.IsZero() {
			out = append(out, s)
		}
	}
	return out
}

// PromoteNextSuccessor drops a dead successorList[0] and shifts the rest
// up by one, returning the new first successor (zero if none remain).
func (rt *RoutingTable) PromoteNextSuccessor() NodeRef {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	copy(rt.successorList, rt.successorList[1:])
	rt.successorList[len(rt.successorList)-1] = NodeRef{}
	if len(rt.successorList) > 0 {
		rt.fingers[0] = rt.successorList[0]
		return rt.successorList[0]
	}
	return NodeRef{}
}

func (rt *RoutingTable) GetPredecessor() NodeRef {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.predecessor
}

func (rt *RoutingTable) SetPredecessor(node NodeRef) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.predecessor = node
}

func (rt *RoutingTable) ClearPredecessor() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.predecessor = NodeRef{}
}

func (rt *RoutingTable) SetFinger(i int, node NodeRef) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if i >= 0 && i < len(rt.fingers) {
		rt.fingers[i] = node
	}
}

func (rt *RoutingTable) GetFinger(i int) NodeRef {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if i >= 0 && i < len(rt.fingers) {
		return rt.fingers[i]
	}
	return NodeRef{}
}

// FingerList returns all populated finger table entries, for diagnostics.
func (rt *RoutingTable) FingerList() []NodeRef {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]NodeRef, 0, len(rt.fingers))
	for _, f := range rt.fingers {
		if !f.IsZero() {
			out = append(out, f)
		}
	}
	return out
}

// ClosestPrecedingNode scans the finger table furthest-to-closest and
// returns the farthest finger that strictly precedes id. If no finger
// qualifies it returns the first successor-list entry that does, and falls
// back to self if none of those qualifies either.
func (rt *RoutingTable) ClosestPrecedingNode(id ring.ID) NodeRef {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	for i := len(rt.fingers) - 1; i >= 0; i-- {
		f := rt.fingers[i]
		if !f.IsZero() && ring.ID(f.ID).BetweenOpen(rt.self.ID, id) {
			return f
		}
	}
	for _, s := range rt.successorList {
		if !s.IsZero() && ring.ID(s.ID).BetweenOpen(rt.self.ID, id) {
			return s
		}
	}
	return rt.self
}
