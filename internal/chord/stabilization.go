package chord

import (
	"context"
	"time"

	"chordmr/internal/logger"
)

// StabilizationConfig carries the three periodic-task intervals from spec
// section 4.2 (STABILIZE_PERIOD, FIX_FINGERS_PERIOD) plus the predecessor
// liveness check interval.
type StabilizationConfig struct {
	StabilizePeriod        time.Duration
	FixFingersPeriod       time.Duration
	CheckPredecessorPeriod time.Duration
}

// DefaultStabilizationConfig matches the spec's documented defaults.
func DefaultStabilizationConfig() StabilizationConfig {
	return StabilizationConfig{
		StabilizePeriod:        500 * time.Millisecond,
		FixFingersPeriod:       100 * time.Millisecond,
		CheckPredecessorPeriod: time.Second,
	}
}

// StartStabilizers launches the three background maintenance goroutines.
// They run until Stop is called, grounded in the teacher's
// internal/node/chord/stabilization.go StartStabilizers.
func (n *Node) StartStabilizers(cfg StabilizationConfig) {
	go n.stabilizeLoop(cfg.StabilizePeriod)
	go n.fixFingersLoop(cfg.FixFingersPeriod)
	go n.checkPredecessorLoop(cfg.CheckPredecessorPeriod)
}

func (n *Node) stabilizeLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			n.stabilize()
		}
	}
}

func (n *Node) fixFingersLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	next := 0
	bits := n.rt.Space().Bits
	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			n.fixFinger(next)
			next = (next + 1) % bits
		}
	}
}

func (n *Node) checkPredecessorLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			n.checkPredecessor()
		}
	}
}

// stabilize asks the successor for its predecessor, adopts it if it falls
// strictly between self and the current successor, then notifies the
// (possibly new) successor and refreshes the successor list from it.
func (n *Node) stabilize() {
	succ := n.rt.FirstSuccessor()
	if succ.IsZero() || succ.Equal(n.rt.Self()) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.requestTimeout)
	x, err := n.trans.GetPredecessor(ctx, succ.Addr)
	cancel()
	if err != nil {
		n.lgr.Warn("stabilize: get predecessor failed", logger.F("successor", succ.Addr), logger.F("err", err.Error()))
		n.promoteSuccessor()
		return
	}

	if !x.IsZero() && x.ID.BetweenOpen(n.rt.Self().ID, succ.ID) {
		n.rt.SetSuccessor(0, x)
		succ = x
	}

	ctx, cancel = context.WithTimeout(context.Background(), n.requestTimeout)
	err = n.trans.Notify(ctx, succ.Addr, n.rt.Self())
	cancel()
	if err != nil {
		n.lgr.Warn("stabilize: notify failed", logger.F("successor", succ.Addr), logger.F("err", err.Error()))
		return
	}

	ctx, cancel = context.WithTimeout(context.Background(), n.requestTimeout)
	list, err := n.trans.GetSuccessorList(ctx, succ.Addr)
	cancel()
	if err != nil {
		return
	}
	newList := append([]NodeRef{succ}, list...)
	n.rt.SetSuccessorList(newList)
}

// promoteSuccessor is called when the current successor appears dead: it
// advances to the next entry in the successor list, the replication-aware
// failure handling described in spec section 4.2.
func (n *Node) promoteSuccessor() {
	next := n.rt.PromoteNextSuccessor()
	if next.IsZero() {
		n.lgr.Warn("stabilize: successor list exhausted, ring may be partitioned")
		return
	}
	n.lgr.Info("stabilize: promoted next successor after failure", logger.F("successor", next.Addr))
}

// fixFinger refreshes a single finger table entry by looking up the
// node responsible for self + 2^i.
func (n *Node) fixFinger(i int) {
	space := n.rt.Space()
	if i < 0 || i >= space.Bits {
		return
	}
	target, err := space.AddPow2(n.rt.Self().ID, i)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.requestTimeout)
	succ, err := n.LookUp(ctx, target)
	cancel()
	if err != nil {
		n.lgr.Debug("fix fingers: lookup failed", logger.F("finger", i), logger.F("err", err.Error()))
		return
	}
	n.rt.SetFinger(i, succ)
}

// checkPredecessor pings the known predecessor and clears it if
// unreachable, per spec section 4.2's failure-detection note.
func (n *Node) checkPredecessor() {
	pred := n.rt.GetPredecessor()
	if pred.IsZero() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.requestTimeout)
	err := n.trans.Ping(ctx, pred.Addr)
	cancel()
	if err != nil {
		n.lgr.Info("check predecessor: unreachable, clearing", logger.F("predecessor", pred.Addr))
		n.rt.ClearPredecessor()
	}
}
