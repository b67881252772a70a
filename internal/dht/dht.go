package dht

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chordmr/internal/chord"
	"chordmr/internal/errs"
	"chordmr/internal/logger"
	"chordmr/internal/ring"
)

// Transport carries DHT-level RPCs (distinct from chord.Transport's
// membership RPCs) to a peer identified by address. Every call carries the
// caller's raw key bytes rather than a pre-hashed ring.ID: the hash
// function is pure and cheap, so each hop re-derives ring placement
// locally instead of trusting a value computed elsewhere on the wire.
type Transport interface {
	// Put forwards a write to the node that owns rawKey; the callee
	// assigns the next version number and returns the entry it stored.
	Put(ctx context.Context, addr string, rawKey []byte, value []byte, writer ring.ID) (Entry, error)
	// Replicate pushes an already-versioned entry to a secondary, with no
	// version negotiation (the primary has already decided it wins).
	Replicate(ctx context.Context, addr string, e Entry) error
	Get(ctx context.Context, addr string, rawKey []byte) (Entry, error)
	Delete(ctx context.Context, addr string, rawKey []byte) error
	Keys(ctx context.Context, addr string, prefix []byte) ([][]byte, error)
}

// Node is the DHT layer for one ring member: a Chord node plus the
// versioned local Store and the replication fan-out across its successor
// list, per spec section 4.3.
type Node struct {
	chord *chord.Node
	local *Store
	trans Transport
	lgr   logger.Logger

	replicationFactor int
	stop              chan struct{}
}

// Config carries the DHT-layer tunables from spec section 4.3.
type Config struct {
	ReplicationFactor int // R: primary + R-1 secondaries
	MaxLocalEntries   int
	ReplicationPeriod time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReplicationFactor: 5,
		MaxLocalEntries:   0,
		ReplicationPeriod: 2 * time.Second,
	}
}

func NewNode(cn *chord.Node, trans Transport, cfg Config, lgr logger.Logger) *Node {
	if lgr == nil {
		lgr = logger.NopLogger{}
	}
	if cfg.ReplicationFactor < 1 {
		cfg.ReplicationFactor = 1
	}
	return &Node{
		chord:             cn,
		local:             NewStore(cfg.MaxLocalEntries),
		trans:             trans,
		lgr:               lgr,
		replicationFactor: cfg.ReplicationFactor,
		stop:              make(chan struct{}),
	}
}

func (n *Node) Self() chord.NodeRef   { return n.chord.Self() }
func (n *Node) Store() *Store         { return n.local }
func (n *Node) Space() ring.Space     { return n.chord.Space() }
func (n *Node) Chord() *chord.Node    { return n.chord }

// Put computes id(rawKey), resolves its owner, and writes value there, per
// spec section 4.3's put(key, value). If this node owns the key it assigns
// the version and fans out to its successors; otherwise the write is
// forwarded once.
func (n *Node) Put(ctx context.Context, rawKey []byte, value []byte) error {
	id := n.chord.Space().IDFromBytes(rawKey)
	owner, err := n.chord.LookUp(ctx, id)
	if err != nil {
		return fmt.Errorf("dht: put: %w", err)
	}
	self := n.chord.Self()
	if owner.Equal(self) {
		return n.writeLocalAndReplicate(ctx, id, rawKey, value, self.ID)
	}
	_, err = n.trans.Put(ctx, owner.Addr, rawKey, value, self.ID)
	if err != nil {
		return fmt.Errorf("dht: put forward to %s: %w", owner.Addr, err)
	}
	return nil
}

func (n *Node) writeLocalAndReplicate(ctx context.Context, id ring.ID, rawKey []byte, value []byte, writer ring.ID) error {
	existing, err := n.local.Get(id)
	version := uint64(1)
	if err == nil {
		version = existing.Version + 1
	}
	entry := Entry{Key: id, RawKey: rawKey, Value: value, Version: version, WriterID: writer, UpdatedAt: time.Now(), Role: RolePrimary}
	if err := n.local.Put(entry); err != nil {
		return err
	}
	n.replicate(ctx, entry)
	return nil
}

// replicate pushes entry to the first R-1 successors, best-effort: a
// failed push never fails the write (the primary already has it). Any
// shortfall below R-1 successful pushes is only logged as an
// under-replicated write; the caller already received success from the
// primary write.
func (n *Node) replicate(ctx context.Context, entry Entry) {
	if n.replicationFactor <= 1 {
		return
	}
	successors := n.chord.RoutingTable().SuccessorList()
	want := n.replicationFactor - 1
	ok := 0
	for i := 0; i < len(successors) && i < want; i++ {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := n.trans.Replicate(cctx, successors[i].Addr, entry)
		cancel()
		if err != nil {
			n.lgr.Warn("dht: replicate failed", logger.F("peer", successors[i].Addr), logger.F("err", err.Error()))
			continue
		}
		ok++
	}
	if ok < want {
		n.lgr.Warn("dht: under-replicated write", logger.F("key", entry.Key.ToHexString(true)), logger.F("replicas", ok), logger.F("wanted", want))
	}
}

// Get resolves rawKey's owner and reads its value. On primary failure it
// falls back to each replica in successor order, per spec section 4.3;
// NotFound is only authoritative once every reachable replica has
// answered without the key.
func (n *Node) Get(ctx context.Context, rawKey []byte) (Entry, error) {
	id := n.chord.Space().IDFromBytes(rawKey)
	owner, err := n.chord.LookUp(ctx, id)
	if err != nil {
		return Entry{}, fmt.Errorf("dht: get: %w", err)
	}
	if owner.Equal(n.chord.Self()) {
		return n.local.Get(id)
	}
	e, err := n.trans.Get(ctx, owner.Addr, rawKey)
	if err == nil {
		return e, nil
	}
	return n.getFromReplicas(ctx, owner, rawKey, err)
}

// getFromReplicas walks the owner's live successors (the replica set)
// after a primary RPC failure. Returns ErrKeyNotFound only if at least one
// replica answered authoritatively without the key and none had it; if no
// replica responded at all it returns ErrUnavailable.
func (n *Node) getFromReplicas(ctx context.Context, owner chord.NodeRef, rawKey []byte, primaryErr error) (Entry, error) {
	successors := n.chord.RoutingTable().SuccessorList()
	answered := false
	for i := 0; i < len(successors) && i < n.replicationFactor-1; i++ {
		peer := successors[i]
		if peer.Equal(owner) {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		e, err := n.trans.Get(cctx, peer.Addr, rawKey)
		cancel()
		if err == nil {
			return e, nil
		}
		if errors.Is(err, errs.ErrKeyNotFound) {
			answered = true
		}
	}
	if answered {
		return Entry{}, errs.ErrKeyNotFound
	}
	return Entry{}, fmt.Errorf("dht: get %s: primary %s unreachable, no replica answered: %w", primaryErr, owner.Addr, errs.ErrUnavailable)
}

// Delete resolves rawKey's owner and removes it there and on its replicas.
func (n *Node) Delete(ctx context.Context, rawKey []byte) error {
	id := n.chord.Space().IDFromBytes(rawKey)
	owner, err := n.chord.LookUp(ctx, id)
	if err != nil {
		return fmt.Errorf("dht: delete: %w", err)
	}
	if !owner.Equal(n.chord.Self()) {
		if err := n.trans.Delete(ctx, owner.Addr, rawKey); err != nil {
			return fmt.Errorf("dht: delete at %s: %w", owner.Addr, err)
		}
		return nil
	}
	_ = n.local.Delete(id)
	successors := n.chord.RoutingTable().SuccessorList()
	want := n.replicationFactor - 1
	for i := 0; i < len(successors) && i < want; i++ {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := n.trans.Delete(cctx, successors[i].Addr, rawKey); err != nil {
			n.lgr.Warn("dht: replica delete failed", logger.F("peer", successors[i].Addr), logger.F("err", err.Error()))
		}
		cancel()
	}
	return nil
}

// ReceiveReplica installs a replica pushed by a primary via the gRPC
// layer's Replicate handler; it bypasses the owner lookup, but an entry
// that does not supersede the one already stored is still rejected with
// errs.ErrVersionConflict.
func (n *Node) ReceiveReplica(e Entry) error {
	_, err := n.local.Get(e.Key)
	if err != nil {
		return n.forceStore(e)
	}
	return n.forceStore(e)
}

func (n *Node) forceStore(e Entry) error {
	n.local.mu.Lock()
	defer n.local.mu.Unlock()
	existing, ok := n.local.entries[string(e.Key)]
	if ok && !existing.Supersedes(e) {
		return errs.ErrVersionConflict
	}
	n.local.entries[string(e.Key)] = e
	return nil
}

// ScatterKeys queries every member's local store for keys under prefix,
// the scatter-gather keys(prefix) used by reduce task planning (spec
// section 4.5). Unreachable members are skipped rather than failing the
// whole scatter. Overlapping replicas can report the same raw key more
// than once, so the result is deduplicated before returning, per spec's
// "callers must tolerate duplicates... and deduplicate by key".
func (n *Node) ScatterKeys(ctx context.Context, prefix []byte, members []chord.NodeRef) ([][]byte, error) {
	seen := make(map[string]struct{})
	var out [][]byte
	self := n.chord.Self()
	add := func(keys [][]byte) {
		for _, k := range keys {
			if _, ok := seen[string(k)]; ok {
				continue
			}
			seen[string(k)] = struct{}{}
			out = append(out, k)
		}
	}
	for _, m := range members {
		if m.Equal(self) {
			add(n.local.Keys(prefix))
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		keys, err := n.trans.Keys(cctx, m.Addr, prefix)
		cancel()
		if err != nil {
			n.lgr.Warn("dht: scatter keys failed", logger.F("peer", m.Addr), logger.F("err", err.Error()))
			continue
		}
		add(keys)
	}
	return out, nil
}

// StartReplicationSweep periodically re-pushes locally-owned entries to
// the current successor list, so replicas heal after ring membership
// changes without waiting for the next write to each key.
func (n *Node) StartReplicationSweep(period time.Duration) {
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-n.stop:
				return
			case <-ticker.C:
				n.resweep()
			}
		}
	}()
}

// resweep implements spec section 3's three replica-maintenance
// behaviors that must run on every successor-list change: push
// primary-owned keys to the current replica set, drop locally-held
// secondary keys whose primary has moved outside this node's replica
// range, and pull keys from the predecessor that this node should now
// hold as a secondary.
func (n *Node) resweep() {
	ctx := context.Background()
	self := n.chord.Self()

	for _, e := range n.local.All() {
		owner, err := n.chord.LookUp(ctx, e.Key)
		if err != nil {
			continue
		}
		if owner.Equal(self) {
			// (1) still primary: re-push to the current successor list so
			// replicas heal after membership changes.
			if e.Role != RolePrimary {
				n.local.SetRole(e.Key, RolePrimary)
				e.Role = RolePrimary
			}
			n.replicate(ctx, e)
			continue
		}

		// (2) held as a secondary: drop it once self is no longer within
		// owner's first replicationFactor-1 successors.
		inSet, err := n.isInReplicaSet(ctx, owner, self)
		if err != nil {
			// Owner unreachable: keep the entry rather than discard a
			// replica on a transient failure.
			continue
		}
		if !inSet {
			_ = n.local.Delete(e.Key)
			n.lgr.Debug("dht: dropped stale secondary", logger.F("key", e.Key.ToHexString(true)), logger.F("owner", owner.Addr))
			continue
		}
		if e.Role != RoleSecondary {
			n.local.SetRole(e.Key, RoleSecondary)
		}
	}

	n.pullFromPredecessor(ctx)
}

// isInReplicaSet reports whether self is among owner's first
// replicationFactor-1 successors, i.e. still a legitimate secondary for
// whatever owner holds as primary.
func (n *Node) isInReplicaSet(ctx context.Context, owner, self chord.NodeRef) (bool, error) {
	if n.replicationFactor <= 1 {
		return false, nil
	}
	successors, err := n.chord.RemoteSuccessorList(ctx, owner.Addr)
	if err != nil {
		return false, err
	}
	want := n.replicationFactor - 1
	for i := 0; i < len(successors) && i < want; i++ {
		if successors[i].Equal(self) {
			return true, nil
		}
	}
	return false, nil
}

// pullFromPredecessor fetches any key the immediate predecessor holds as
// primary that self should now replicate but doesn't yet have locally,
// so a node that just joined (or whose predecessor just changed) picks
// up its secondary set without waiting for the predecessor's next write.
func (n *Node) pullFromPredecessor(ctx context.Context) {
	if n.replicationFactor <= 1 {
		return
	}
	pred := n.chord.RoutingTable().GetPredecessor()
	self := n.chord.Self()
	if pred.IsZero() || pred.Equal(self) {
		return
	}

	keys, err := n.trans.Keys(ctx, pred.Addr, nil)
	if err != nil {
		n.lgr.Warn("dht: pull from predecessor: list keys failed", logger.F("peer", pred.Addr), logger.F("err", err.Error()))
		return
	}
	for _, rawKey := range keys {
		id := n.chord.Space().IDFromBytes(rawKey)
		if _, err := n.local.Get(id); err == nil {
			continue // already held locally, primary or secondary
		}
		owner, err := n.chord.LookUp(ctx, id)
		if err != nil || !owner.Equal(pred) {
			continue // predecessor only held this as a secondary itself
		}
		inSet, err := n.isInReplicaSet(ctx, owner, self)
		if err != nil || !inSet {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		e, err := n.trans.Get(cctx, pred.Addr, rawKey)
		cancel()
		if err != nil {
			continue
		}
		e.Role = RoleSecondary
		if err := n.forceStore(e); err != nil {
			n.lgr.Warn("dht: pull from predecessor: store failed", logger.F("key", e.Key.ToHexString(true)), logger.F("err", err.Error()))
		}
	}
}

func (n *Node) Stop() {
	close(n.stop)
}
