package dht

import (
	"context"
	"errors"
	"testing"

	"chordmr/internal/chord"
	"chordmr/internal/ring"
)

// singleNodeTransport answers chord RPCs for a one-node ring: every
// lookup resolves to self.
type singleNodeTransport struct {
	self chord.NodeRef
}

func (t *singleNodeTransport) Ping(ctx context.Context, addr string) error { return nil }
func (t *singleNodeTransport) GetPredecessor(ctx context.Context, addr string) (chord.NodeRef, error) {
	return chord.NodeRef{}, nil
}
func (t *singleNodeTransport) GetSuccessorList(ctx context.Context, addr string) ([]chord.NodeRef, error) {
	return nil, nil
}
func (t *singleNodeTransport) Notify(ctx context.Context, addr string, self chord.NodeRef) error {
	return nil
}
func (t *singleNodeTransport) FindSuccessor(ctx context.Context, addr string, target ring.ID) (chord.FindSuccessorResult, error) {
	return chord.FindSuccessorResult{Node: t.self, Final: true}, nil
}

// noopDHTTransport fails every remote DHT RPC; used when the test never
// expects a forward (single-node ring).
type noopDHTTransport struct{}

func (noopDHTTransport) Put(ctx context.Context, addr string, rawKey []byte, value []byte, writer ring.ID) (Entry, error) {
	return Entry{}, errors.New("unexpected remote Put")
}
func (noopDHTTransport) Replicate(ctx context.Context, addr string, e Entry) error {
	return errors.New("unexpected remote Replicate")
}
func (noopDHTTransport) Get(ctx context.Context, addr string, rawKey []byte) (Entry, error) {
	return Entry{}, errors.New("unexpected remote Get")
}
func (noopDHTTransport) Delete(ctx context.Context, addr string, rawKey []byte) error {
	return errors.New("unexpected remote Delete")
}
func (noopDHTTransport) Keys(ctx context.Context, addr string, prefix []byte) ([][]byte, error) {
	return nil, errors.New("unexpected remote Keys")
}

func newSingleNodeDHT(t *testing.T) *Node {
	t.Helper()
	space, err := ring.NewSpace(32)
	if err != nil {
		t.Fatalf("NewSpace failed: %v", err)
	}
	self := chord.NodeRef{ID: space.IDFromString("node-a"), Addr: "a"}
	rt := chord.NewRoutingTable(self, space, 3)
	rt.SetSuccessor(0, self)

	cn := chord.New(rt, &singleNodeTransport{self: self})
	cfg := DefaultConfig()
	cfg.ReplicationFactor = 1 // no secondaries to worry about in this ring
	return NewNode(cn, noopDHTTransport{}, cfg, nil)
}

func TestPutGetRoundTrip(t *testing.T) {
	n := newSingleNodeDHT(t)

	if err := n.Put(context.Background(), []byte("hello"), []byte("world")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	e, err := n.Get(context.Background(), []byte("hello"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(e.Value) != "world" {
		t.Errorf("Get value = %q, expected %q", e.Value, "world")
	}
	if e.Version != 1 {
		t.Errorf("Version = %d, expected 1", e.Version)
	}
}

func TestPutIncrementsVersionOnOverwrite(t *testing.T) {
	n := newSingleNodeDHT(t)

	if err := n.Put(context.Background(), []byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Put v1 failed: %v", err)
	}
	if err := n.Put(context.Background(), []byte("k"), []byte("v2")); err != nil {
		t.Fatalf("Put v2 failed: %v", err)
	}
	e, err := n.Get(context.Background(), []byte("k"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if e.Version != 2 {
		t.Errorf("Version = %d, expected 2", e.Version)
	}
	if string(e.Value) != "v2" {
		t.Errorf("Value = %q, expected v2", e.Value)
	}
}

func TestGetMissingKey(t *testing.T) {
	n := newSingleNodeDHT(t)
	if _, err := n.Get(context.Background(), []byte("missing")); err == nil {
		t.Error("Get on a missing key should return an error")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	n := newSingleNodeDHT(t)
	_ = n.Put(context.Background(), []byte("k"), []byte("v"))

	if err := n.Delete(context.Background(), []byte("k")); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	if err := n.Delete(context.Background(), []byte("k")); err != nil {
		t.Fatalf("second Delete (on missing key) should not error: %v", err)
	}
	if _, err := n.Get(context.Background(), []byte("k")); err == nil {
		t.Error("Get after Delete should fail")
	}
}

func TestStoreCapacityExceeded(t *testing.T) {
	s := NewStore(1)
	a := Entry{Key: ring.ID{0x01}, RawKey: []byte("a"), Value: []byte("a"), Version: 1}
	b := Entry{Key: ring.ID{0x02}, RawKey: []byte("b"), Value: []byte("b"), Version: 1}

	if err := s.Put(a); err != nil {
		t.Fatalf("first Put should fit in capacity: %v", err)
	}
	if err := s.Put(b); err == nil {
		t.Error("second Put should be rejected: capacity exceeded")
	}
}

func TestEntrySupersedesTiebreak(t *testing.T) {
	low := Entry{Version: 3, WriterID: ring.ID{0x01}}
	high := Entry{Version: 3, WriterID: ring.ID{0x02}}

	if !low.Supersedes(high) {
		t.Error("higher WriterID should supersede on a version tie")
	}
	if high.Supersedes(low) {
		t.Error("lower WriterID should not supersede on a version tie")
	}
}

func TestStoreKeysPrefix(t *testing.T) {
	s := NewStore(0)
	_ = s.Put(Entry{Key: ring.ID{0xAA, 0x01}, RawKey: []byte("job/1/inter/aa/0"), Version: 1})
	_ = s.Put(Entry{Key: ring.ID{0xAA, 0x02}, RawKey: []byte("job/1/inter/aa/1"), Version: 1})
	_ = s.Put(Entry{Key: ring.ID{0xBB, 0x01}, RawKey: []byte("job/1/chunk/0"), Version: 1})

	keys := s.Keys([]byte("job/1/inter/"))
	if len(keys) != 2 {
		t.Errorf("Keys(job/1/inter/) returned %d keys, expected 2", len(keys))
	}
}

// successorListTransport answers GetSuccessorList per-address from a
// fixed map, and resolves every FindSuccessor/Between check via the
// caller's own routing table (not exercised directly in these tests).
type successorListTransport struct {
	successorsByAddr map[string][]chord.NodeRef
}

func (t *successorListTransport) Ping(ctx context.Context, addr string) error { return nil }
func (t *successorListTransport) GetPredecessor(ctx context.Context, addr string) (chord.NodeRef, error) {
	return chord.NodeRef{}, nil
}
func (t *successorListTransport) GetSuccessorList(ctx context.Context, addr string) ([]chord.NodeRef, error) {
	return t.successorsByAddr[addr], nil
}
func (t *successorListTransport) Notify(ctx context.Context, addr string, self chord.NodeRef) error {
	return nil
}
func (t *successorListTransport) FindSuccessor(ctx context.Context, addr string, target ring.ID) (chord.FindSuccessorResult, error) {
	return chord.FindSuccessorResult{}, errors.New("unexpected FindSuccessor")
}

// predecessorTransport is a dht.Transport fake that answers Keys/Get as
// if addr were a predecessor holding one key, used by the pull-on-resweep
// test; every other RPC fails the test if called.
type predecessorTransport struct {
	noopDHTTransport
	rawKey []byte
	entry  Entry
}

func (t *predecessorTransport) Keys(ctx context.Context, addr string, prefix []byte) ([][]byte, error) {
	return [][]byte{t.rawKey}, nil
}
func (t *predecessorTransport) Get(ctx context.Context, addr string, rawKey []byte) (Entry, error) {
	return t.entry, nil
}

// newTwoNodeDHT builds a Node whose successor/predecessor is a second
// NodeRef sharing self's own ring ID, so Between(self, owner) is the
// degenerate whole-ring case and LookUp always resolves to owner
// regardless of key. This isolates resweep's secondary-maintenance logic
// (which only needs *some* distinct owner to route to) from needing to
// predict SHA-1 hash placement.
func newTwoNodeDHT(t *testing.T, replicationFactor int, trans chord.Transport, dtrans Transport) (*Node, chord.NodeRef, chord.NodeRef) {
	t.Helper()
	space, err := ring.NewSpace(8)
	if err != nil {
		t.Fatalf("NewSpace failed: %v", err)
	}
	selfID := ring.ID{50}
	self := chord.NodeRef{ID: selfID, Addr: "self"}
	owner := chord.NodeRef{ID: selfID, Addr: "owner"}

	rt := chord.NewRoutingTable(self, space, 3)
	rt.SetSuccessor(0, owner)
	rt.SetPredecessor(owner)

	cn := chord.New(rt, trans)
	cfg := DefaultConfig()
	cfg.ReplicationFactor = replicationFactor
	return NewNode(cn, dtrans, cfg, nil), self, owner
}

func TestResweepDropsStaleSecondary(t *testing.T) {
	trans := &successorListTransport{successorsByAddr: map[string][]chord.NodeRef{
		// owner's successor list no longer includes self.
		"owner": {{ID: ring.ID{99}, Addr: "someone-else"}},
	}}
	n, _, owner := newTwoNodeDHT(t, 3, trans, noopDHTTransport{})

	staleKey := ring.ID{7}
	_ = n.local.Put(Entry{Key: staleKey, RawKey: []byte("stale"), Value: []byte("v"), Version: 1, Role: RoleSecondary})

	n.resweep()

	if _, err := n.local.Get(staleKey); err == nil {
		t.Errorf("expected stale secondary entry to be dropped once self is outside %s's replica set", owner.Addr)
	}
}

func TestResweepKeepsValidSecondary(t *testing.T) {
	selfID := ring.ID{50}
	trans := &successorListTransport{successorsByAddr: map[string][]chord.NodeRef{
		"owner": {{ID: selfID, Addr: "self"}},
	}}
	n, _, _ := newTwoNodeDHT(t, 3, trans, noopDHTTransport{})

	key := ring.ID{7}
	_ = n.local.Put(Entry{Key: key, RawKey: []byte("kept"), Value: []byte("v"), Version: 1, Role: RoleSecondary})

	n.resweep()

	e, err := n.local.Get(key)
	if err != nil {
		t.Fatalf("valid secondary entry should not be dropped: %v", err)
	}
	if e.Role != RoleSecondary {
		t.Errorf("Role = %v, expected RoleSecondary", e.Role)
	}
}

func TestResweepPullsKeysFromPredecessor(t *testing.T) {
	selfID := ring.ID{50}
	chordTrans := &successorListTransport{successorsByAddr: map[string][]chord.NodeRef{
		"owner": {{ID: selfID, Addr: "self"}},
	}}
	rawKey := []byte("predecessor-owned-key")
	space, err := ring.NewSpace(8)
	if err != nil {
		t.Fatalf("NewSpace failed: %v", err)
	}
	wantKey := space.IDFromBytes(rawKey)
	dtrans := &predecessorTransport{
		rawKey: rawKey,
		entry:  Entry{Key: wantKey, RawKey: rawKey, Value: []byte("pulled"), Version: 1, WriterID: ring.ID{50}},
	}
	n, _, _ := newTwoNodeDHT(t, 3, chordTrans, dtrans)

	n.resweep()

	e, err := n.local.Get(wantKey)
	if err != nil {
		t.Fatalf("expected key pulled from predecessor to be stored locally: %v", err)
	}
	if string(e.Value) != "pulled" {
		t.Errorf("Value = %q, expected %q", e.Value, "pulled")
	}
	if e.Role != RoleSecondary {
		t.Errorf("Role = %v, expected RoleSecondary for a pulled replica", e.Role)
	}
}

func TestScatterKeysDeduplicates(t *testing.T) {
	n := newSingleNodeDHT(t)
	_ = n.local.Put(Entry{Key: ring.ID{0x01}, RawKey: []byte("job/1/inter/a"), Version: 1})

	self := n.Self()
	// Two member entries pointing at the same self node simulate
	// overlapping replica membership reporting the same key twice.
	keys, err := n.ScatterKeys(context.Background(), []byte("job/1/inter/"), []chord.NodeRef{self, self})
	if err != nil {
		t.Fatalf("ScatterKeys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("ScatterKeys returned %d keys, expected 1 deduplicated entry", len(keys))
	}
}
