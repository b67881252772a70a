package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"chordmr/internal/chord"
	"chordmr/internal/dht"
	"chordmr/internal/ring"
)

// fakeExecutor is an in-memory TaskExecutor double, just enough to
// exercise RunMap/RunReduce/TaskStatus across a real network connection.
type fakeExecutor struct {
	mapped   []RunMapRequest
	reduced  []RunReduceRequest
	statuses map[string]string
}

func (f *fakeExecutor) ExecuteMap(ctx context.Context, req RunMapRequest) error {
	f.mapped = append(f.mapped, req)
	return nil
}

func (f *fakeExecutor) ExecuteReduce(ctx context.Context, req RunReduceRequest) error {
	f.reduced = append(f.reduced, req)
	return nil
}

func (f *fakeExecutor) TaskStatus(ctx context.Context, jobID string, taskIndex int) (string, error) {
	return f.statuses[jobID], nil
}

// startTestServer wires a single-node chord+dht stack behind a real gRPC
// listener on 127.0.0.1:0, returning the listener's address and a
// shutdown func.
func startTestServer(t *testing.T) (addr string, dn *dht.Node, exec *fakeExecutor, stop func()) {
	t.Helper()

	space, err := ring.NewSpace(32)
	if err != nil {
		t.Fatalf("NewSpace failed: %v", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	selfAddr := lis.Addr().String()
	self := chord.NodeRef{ID: space.IDFromString(selfAddr), Addr: selfAddr}

	rt := chord.NewRoutingTable(self, space, 3)
	rt.SetSuccessor(0, self)
	cn := chord.New(rt, noopChordTransport{})

	dhtCfg := dht.DefaultConfig()
	dhtCfg.ReplicationFactor = 1
	dn = dht.NewNode(cn, noopDHTTransportForTest{}, dhtCfg, nil)

	exec = &fakeExecutor{statuses: map[string]string{"job-1": "running"}}
	srv := NewServer(cn, dn, exec, nil)

	go func() { _ = srv.Serve(lis) }()
	// Give the listener goroutine a moment to start accepting.
	time.Sleep(20 * time.Millisecond)

	return selfAddr, dn, exec, srv.ForceStop
}

type noopChordTransport struct{}

func (noopChordTransport) Ping(ctx context.Context, addr string) error { return nil }
func (noopChordTransport) GetPredecessor(ctx context.Context, addr string) (chord.NodeRef, error) {
	return chord.NodeRef{}, nil
}
func (noopChordTransport) GetSuccessorList(ctx context.Context, addr string) ([]chord.NodeRef, error) {
	return nil, nil
}
func (noopChordTransport) Notify(ctx context.Context, addr string, self chord.NodeRef) error {
	return nil
}
func (noopChordTransport) FindSuccessor(ctx context.Context, addr string, target ring.ID) (chord.FindSuccessorResult, error) {
	return chord.FindSuccessorResult{}, nil
}

type noopDHTTransportForTest struct{}

func (noopDHTTransportForTest) Put(ctx context.Context, addr string, rawKey, value []byte, writer ring.ID) (dht.Entry, error) {
	panic("unexpected remote Put in single-node test")
}
func (noopDHTTransportForTest) Replicate(ctx context.Context, addr string, e dht.Entry) error {
	panic("unexpected remote Replicate in single-node test")
}
func (noopDHTTransportForTest) Get(ctx context.Context, addr string, rawKey []byte) (dht.Entry, error) {
	panic("unexpected remote Get in single-node test")
}
func (noopDHTTransportForTest) Delete(ctx context.Context, addr string, rawKey []byte) error {
	panic("unexpected remote Delete in single-node test")
}
func (noopDHTTransportForTest) Keys(ctx context.Context, addr string, prefix []byte) ([][]byte, error) {
	return nil, nil
}

func TestClientPutGetRoundTrip(t *testing.T) {
	addr, _, _, stop := startTestServer(t)
	defer stop()

	pool := NewPool()
	defer pool.Close()
	client := NewClient(pool, ring.ID([]byte("caller")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rawKey := []byte("greeting")
	if _, err := client.Put(ctx, addr, rawKey, []byte("hello"), ring.ID([]byte("caller"))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entry, err := client.Get(ctx, addr, rawKey)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(entry.Value) != "hello" {
		t.Errorf("Get value = %q, want %q", entry.Value, "hello")
	}
}

func TestClientGetMissingKeyReturnsNotFound(t *testing.T) {
	addr, _, _, stop := startTestServer(t)
	defer stop()

	pool := NewPool()
	defer pool.Close()
	client := NewClient(pool, ring.ID([]byte("caller")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Get(ctx, addr, []byte("does-not-exist")); err == nil {
		t.Error("Get on a missing key should return an error")
	}
}

func TestClientPingAndTaskRPCs(t *testing.T) {
	addr, _, exec, stop := startTestServer(t)
	defer stop()

	pool := NewPool()
	defer pool.Close()
	client := NewClient(pool, ring.ID([]byte("caller")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx, addr); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	if err := client.RunMap(ctx, addr, RunMapRequest{JobID: "job-1", TaskIndex: 0}); err != nil {
		t.Fatalf("RunMap failed: %v", err)
	}
	if len(exec.mapped) != 1 || exec.mapped[0].JobID != "job-1" {
		t.Errorf("executor did not record RunMap call: %+v", exec.mapped)
	}

	state, err := client.TaskStatus(ctx, addr, "job-1", 0)
	if err != nil {
		t.Fatalf("TaskStatus failed: %v", err)
	}
	if state != "running" {
		t.Errorf("TaskStatus = %q, want %q", state, "running")
	}
}
