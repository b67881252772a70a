package coordinator

import (
	"context"
	"testing"
	"time"

	"chordmr/internal/chord"
	"chordmr/internal/dht"
	"chordmr/internal/kernel"
	"chordmr/internal/ring"
	"chordmr/internal/rpc"
)

// singleNodeChordTransport answers every chord RPC as a one-node ring.
type singleNodeChordTransport struct {
	self chord.NodeRef
}

func (t *singleNodeChordTransport) Ping(ctx context.Context, addr string) error { return nil }
func (t *singleNodeChordTransport) GetPredecessor(ctx context.Context, addr string) (chord.NodeRef, error) {
	return chord.NodeRef{}, nil
}
func (t *singleNodeChordTransport) GetSuccessorList(ctx context.Context, addr string) ([]chord.NodeRef, error) {
	return nil, nil
}
func (t *singleNodeChordTransport) Notify(ctx context.Context, addr string, self chord.NodeRef) error {
	return nil
}
func (t *singleNodeChordTransport) FindSuccessor(ctx context.Context, addr string, target ring.ID) (chord.FindSuccessorResult, error) {
	return chord.FindSuccessorResult{Node: t.self, Final: true}, nil
}

// noopDHTTransport fails every remote DHT RPC; a single-node ring never
// needs to forward.
type noopDHTTransport struct{}

func (noopDHTTransport) Put(ctx context.Context, addr string, rawKey []byte, value []byte, writer ring.ID) (dht.Entry, error) {
	panic("unexpected remote Put")
}
func (noopDHTTransport) Replicate(ctx context.Context, addr string, e dht.Entry) error {
	panic("unexpected remote Replicate")
}
func (noopDHTTransport) Get(ctx context.Context, addr string, rawKey []byte) (dht.Entry, error) {
	panic("unexpected remote Get")
}
func (noopDHTTransport) Delete(ctx context.Context, addr string, rawKey []byte) error {
	panic("unexpected remote Delete")
}
func (noopDHTTransport) Keys(ctx context.Context, addr string, prefix []byte) ([][]byte, error) {
	return nil, nil
}

// loopbackWorkerTransport dispatches task RPCs straight into an
// in-process Worker, standing in for internal/rpc.Client in a single-
// process test.
type loopbackWorkerTransport struct {
	worker *Worker
}

func (l *loopbackWorkerTransport) Ping(ctx context.Context, addr string) error { return nil }
func (l *loopbackWorkerTransport) RunMap(ctx context.Context, addr string, req rpc.RunMapRequest) error {
	return l.worker.ExecuteMap(ctx, req)
}
func (l *loopbackWorkerTransport) RunReduce(ctx context.Context, addr string, req rpc.RunReduceRequest) error {
	return l.worker.ExecuteReduce(ctx, req)
}
func (l *loopbackWorkerTransport) TaskStatus(ctx context.Context, addr string, jobID string, taskIndex int) (string, error) {
	return l.worker.TaskStatus(ctx, jobID, taskIndex)
}

func newSingleNodeCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	space, err := ring.NewSpace(32)
	if err != nil {
		t.Fatalf("NewSpace failed: %v", err)
	}
	self := chord.NodeRef{ID: space.IDFromString("node-a"), Addr: "a"}
	rt := chord.NewRoutingTable(self, space, 3)
	rt.SetSuccessor(0, self)
	cn := chord.New(rt, &singleNodeChordTransport{self: self})

	dhtCfg := dht.DefaultConfig()
	dhtCfg.ReplicationFactor = 1
	dhtNode := dht.NewNode(cn, noopDHTTransport{}, dhtCfg, nil)

	kernels := kernel.NewRegistry()
	kernel.RegisterBuiltins(kernels)

	worker := NewWorker(dhtNode, kernels, nil)
	trans := &loopbackWorkerTransport{worker: worker}

	cfg := DefaultConfig()
	cfg.WorkerHealthInterval = time.Hour // don't let the background sweep race the test
	return New(dhtNode, cn, trans, kernels, cfg, nil)
}

func TestSubmitWordCountSingleNode(t *testing.T) {
	c := newSingleNodeCoordinator(t)
	defer c.Stop()

	lines := []string{
		"hello world",
		"hello distributed computing",
		"world of mapreduce",
	}
	items := make([]kernel.KV, len(lines))
	for i, line := range lines {
		items[i] = kernel.KV{Key: []byte{byte(i)}, Value: []byte(line)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	jobID, err := c.Submit(ctx, items, kernel.WordCount)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	results, err := c.AwaitResults(ctx, jobID)
	if err != nil {
		t.Fatalf("AwaitResults failed: %v", err)
	}

	want := map[string]string{
		"hello":       "2",
		"world":       "2",
		"distributed": "1",
		"computing":   "1",
		"of":          "1",
		"mapreduce":   "1",
	}
	if len(results) != len(want) {
		t.Fatalf("got %d output keys, expected %d: %v", len(results), len(want), results)
	}
	for word, expected := range want {
		got, ok := results[word]
		if !ok {
			t.Errorf("missing output for %q", word)
			continue
		}
		if string(got) != expected {
			t.Errorf("count[%q] = %s, expected %s", word, got, expected)
		}
	}
}

func TestSubmitUnknownHandleRejected(t *testing.T) {
	c := newSingleNodeCoordinator(t)
	defer c.Stop()
	if _, err := c.Submit(context.Background(), nil, kernel.Handle("nope")); err == nil {
		t.Error("Submit with an unregistered handle should error")
	}
}
