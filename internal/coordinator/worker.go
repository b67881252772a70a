package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"chordmr/internal/dht"
	"chordmr/internal/kernel"
	"chordmr/internal/logger"
	"chordmr/internal/rpc"
)

// WorkerTransport is the coordinator's outbound half of the task RPC
// surface (spec section 6: runMap, runReduce, taskStatus, plus ping for
// pre-assignment liveness checks). internal/rpc.Client satisfies this
// structurally; it is declared here rather than imported from rpc so that
// tests can supply an in-process fake.
type WorkerTransport interface {
	Ping(ctx context.Context, addr string) error
	RunMap(ctx context.Context, addr string, req rpc.RunMapRequest) error
	RunReduce(ctx context.Context, addr string, req rpc.RunReduceRequest) error
	TaskStatus(ctx context.Context, addr string, jobID string, taskIndex int) (string, error)
}

// intermediateRecord is the JSON envelope a map task writes into the DHT
// for each emitted pair. The out_key travels inside the value (rather
// than being recovered from the key path alone) so reduce planning can
// group by exact out_key regardless of what characters it contains.
type intermediateRecord struct {
	OutKey []byte `json:"out_key"`
	Value  []byte `json:"value"`
}

// Worker is the task-executing half of a chordmr node: it implements
// rpc.TaskExecutor so internal/rpc.Server can dispatch runMap/runReduce
// calls straight into it without internal/rpc importing this package.
type Worker struct {
	dhtNode *dht.Node
	kernels *kernel.Registry
	lgr     logger.Logger

	mu     sync.Mutex
	status map[string]string
}

func NewWorker(dhtNode *dht.Node, kernels *kernel.Registry, lgr logger.Logger) *Worker {
	if lgr == nil {
		lgr = logger.NopLogger{}
	}
	return &Worker{dhtNode: dhtNode, kernels: kernels, lgr: lgr, status: make(map[string]string)}
}

var _ rpc.TaskExecutor = (*Worker)(nil)

func taskKey(jobID string, index int) string {
	return fmt.Sprintf("%s/%d", jobID, index)
}

func (w *Worker) setStatus(jobID string, index int, state string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status[taskKey(jobID, index)] = state
}

// ExecuteMap fetches the kernel handle and chunk from the DHT, invokes
// map_fn over every (in_key, in_value) pair in the chunk, and writes each
// emitted pair under job/<JobId>/inter/<bucket>/<worker_id>/<seq>, per
// spec section 4.4 step 2. Runs synchronously: the RunMap RPC only
// returns once the task either completes or the caller's deadline
// (MAX_TASK_TIMEOUT) expires, so the coordinator's existing RPC-failure
// retry path also covers task timeout without separate bookkeeping.
func (w *Worker) ExecuteMap(ctx context.Context, req rpc.RunMapRequest) error {
	w.setStatus(req.JobID, req.TaskIndex, "in_flight")

	handle, err := w.fetchHandle(ctx, req.KernelKey)
	if err != nil {
		w.setStatus(req.JobID, req.TaskIndex, "failed")
		return err
	}

	chunkEntry, err := w.dhtNode.Get(ctx, []byte(req.ChunkKey))
	if err != nil {
		w.setStatus(req.JobID, req.TaskIndex, "failed")
		return fmt.Errorf("coordinator: worker fetch chunk %s: %w", req.ChunkKey, err)
	}
	var chunk []kernel.KV
	if err := json.Unmarshal(chunkEntry.Value, &chunk); err != nil {
		w.setStatus(req.JobID, req.TaskIndex, "failed")
		return fmt.Errorf("coordinator: worker decode chunk %s: %w", req.ChunkKey, err)
	}

	seq := 0
	for _, in := range chunk {
		emitted, err := w.kernels.InvokeMap(handle, in.Key, in.Value)
		if err != nil {
			w.setStatus(req.JobID, req.TaskIndex, "failed")
			return fmt.Errorf("coordinator: map invoke: %w", err)
		}
		for _, kv := range emitted {
			bucket := w.dhtNode.Space().IDFromBytes(kv.Key).ToHexString(false)
			key := fmt.Sprintf("job/%s/inter/%s/%s/%d", req.JobID, bucket, req.WorkerID, seq)
			seq++
			rec, err := json.Marshal(intermediateRecord{OutKey: kv.Key, Value: kv.Value})
			if err != nil {
				w.setStatus(req.JobID, req.TaskIndex, "failed")
				return fmt.Errorf("coordinator: encode intermediate record: %w", err)
			}
			if err := w.dhtNode.Put(ctx, []byte(key), rec); err != nil {
				w.setStatus(req.JobID, req.TaskIndex, "failed")
				return fmt.Errorf("coordinator: write intermediate %s: %w", key, err)
			}
		}
	}
	w.setStatus(req.JobID, req.TaskIndex, "done")
	return nil
}

// ExecuteReduce fetches every intermediate record named by req.InterKeys,
// folds their values with reduce_fn, and writes the result under
// job/<JobId>/out/<out_key>, per spec section 4.4 step 5.
func (w *Worker) ExecuteReduce(ctx context.Context, req rpc.RunReduceRequest) error {
	w.setStatus(req.JobID, req.TaskIndex, "in_flight")

	handle, err := w.fetchHandle(ctx, req.KernelKey)
	if err != nil {
		w.setStatus(req.JobID, req.TaskIndex, "failed")
		return err
	}

	values := make([][]byte, 0, len(req.InterKeys))
	for _, k := range req.InterKeys {
		e, err := w.dhtNode.Get(ctx, k)
		if err != nil {
			w.lgr.Warn("coordinator: reduce worker missing intermediate", logger.F("key", string(k)), logger.F("err", err.Error()))
			continue
		}
		var rec intermediateRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			continue
		}
		values = append(values, rec.Value)
	}

	out, err := w.kernels.InvokeReduce(handle, req.OutKey, values)
	if err != nil {
		w.setStatus(req.JobID, req.TaskIndex, "failed")
		return fmt.Errorf("coordinator: reduce invoke: %w", err)
	}

	outKeyPath := fmt.Sprintf("job/%s/out/%s", req.JobID, req.OutKey)
	if err := w.dhtNode.Put(ctx, []byte(outKeyPath), out); err != nil {
		w.setStatus(req.JobID, req.TaskIndex, "failed")
		return fmt.Errorf("coordinator: write reduce output %s: %w", outKeyPath, err)
	}
	w.setStatus(req.JobID, req.TaskIndex, "done")
	return nil
}

// TaskStatus reports this worker's own belief about one task it was
// asked to run, answering the TaskStatus RPC; it is not the
// coordinator's source of truth (the RunMap/RunReduce RPC's own
// success/failure/timeout is).
func (w *Worker) TaskStatus(ctx context.Context, jobID string, taskIndex int) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.status[taskKey(jobID, taskIndex)]
	if !ok {
		return "unknown", nil
	}
	return state, nil
}

func (w *Worker) fetchHandle(ctx context.Context, kernelKey string) (kernel.Handle, error) {
	e, err := w.dhtNode.Get(ctx, []byte(kernelKey))
	if err != nil {
		return "", fmt.Errorf("coordinator: fetch kernel handle %s: %w", kernelKey, err)
	}
	h := kernel.Handle(e.Value)
	if !w.kernels.Has(h) {
		return "", fmt.Errorf("coordinator: worker has no kernel registered for handle %q", h)
	}
	return h, nil
}
