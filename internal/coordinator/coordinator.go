package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"chordmr/internal/chord"
	"chordmr/internal/dht"
	"chordmr/internal/errs"
	"chordmr/internal/kernel"
	"chordmr/internal/logger"
	"chordmr/internal/rpc"
)

// Config carries the job-scheduling tunables from spec section 4.5,
// loaded from the config file's job.* block.
type Config struct {
	ItemsPerChunk        int
	MaxTaskTimeout       time.Duration
	MaxTaskAttempts      int
	WorkerHealthInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		ItemsPerChunk:        16,
		MaxTaskTimeout:       300 * time.Second,
		MaxTaskAttempts:      5,
		WorkerHealthInterval: 2 * time.Second,
	}
}

// Coordinator runs the map/reduce lifecycle for every job submitted at
// this node, per spec section 4.4: it is elected per-job (whichever live
// node a client submits to), so every chordmr process holds one
// Coordinator alongside its Worker.
type Coordinator struct {
	dhtNode   *dht.Node
	chordNode *chord.Node
	trans     WorkerTransport
	kernels   *kernel.Registry
	lgr       logger.Logger
	cfg       Config

	health *HealthMonitor

	mu   sync.Mutex
	jobs map[string]*job
}

func New(dhtNode *dht.Node, chordNode *chord.Node, trans WorkerTransport, kernels *kernel.Registry, cfg Config, lgr logger.Logger) *Coordinator {
	if lgr == nil {
		lgr = logger.NopLogger{}
	}
	c := &Coordinator{
		dhtNode:   dhtNode,
		chordNode: chordNode,
		trans:     trans,
		kernels:   kernels,
		cfg:       cfg,
		lgr:       lgr,
		jobs:      make(map[string]*job),
	}
	c.health = NewHealthMonitor(trans, cfg.WorkerHealthInterval, lgr)
	c.health.SetOnUnhealthy(c.evictWorker)
	c.health.Start(c.liveMemberAddrs)
	return c
}

func (c *Coordinator) Stop() { c.health.Stop() }

func (c *Coordinator) evictWorker(id string) {
	c.mu.Lock()
	jobs := make([]*job, 0, len(c.jobs))
	for _, j := range c.jobs {
		jobs = append(jobs, j)
	}
	c.mu.Unlock()
	for _, j := range jobs {
		j.removeWorker(id)
	}
}

func (c *Coordinator) liveMemberAddrs() map[string]string {
	self := c.chordNode.Self()
	out := map[string]string{nodeID(self): self.Addr}
	for _, m := range c.chordNode.RoutingTable().SuccessorList() {
		out[nodeID(m)] = m.Addr
	}
	return out
}

// liveWorkers snapshots the current ring membership (self plus the
// successor list) and pings each once, filtering out unreachable peers,
// per spec section 4.4's "workers are polled with ping before
// assignment".
func (c *Coordinator) liveWorkers(ctx context.Context) []chord.NodeRef {
	self := c.chordNode.Self()
	candidates := append([]chord.NodeRef{self}, c.chordNode.RoutingTable().SuccessorList()...)

	seen := make(map[string]struct{})
	var live []chord.NodeRef
	for _, n := range candidates {
		if _, ok := seen[n.Addr]; ok {
			continue
		}
		seen[n.Addr] = struct{}{}
		if n.Equal(self) {
			live = append(live, n)
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.trans.Ping(cctx, n.Addr)
		cancel()
		if err == nil {
			live = append(live, n)
		}
	}
	return live
}

// Submit implements spec section 6's submit(input, map_fn, reduce_fn,
// options) -> JobId. map_fn/reduce_fn are named by a registered kernel
// handle rather than shipped as opaque blobs (spec section 9's Design
// Notes); handle must already be registered on every worker's kernel
// registry.
func (c *Coordinator) Submit(ctx context.Context, items []kernel.KV, handle kernel.Handle) (string, error) {
	if !c.kernels.Has(handle) {
		return "", fmt.Errorf("coordinator: submit: unknown kernel handle %q", handle)
	}
	jobID := uuid.NewString()

	if err := c.dhtNode.Put(ctx, []byte(jobKernelKey(jobID)), []byte(handle)); err != nil {
		return "", fmt.Errorf("coordinator: submit: write kernel handle: %w", err)
	}

	chunks := chunkItems(items, c.cfg.ItemsPerChunk)
	for i, chunk := range chunks {
		b, err := json.Marshal(chunk)
		if err != nil {
			return "", fmt.Errorf("coordinator: submit: encode chunk %d: %w", i, err)
		}
		if err := c.dhtNode.Put(ctx, []byte(jobChunkKey(jobID, i)), b); err != nil {
			return "", fmt.Errorf("coordinator: submit: write chunk %d: %w", i, err)
		}
	}

	workers := c.liveWorkers(ctx)
	if len(workers) == 0 {
		return "", errs.ErrRingEmpty
	}

	j := newJob(jobID, handle, len(chunks), workers)
	c.mu.Lock()
	c.jobs[jobID] = j
	c.mu.Unlock()

	go c.run(j)
	return jobID, nil
}

func chunkItems(items []kernel.KV, size int) [][]kernel.KV {
	if size <= 0 {
		size = 16
	}
	var chunks [][]kernel.KV
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	if len(chunks) == 0 {
		chunks = [][]kernel.KV{{}}
	}
	return chunks
}

func jobKernelKey(jobID string) string        { return fmt.Sprintf("job/%s/kernel", jobID) }
func jobChunkKey(jobID string, i int) string  { return fmt.Sprintf("job/%s/chunk/%d", jobID, i) }
func jobInterPrefix(jobID string) string      { return fmt.Sprintf("job/%s/inter/", jobID) }
func jobOutKey(jobID string, outKey []byte) string {
	return fmt.Sprintf("job/%s/out/%s", jobID, outKey)
}
func jobPrefix(jobID string) string { return fmt.Sprintf("job/%s/", jobID) }

// run drives one job through map dispatch, the phase barrier, reduce
// planning, reduce dispatch, and finalize, per spec section 4.4.
func (c *Coordinator) run(j *job) {
	ctx := context.Background()

	if err := c.dispatchPhase(ctx, j, PhaseMap, j.mapTasks); err != nil {
		j.fail(fmt.Errorf("%w: %v", errs.ErrJobFailed, err))
		return
	}

	reduceTasks, err := c.planReduce(ctx, j)
	if err != nil {
		j.fail(fmt.Errorf("%w: %v", errs.ErrJobFailed, err))
		return
	}
	j.mu.Lock()
	j.reduceTasks = reduceTasks
	j.phase = PhaseReduce
	j.setWorkers(c.liveWorkers(ctx))
	j.mu.Unlock()

	if err := c.dispatchPhase(ctx, j, PhaseReduce, reduceTasks); err != nil {
		j.fail(fmt.Errorf("%w: %v", errs.ErrJobFailed, err))
		return
	}

	results, err := c.finalize(ctx, j, reduceTasks)
	if err != nil {
		j.fail(fmt.Errorf("%w: %v", errs.ErrJobFailed, err))
		return
	}
	j.succeed(results)
}

// dispatchPhase runs every task in tasks to completion, retrying failed
// or timed-out attempts on a different worker (the same one only when it
// is the sole worker left) up to MaxTaskAttempts, per
// spec section 4.4 steps 3 and 5. It returns once every task is Done or
// one has exceeded its attempt cap.
func (c *Coordinator) dispatchPhase(ctx context.Context, j *job, phase Phase, tasks []*TaskDescriptor) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(tasks))

	for _, t := range tasks {
		wg.Add(1)
		go func(t *TaskDescriptor) {
			defer wg.Done()
			if err := c.dispatchTask(ctx, j, phase, t); err != nil {
				errCh <- err
			}
		}(t)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) dispatchTask(ctx context.Context, j *job, phase Phase, t *TaskDescriptor) error {
	for attempt := 1; attempt <= c.cfg.MaxTaskAttempts; attempt++ {
		j.mu.Lock()
		worker, ok := j.nextRoundRobinWorker()
		if !ok {
			t.State = TaskFailed
			j.mu.Unlock()
			return errs.ErrRingEmpty
		}
		if attempt > 1 && len(j.workers) > 1 && worker.Equal(t.Assignee) {
			worker, _ = j.nextRoundRobinWorker()
		}
		t.Assignee = worker
		t.Attempt = attempt
		t.State = TaskInFlight
		t.Deadline = time.Now().Add(c.cfg.MaxTaskTimeout)
		j.mu.Unlock()

		cctx, cancel := context.WithTimeout(ctx, c.cfg.MaxTaskTimeout)
		var err error
		if phase == PhaseMap {
			err = c.trans.RunMap(cctx, worker.Addr, rpc.RunMapRequest{
				JobID:     j.id,
				TaskIndex: t.Index,
				ChunkKey:  jobChunkKey(j.id, t.Index),
				KernelKey: jobKernelKey(j.id),
				Attempt:   attempt,
				WorkerID:  nodeID(worker),
			})
		} else {
			err = c.trans.RunReduce(cctx, worker.Addr, rpc.RunReduceRequest{
				JobID:     j.id,
				TaskIndex: t.Index,
				InterKeys: t.InterKeys,
				OutKey:    []byte(t.InputKey),
				KernelKey: jobKernelKey(j.id),
				Attempt:   attempt,
				WorkerID:  nodeID(worker),
			})
		}
		cancel()

		if err == nil {
			j.mu.Lock()
			t.State = TaskDone
			j.mu.Unlock()
			return nil
		}

		c.lgr.Warn("coordinator: task attempt failed",
			logger.F("job", j.id), logger.F("phase", phase.String()), logger.F("task", t.Index),
			logger.F("attempt", attempt), logger.F("worker", worker.Addr), logger.F("err", err.Error()))
		j.mu.Lock()
		t.State = TaskPending
		j.mu.Unlock()
	}

	j.mu.Lock()
	t.State = TaskFailed
	j.mu.Unlock()
	return fmt.Errorf("task %d exceeded %d attempts: %w", t.Index, c.cfg.MaxTaskAttempts, errs.ErrTaskAborted)
}

// planReduce enumerates distinct intermediate keys via the DHT's
// scatter-gather keys(), groups them by the id(out_key) bucket embedded
// in their path, and resolves the real out_key for each bucket by
// fetching one representative record, per spec section 4.4 step 4.
func (c *Coordinator) planReduce(ctx context.Context, j *job) ([]*TaskDescriptor, error) {
	members := c.liveWorkers(ctx)
	keys, err := c.dhtNode.ScatterKeys(ctx, []byte(jobInterPrefix(j.id)), members)
	if err != nil {
		return nil, fmt.Errorf("coordinator: scatter intermediate keys: %w", err)
	}

	buckets := make(map[string][][]byte)
	order := make([]string, 0)
	for _, k := range keys {
		bucket, ok := interBucket(k, j.id)
		if !ok {
			continue
		}
		if _, seen := buckets[bucket]; !seen {
			order = append(order, bucket)
		}
		buckets[bucket] = append(buckets[bucket], k)
	}

	tasks := make([]*TaskDescriptor, 0, len(order))
	for i, bucket := range order {
		rawKeys := buckets[bucket]
		e, err := c.dhtNode.Get(ctx, rawKeys[0])
		if err != nil {
			continue
		}
		var rec intermediateRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			continue
		}
		tasks = append(tasks, &TaskDescriptor{
			JobID:     j.id,
			Phase:     PhaseReduce,
			Index:     i,
			InputKey:  string(rec.OutKey),
			InterKeys: rawKeys,
			State:     TaskPending,
		})
	}
	return tasks, nil
}

// interBucket extracts the bucket path segment from a raw intermediate
// key of the form "job/<id>/inter/<bucket>/<worker>/<seq>".
func interBucket(rawKey []byte, jobID string) (string, bool) {
	prefix := []byte(jobInterPrefix(jobID))
	if !bytes.HasPrefix(rawKey, prefix) {
		return "", false
	}
	rest := rawKey[len(prefix):]
	idx := bytes.IndexByte(rest, '/')
	if idx < 0 {
		return "", false
	}
	return string(rest[:idx]), true
}

// finalize reads every reduce task's output from the DHT and cleans up
// all of the job's keys, per spec section 4.4 step 6.
func (c *Coordinator) finalize(ctx context.Context, j *job, reduceTasks []*TaskDescriptor) (map[string][]byte, error) {
	results := make(map[string][]byte, len(reduceTasks))
	for _, t := range reduceTasks {
		e, err := c.dhtNode.Get(ctx, []byte(jobOutKey(j.id, []byte(t.InputKey))))
		if err != nil {
			return nil, fmt.Errorf("coordinator: finalize: read output %q: %w", t.InputKey, err)
		}
		results[t.InputKey] = e.Value
	}

	members := c.liveWorkers(ctx)
	allKeys, err := c.dhtNode.ScatterKeys(ctx, []byte(jobPrefix(j.id)), members)
	if err != nil {
		c.lgr.Warn("coordinator: finalize: cleanup scatter failed", logger.F("job", j.id), logger.F("err", err.Error()))
		return results, nil
	}
	for _, k := range allKeys {
		if err := c.dhtNode.Delete(ctx, k); err != nil {
			c.lgr.Warn("coordinator: finalize: cleanup delete failed", logger.F("key", string(k)), logger.F("err", err.Error()))
		}
	}
	_ = c.dhtNode.Delete(ctx, []byte(jobKernelKey(j.id)))
	return results, nil
}

// AwaitResults implements spec section 6's awaitResults(JobId) ->
// mapping out_key -> out_value, blocking until the job is Done or
// Failed.
func (c *Coordinator) AwaitResults(ctx context.Context, jobID string) (map[string][]byte, error) {
	c.mu.Lock()
	j, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("coordinator: unknown job %q", jobID)
	}
	select {
	case <-j.done:
		j.mu.Lock()
		err := j.err
		results := j.results
		j.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status implements spec section 6's status(JobId) -> {phase,
// tasks_total, tasks_done, tasks_failed}.
type JobStatus struct {
	Phase       string
	TasksTotal  int
	TasksDone   int
	TasksFailed int
}

func (c *Coordinator) Status(jobID string) (JobStatus, error) {
	c.mu.Lock()
	j, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return JobStatus{}, fmt.Errorf("coordinator: unknown job %q", jobID)
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	var tasks []*TaskDescriptor
	if j.phase == PhaseMap {
		tasks = j.mapTasks
	} else {
		tasks = append(append([]*TaskDescriptor{}, j.mapTasks...), j.reduceTasks...)
	}
	total, done, failed := j.countsLocked(tasks)
	return JobStatus{Phase: j.phase.String(), TasksTotal: total, TasksDone: done, TasksFailed: failed}, nil
}
