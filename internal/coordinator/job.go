package coordinator

import (
	"sync"

	"chordmr/internal/chord"
	"chordmr/internal/kernel"
)

// job holds all state for one submission, per spec section 4.4: the map
// and reduce task tables, the worker snapshot used for round-robin
// assignment, and the client-facing result/error once the job settles.
// One lock guards every field; state transitions are always taken under
// it, per spec section 5's locking discipline for the coordinator's task
// table.
type job struct {
	mu sync.Mutex

	id     string
	handle kernel.Handle

	mapTasks    []*TaskDescriptor
	reduceTasks []*TaskDescriptor

	workers    []chord.NodeRef
	nextWorker int

	phase Phase
	done  chan struct{}
	err   error
	results map[string][]byte
}

func newJob(id string, handle kernel.Handle, numChunks int, workers []chord.NodeRef) *job {
	mapTasks := make([]*TaskDescriptor, numChunks)
	for i := range mapTasks {
		mapTasks[i] = &TaskDescriptor{JobID: id, Phase: PhaseMap, Index: i, InputKey: jobChunkKey(id, i), State: TaskPending}
	}
	return &job{
		id:       id,
		handle:   handle,
		mapTasks: mapTasks,
		workers:  append([]chord.NodeRef(nil), workers...),
		phase:    PhaseMap,
		done:     make(chan struct{}),
		results:  make(map[string][]byte),
	}
}

// nextRoundRobinWorker returns the next live worker in round-robin order
// over the snapshot taken at phase start, per spec section 4.4's
// worker-selection policy. Must be called with j.mu held.
func (j *job) nextRoundRobinWorker() (chord.NodeRef, bool) {
	if len(j.workers) == 0 {
		return chord.NodeRef{}, false
	}
	w := j.workers[j.nextWorker%len(j.workers)]
	j.nextWorker++
	return w, true
}

// setWorkers replaces the live-worker snapshot used for new assignments,
// called at the start of the reduce phase (newJob takes the map-phase
// snapshot; health-monitor evictions go through removeWorker). Must be
// called with j.mu held.
func (j *job) setWorkers(workers []chord.NodeRef) {
	j.workers = append([]chord.NodeRef(nil), workers...)
	j.nextWorker = 0
}

// removeWorker drops a worker from the round-robin set (health monitor
// eviction), so it is never selected for a future assignment even though
// tasks it already holds are unaffected until they time out.
func (j *job) removeWorker(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := j.workers[:0]
	for _, w := range j.workers {
		if w.ID.ToHexString(false) != id {
			out = append(out, w)
		}
	}
	j.workers = out
	if j.nextWorker > len(j.workers) {
		j.nextWorker = 0
	}
}

func (j *job) mapTasksDone() bool {
	for _, t := range j.mapTasks {
		if t.State != TaskDone {
			return false
		}
	}
	return true
}

func (j *job) reduceTasksDone() bool {
	if len(j.reduceTasks) == 0 {
		return false
	}
	for _, t := range j.reduceTasks {
		if t.State != TaskDone {
			return false
		}
	}
	return true
}

func (j *job) countsLocked(tasks []*TaskDescriptor) (total, done, failed int) {
	total = len(tasks)
	for _, t := range tasks {
		switch t.State {
		case TaskDone:
			done++
		case TaskFailed:
			failed++
		}
	}
	return
}

func (j *job) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	select {
	case <-j.done:
		return
	default:
	}
	j.err = err
	close(j.done)
}

func (j *job) succeed(results map[string][]byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	select {
	case <-j.done:
		return
	default:
	}
	j.results = results
	close(j.done)
}
