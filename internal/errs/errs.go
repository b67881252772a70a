// Package errs defines the abstract error kinds shared by every chordmr
// component (ring, dht, coordinator, rpc), so callers can branch on
// errors.Is against a sentinel instead of parsing strings or grpc codes.
package errs

import "errors"

var (
	// ErrRpcTimeout means a remote call did not complete before its
	// deadline (REQUEST_TIMEOUT / MAX_TASK_TIMEOUT).
	ErrRpcTimeout = errors.New("chordmr: rpc timeout")
	// ErrRpcUnreachable means a remote call could not even be dialed.
	ErrRpcUnreachable = errors.New("chordmr: rpc unreachable")
	// ErrKeyNotFound means a DHT get/delete found no entry for the key.
	ErrKeyNotFound = errors.New("chordmr: key not found")
	// ErrUnavailable means no replica of a key could be reached.
	ErrUnavailable = errors.New("chordmr: unavailable")
	// ErrVersionConflict means a write lost a last-writer-wins race.
	ErrVersionConflict = errors.New("chordmr: version conflict")
	// ErrTaskTimeout means a map or reduce task exceeded MAX_TASK_TIMEOUT.
	ErrTaskTimeout = errors.New("chordmr: task timeout")
	// ErrTaskAborted means a task was abandoned after exhausting retries.
	ErrTaskAborted = errors.New("chordmr: task aborted")
	// ErrJobFailed means a job could not complete (a task exhausted
	// retries, no worker was left, or reduce planning or finalize failed).
	ErrJobFailed = errors.New("chordmr: job failed")
	// ErrCapacityExceeded means a local store rejected a write because it
	// is at its configured capacity.
	ErrCapacityExceeded = errors.New("chordmr: capacity exceeded")
	// ErrRingEmpty means an operation needs a live ring but none is
	// known (no successor, no bootstrap peer reachable).
	ErrRingEmpty = errors.New("chordmr: ring empty")
)
