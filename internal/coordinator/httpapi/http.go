// Package httpapi exposes a small JSON HTTP surface alongside the gRPC
// peer protocol: job status polling, a liveness probe, and routing-table
// introspection, in the style of the teacher's HTTPCacheServer
// (internal/node/server/http.go) but serving chordmr's own coordinator
// and ring state instead of a web cache.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chordmr/internal/chord"
	"chordmr/internal/coordinator"
	"chordmr/internal/kernel"
	"chordmr/internal/logger"
)

// Server serves job submission/polling, a liveness probe, and routing-
// table introspection over HTTP: the external client surface for spec
// section 6's submit/awaitResults/status, since those are otherwise only
// reachable in-process on whichever node a job happened to land on.
type Server struct {
	coord     *coordinator.Coordinator
	chordNode *chord.Node
	lgr       logger.Logger

	server *http.Server
}

func New(coord *coordinator.Coordinator, chordNode *chord.Node, addr string, lgr logger.Logger) *Server {
	if lgr == nil {
		lgr = logger.NopLogger{}
	}
	s := &Server{coord: coord, chordNode: chordNode, lgr: lgr}

	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", s.handleSubmit)
	mux.HandleFunc("/jobs/", s.handleJobSubpath)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/debug", s.handleDebug)

	s.server = &http.Server{Addr: addr, Handler: mux}
	return s
}

// submitRequest is the wire shape of POST /jobs, spec section 6's
// submit(input, map_fn, reduce_fn, options) with map_fn/reduce_fn named
// by a registered kernel handle rather than shipped inline.
type submitRequest struct {
	Handle string      `json:"handle"`
	Items  []kernel.KV `json:"items"`
}

// handleSubmit implements POST /jobs.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "expected POST", http.StatusMethodNotAllowed)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	jobID, err := s.coord.Submit(r.Context(), req.Items, kernel.Handle(req.Handle))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"job_id": jobID})
}

// handleJobSubpath dispatches /jobs/<id>/status and /jobs/<id>/results.
func (s *Server) handleJobSubpath(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/jobs/")
	jobID, rest, ok := strings.Cut(path, "/")
	if !ok {
		http.Error(w, "expected /jobs/<id>/status or /jobs/<id>/results", http.StatusNotFound)
		return
	}
	switch rest {
	case "status":
		s.handleJobStatus(w, r, jobID)
	case "results":
		s.handleJobResults(w, r, jobID)
	default:
		http.Error(w, "expected /jobs/<id>/status or /jobs/<id>/results", http.StatusNotFound)
	}
}

// Start launches the HTTP server and blocks until it is stopped, same
// shape as the teacher's HTTPCacheServer.Start.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	return s.server.Close()
}

// handleJobStatus serves GET /jobs/<id>/status, spec section 6's
// status(JobId).
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	status, err := s.coord.Status(jobID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":       jobID,
		"phase":        status.Phase,
		"tasks_total":  status.TasksTotal,
		"tasks_done":   status.TasksDone,
		"tasks_failed": status.TasksFailed,
	})
}

// handleJobResults serves GET /jobs/<id>/results, spec section 6's
// awaitResults(JobId): it blocks until the job is Done or Failed, or
// until the caller's timeout query parameter (default 60s) elapses.
func (s *Server) handleJobResults(w http.ResponseWriter, r *http.Request, jobID string) {
	timeout := 60 * time.Second
	if v := r.URL.Query().Get("timeout"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	results, err := s.coord.AwaitResults(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil {
			http.Error(w, "timed out waiting for job completion", http.StatusGatewayTimeout)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"job_id": jobID, "results": results})
}

// handleHealth reports whether this node has a usable ring position.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	self := s.chordNode.Self()
	succList := s.chordNode.RoutingTable().SuccessorList()
	healthy := !self.IsZero() && len(succList) > 0

	response := map[string]any{
		"healthy": healthy,
		"node_id": self.ID.ToHexString(true),
		"details": map[string]any{
			"successor_count": len(succList),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}

// handleDebug dumps the routing table, mirroring the teacher's
// handleDebug (ring + finger table introspection).
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	rt := s.chordNode.RoutingTable()
	self := s.chordNode.Self()
	pred := rt.GetPredecessor()

	successors := make([]string, 0)
	for _, n := range rt.SuccessorList() {
		successors = append(successors, fmt.Sprintf("%s (%s)", n.Addr, n.ID.ToHexString(true)))
	}
	fingers := make([]string, 0)
	for _, n := range rt.FingerList() {
		fingers = append(fingers, fmt.Sprintf("%s (%s)", n.Addr, n.ID.ToHexString(true)))
	}

	response := map[string]any{
		"self":        fmt.Sprintf("%s (%s)", self.Addr, self.ID.ToHexString(true)),
		"predecessor": predecessorString(pred),
		"successors":  successors,
		"fingers":     fingers,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func predecessorString(n chord.NodeRef) string {
	if n.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s (%s)", n.Addr, n.ID.ToHexString(true))
}
