package rpc

import (
	"context"
	"errors"
	"net"

	"google.golang.org/grpc"

	"chordmr/internal/chord"
	"chordmr/internal/dht"
	"chordmr/internal/errs"
	"chordmr/internal/logger"
	"chordmr/internal/ring"
)

// TaskExecutor is the worker-side half of the coordinator's task RPCs
// (spec section 6: runMap, runReduce, taskStatus). It's declared here,
// not imported from internal/coordinator, because internal/coordinator
// depends on internal/rpc (as the concrete Transport for task dispatch);
// coordinator.Worker satisfies this interface structurally without
// internal/rpc ever importing internal/coordinator.
type TaskExecutor interface {
	ExecuteMap(ctx context.Context, req RunMapRequest) error
	ExecuteReduce(ctx context.Context, req RunReduceRequest) error
	TaskStatus(ctx context.Context, jobID string, taskIndex int) (string, error)
}

// Server is the gRPC service surface binding chord.Node, dht.Node, and a
// TaskExecutor to the network, grounded in the teacher's server2.New /
// internal/node/server (referenced from cmd/node/main.go) but serving
// this repo's own RPC surface instead of the web-cache one.
type Server struct {
	chordNode *chord.Node
	dhtNode   *dht.Node
	executor  TaskExecutor
	lgr       logger.Logger

	grpcServer *grpc.Server
}

// NewServer builds a Server. grpcOpts lets callers add interceptors (e.g.
// otelgrpc.NewServerHandler) without this package depending on telemetry.
func NewServer(cn *chord.Node, dn *dht.Node, exec TaskExecutor, lgr logger.Logger, grpcOpts ...grpc.ServerOption) *Server {
	if lgr == nil {
		lgr = logger.NopLogger{}
	}
	s := &Server{chordNode: cn, dhtNode: dn, executor: exec, lgr: lgr}
	s.grpcServer = grpc.NewServer(grpcOpts...)
	s.grpcServer.RegisterService(&serviceDesc, s)
	return s
}

// Serve blocks, accepting connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Stop gracefully drains in-flight RPCs before returning.
func (s *Server) Stop() { s.grpcServer.GracefulStop() }

// ForceStop tears down the listener immediately.
func (s *Server) ForceStop() { s.grpcServer.Stop() }

// --- Chord membership handlers ---

func (s *Server) handlePing(ctx context.Context, req *PingRequest) (*PingResponse, error) {
	return &PingResponse{}, nil
}

func (s *Server) handleGetPredecessor(ctx context.Context, req *GetPredecessorRequest) (*GetPredecessorResponse, error) {
	pred := s.chordNode.RoutingTable().GetPredecessor()
	if pred.IsZero() {
		return &GetPredecessorResponse{}, nil
	}
	return &GetPredecessorResponse{Predecessor: toNodeRefMsg(pred)}, nil
}

func (s *Server) handleGetSuccessorList(ctx context.Context, req *GetSuccessorListRequest) (*GetSuccessorListResponse, error) {
	list := s.chordNode.RoutingTable().SuccessorList()
	out := make([]NodeRefMsg, 0, len(list))
	for _, n := range list {
		out = append(out, *toNodeRefMsg(n))
	}
	return &GetSuccessorListResponse{Successors: out}, nil
}

func (s *Server) handleNotify(ctx context.Context, req *NotifyRequest) (*NotifyResponse, error) {
	s.chordNode.Notify(fromNodeRefMsg(req.Candidate))
	return &NotifyResponse{}, nil
}

func (s *Server) handleFindSuccessor(ctx context.Context, req *FindSuccessorRequest) (*FindSuccessorResponse, error) {
	res := s.chordNode.HandleFindSuccessor(ring.ID(req.Target))
	return &FindSuccessorResponse{Node: *toNodeRefMsg(res.Node), Final: res.Final}, nil
}

// --- DHT handlers ---

func (s *Server) handleDHTPut(ctx context.Context, req *DHTPutRequest) (*DHTPutResponse, error) {
	value, err := req.Value.unwrap()
	if err != nil {
		return nil, err
	}
	if err := s.dhtNode.Put(ctx, req.RawKey, value); err != nil {
		return nil, err
	}
	e, err := s.dhtNode.Get(ctx, req.RawKey)
	if err != nil {
		return &DHTPutResponse{}, nil
	}
	return &DHTPutResponse{
		Version:   e.Version,
		WriterID:  []byte(e.WriterID),
		UpdatedAt: e.UpdatedAt.UnixNano(),
	}, nil
}

func (s *Server) handleDHTGet(ctx context.Context, req *DHTGetRequest) (*DHTGetResponse, error) {
	e, err := s.dhtNode.Get(ctx, req.RawKey)
	if err != nil {
		if errors.Is(err, errs.ErrKeyNotFound) {
			return &DHTGetResponse{Found: false}, nil
		}
		return nil, err
	}
	return &DHTGetResponse{
		Found:     true,
		Value:     wrapPayload(e.Value),
		Version:   e.Version,
		WriterID:  e.WriterID,
		UpdatedAt: e.UpdatedAt.UnixNano(),
	}, nil
}

func (s *Server) handleDHTDelete(ctx context.Context, req *DHTDeleteRequest) (*DHTDeleteResponse, error) {
	if err := s.dhtNode.Delete(ctx, req.RawKey); err != nil {
		return nil, err
	}
	return &DHTDeleteResponse{}, nil
}

func (s *Server) handleDHTReplicate(ctx context.Context, req *DHTReplicateRequest) (*DHTReplicateResponse, error) {
	value, err := req.Value.unwrap()
	if err != nil {
		return nil, err
	}
	entry := dht.Entry{
		Key:      ring.ID(req.Key),
		RawKey:   req.RawKey,
		Value:    value,
		Version:  req.Version,
		WriterID: ring.ID(req.WriterID),
		Role:     dht.RoleSecondary,
	}
	if err := s.dhtNode.ReceiveReplica(entry); err != nil {
		return nil, err
	}
	return &DHTReplicateResponse{}, nil
}

func (s *Server) handleDHTKeys(req *DHTKeysRequest, stream grpc.ServerStream) error {
	keys := s.dhtNode.Store().Keys(req.Prefix)
	const batchSize = 64
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := stream.SendMsg(&DHTKeysChunk{Keys: keys[i:end]}); err != nil {
			return err
		}
	}
	return nil
}

// --- Task handlers ---

func (s *Server) handleRunMap(ctx context.Context, req *RunMapRequest) (*RunMapResponse, error) {
	if err := s.executor.ExecuteMap(ctx, *req); err != nil {
		return nil, err
	}
	return &RunMapResponse{Accepted: true}, nil
}

func (s *Server) handleRunReduce(ctx context.Context, req *RunReduceRequest) (*RunReduceResponse, error) {
	if err := s.executor.ExecuteReduce(ctx, *req); err != nil {
		return nil, err
	}
	return &RunReduceResponse{Accepted: true}, nil
}

func (s *Server) handleTaskStatus(ctx context.Context, req *TaskStatusRequest) (*TaskStatusResponse, error) {
	state, err := s.executor.TaskStatus(ctx, req.JobID, req.TaskIndex)
	if err != nil {
		return nil, err
	}
	return &TaskStatusResponse{State: state}, nil
}

func toNodeRefMsg(n chord.NodeRef) *NodeRefMsg {
	return &NodeRefMsg{ID: []byte(n.ID), Addr: n.Addr}
}

func fromNodeRefMsg(m NodeRefMsg) chord.NodeRef {
	return chord.NodeRef{ID: ring.ID(m.ID), Addr: m.Addr}
}
