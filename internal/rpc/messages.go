// Package rpc binds internal/chord, internal/dht, and internal/coordinator
// to the network over gRPC. The wire types below are ordinary Go structs
// (not protoc-generated messages): internal/rpc/codec.go registers a
// custom "json" grpc content-subtype so these travel as JSON frames inside
// genuine grpc.ClientConn/grpc.Server plumbing. Opaque DHT values are
// packed into a wrapperspb.BytesValue, wrapped in an anypb.Any, and
// proto-marshaled before being carried as bytes inside the JSON frame, so
// every Put/Get/Replicate round-trip actually runs through
// google.golang.org/protobuf's marshal/unmarshal path rather than just
// moving raw bytes. See DESIGN.md's "RPC wire format" entry.
package rpc

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// NodeRefMsg is the wire form of chord.NodeRef.
type NodeRefMsg struct {
	ID   []byte `json:"id"`
	Addr string `json:"addr"`
}

// --- Chord membership RPCs ---

type PingRequest struct {
	CallerID []byte `json:"caller_id"`
}
type PingResponse struct{}

type GetPredecessorRequest struct {
	CallerID []byte `json:"caller_id"`
}
type GetPredecessorResponse struct {
	Predecessor *NodeRefMsg `json:"predecessor,omitempty"`
}

type GetSuccessorListRequest struct {
	CallerID []byte `json:"caller_id"`
}
type GetSuccessorListResponse struct {
	Successors []NodeRefMsg `json:"successors"`
}

type NotifyRequest struct {
	Candidate NodeRefMsg `json:"candidate"`
}
type NotifyResponse struct{}

type FindSuccessorRequest struct {
	CallerID []byte `json:"caller_id"`
	Target   []byte `json:"target"`
}
type FindSuccessorResponse struct {
	Node  NodeRefMsg `json:"node"`
	Final bool       `json:"final"`
}

// --- DHT RPCs ---

// opaquePayload is the wire form of an opaque DHT value or intermediate
// byte string: the raw bytes are packed into a wrapperspb.BytesValue,
// that message is packed into an anypb.Any (anypb.New populates the type
// URL via the message's reflection descriptor), and the Any itself is
// proto-marshaled to bytes. Packed carries that proto-encoded Any, so the
// JSON frame never sees the raw value directly.
type opaquePayload struct {
	Packed []byte `json:"packed"`
}

func wrapPayload(b []byte) opaquePayload {
	any, err := anypb.New(wrapperspb.Bytes(b))
	if err != nil {
		// wrapperspb.BytesValue always reflects cleanly; anypb.New only
		// fails for messages it can't resolve a type URL for.
		panic(fmt.Sprintf("rpc: pack payload: %v", err))
	}
	packed, err := proto.Marshal(any)
	if err != nil {
		panic(fmt.Sprintf("rpc: marshal payload envelope: %v", err))
	}
	return opaquePayload{Packed: packed}
}

// unwrap reverses wrapPayload: unmarshal the proto-encoded Any, then
// unpack the BytesValue it carries.
func (p opaquePayload) unwrap() ([]byte, error) {
	var env anypb.Any
	if err := proto.Unmarshal(p.Packed, &env); err != nil {
		return nil, fmt.Errorf("rpc: unmarshal payload envelope: %w", err)
	}
	var bv wrapperspb.BytesValue
	if err := env.UnmarshalTo(&bv); err != nil {
		return nil, fmt.Errorf("rpc: unpack payload: %w", err)
	}
	return bv.GetValue(), nil
}

type DHTPutRequest struct {
	RawKey   []byte        `json:"raw_key"`
	Value    opaquePayload `json:"value"`
	WriterID []byte        `json:"writer_id"`
}
type DHTPutResponse struct {
	Version   uint64 `json:"version"`
	WriterID  []byte `json:"writer_id"`
	UpdatedAt int64  `json:"updated_at_unix_nano"`
}

type DHTReplicateRequest struct {
	Key       []byte        `json:"key"`
	RawKey    []byte        `json:"raw_key"`
	Value     opaquePayload `json:"value"`
	Version   uint64        `json:"version"`
	WriterID  []byte        `json:"writer_id"`
	UpdatedAt int64         `json:"updated_at_unix_nano"`
}
type DHTReplicateResponse struct{}

type DHTGetRequest struct {
	RawKey []byte `json:"raw_key"`
}
type DHTGetResponse struct {
	Found     bool          `json:"found"`
	Value     opaquePayload `json:"value"`
	Version   uint64        `json:"version"`
	WriterID  []byte        `json:"writer_id"`
	UpdatedAt int64         `json:"updated_at_unix_nano"`
}

type DHTDeleteRequest struct {
	RawKey []byte `json:"raw_key"`
}
type DHTDeleteResponse struct{}

type DHTKeysRequest struct {
	Prefix []byte `json:"prefix"`
}

// DHTKeysChunk is one frame of the server-streaming Keys RPC: a node can
// hold an arbitrary number of matching keys, so they're streamed in
// batches instead of collected into one unary response.
type DHTKeysChunk struct {
	Keys [][]byte `json:"keys"`
}

// --- Coordinator -> worker task RPCs ---

type RunMapRequest struct {
	JobID     string `json:"job_id"`
	TaskIndex int    `json:"task_index"`
	ChunkKey  string `json:"chunk_key"`
	KernelKey string `json:"kernel_key"`
	Attempt   int    `json:"attempt"`
	WorkerID  string `json:"worker_id"`
}
type RunMapResponse struct {
	Accepted bool `json:"accepted"`
}

type RunReduceRequest struct {
	JobID     string `json:"job_id"`
	TaskIndex int    `json:"task_index"`
	InterKeys [][]byte `json:"inter_keys"`
	OutKey    []byte `json:"out_key"`
	KernelKey string `json:"kernel_key"`
	Attempt   int    `json:"attempt"`
	WorkerID  string `json:"worker_id"`
}
type RunReduceResponse struct {
	Accepted bool `json:"accepted"`
}

type TaskStatusRequest struct {
	JobID     string `json:"job_id"`
	TaskIndex int    `json:"task_index"`
}
type TaskStatusResponse struct {
	State string `json:"state"`
}
