package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"chordmr/internal/chord"
	"chordmr/internal/dht"
	"chordmr/internal/errs"
	"chordmr/internal/ring"
)

// Pool dials peers on demand and caches the connections, grounded in the
// teacher's client2.Pool used throughout internal/node/chord. A single Pool
// backs chord.Transport, dht.Transport, and the worker task RPCs: all three
// dial the same address space, just different methods on the same service.
type Pool struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn

	dialOpts []grpc.DialOption
}

// NewPool builds a connection pool. dialOpts lets callers add interceptors
// (e.g. otelgrpc.NewClientHandler) without this package depending on
// telemetry.
func NewPool(dialOpts ...grpc.DialOption) *Pool {
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, dialOpts...)
	return &Pool{conns: make(map[string]*grpc.ClientConn), dialOpts: opts}
}

func (p *Pool) conn(addr string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[addr]; ok {
		return c, nil
	}
	c, err := grpc.NewClient(addr, p.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	p.conns[addr] = c
	return c, nil
}

// Close tears down every cached connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for addr, c := range p.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.conns, addr)
	}
	return firstErr
}

func (p *Pool) invoke(ctx context.Context, addr, method string, req, resp any) error {
	conn, err := p.conn(addr)
	if err != nil {
		return err
	}
	return conn.Invoke(ctx, methodPath(method), req, resp, grpc.CallContentSubtype(ContentSubtype))
}

// Client adapts Pool to chord.Transport, dht.Transport, and
// coordinator.WorkerTransport, so a single dialer backs every RPC surface
// chordmr defines.
type Client struct {
	pool *Pool
	self ring.ID
}

// NewClient builds a Client whose caller identity (used as caller_id on
// membership RPCs) is self.
func NewClient(pool *Pool, self ring.ID) *Client {
	return &Client{pool: pool, self: self}
}

// --- chord.Transport ---

var _ chord.Transport = (*Client)(nil)

func (c *Client) Ping(ctx context.Context, addr string) error {
	return c.pool.invoke(ctx, addr, "Ping", &PingRequest{CallerID: []byte(c.self)}, &PingResponse{})
}

func (c *Client) GetPredecessor(ctx context.Context, addr string) (chord.NodeRef, error) {
	resp := new(GetPredecessorResponse)
	if err := c.pool.invoke(ctx, addr, "GetPredecessor", &GetPredecessorRequest{CallerID: []byte(c.self)}, resp); err != nil {
		return chord.NodeRef{}, err
	}
	if resp.Predecessor == nil {
		return chord.NodeRef{}, nil
	}
	return fromNodeRefMsg(*resp.Predecessor), nil
}

func (c *Client) GetSuccessorList(ctx context.Context, addr string) ([]chord.NodeRef, error) {
	resp := new(GetSuccessorListResponse)
	if err := c.pool.invoke(ctx, addr, "GetSuccessorList", &GetSuccessorListRequest{CallerID: []byte(c.self)}, resp); err != nil {
		return nil, err
	}
	out := make([]chord.NodeRef, 0, len(resp.Successors))
	for _, m := range resp.Successors {
		out = append(out, fromNodeRefMsg(m))
	}
	return out, nil
}

func (c *Client) Notify(ctx context.Context, addr string, self chord.NodeRef) error {
	return c.pool.invoke(ctx, addr, "Notify", &NotifyRequest{Candidate: *toNodeRefMsg(self)}, &NotifyResponse{})
}

func (c *Client) FindSuccessor(ctx context.Context, addr string, target ring.ID) (chord.FindSuccessorResult, error) {
	resp := new(FindSuccessorResponse)
	req := &FindSuccessorRequest{CallerID: []byte(c.self), Target: []byte(target)}
	if err := c.pool.invoke(ctx, addr, "FindSuccessor", req, resp); err != nil {
		return chord.FindSuccessorResult{}, err
	}
	return chord.FindSuccessorResult{Node: fromNodeRefMsg(resp.Node), Final: resp.Final}, nil
}

// --- dht.Transport ---

var _ dht.Transport = (*Client)(nil)

func (c *Client) Put(ctx context.Context, addr string, rawKey []byte, value []byte, writer ring.ID) (dht.Entry, error) {
	resp := new(DHTPutResponse)
	req := &DHTPutRequest{RawKey: rawKey, Value: wrapPayload(value), WriterID: []byte(writer)}
	if err := c.pool.invoke(ctx, addr, "DHTPut", req, resp); err != nil {
		return dht.Entry{}, err
	}
	return dht.Entry{
		RawKey:    rawKey,
		Value:     value,
		Version:   resp.Version,
		WriterID:  ring.ID(resp.WriterID),
		UpdatedAt: time.Unix(0, resp.UpdatedAt),
	}, nil
}

func (c *Client) Replicate(ctx context.Context, addr string, e dht.Entry) error {
	req := &DHTReplicateRequest{
		Key:       []byte(e.Key),
		RawKey:    e.RawKey,
		Value:     wrapPayload(e.Value),
		Version:   e.Version,
		WriterID:  []byte(e.WriterID),
		UpdatedAt: e.UpdatedAt.UnixNano(),
	}
	return c.pool.invoke(ctx, addr, "DHTReplicate", req, &DHTReplicateResponse{})
}

func (c *Client) Get(ctx context.Context, addr string, rawKey []byte) (dht.Entry, error) {
	resp := new(DHTGetResponse)
	if err := c.pool.invoke(ctx, addr, "DHTGet", &DHTGetRequest{RawKey: rawKey}, resp); err != nil {
		return dht.Entry{}, err
	}
	if !resp.Found {
		return dht.Entry{}, fmt.Errorf("rpc: key %q: %w", rawKey, errs.ErrKeyNotFound)
	}
	value, err := resp.Value.unwrap()
	if err != nil {
		return dht.Entry{}, err
	}
	return dht.Entry{
		RawKey:    rawKey,
		Value:     value,
		Version:   resp.Version,
		WriterID:  ring.ID(resp.WriterID),
		UpdatedAt: time.Unix(0, resp.UpdatedAt),
	}, nil
}

func (c *Client) Delete(ctx context.Context, addr string, rawKey []byte) error {
	return c.pool.invoke(ctx, addr, "DHTDelete", &DHTDeleteRequest{RawKey: rawKey}, &DHTDeleteResponse{})
}

func (c *Client) Keys(ctx context.Context, addr string, prefix []byte) ([][]byte, error) {
	conn, err := c.pool.conn(addr)
	if err != nil {
		return nil, err
	}
	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], methodPath("DHTKeys"), grpc.CallContentSubtype(ContentSubtype))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&DHTKeysRequest{Prefix: prefix}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	var out [][]byte
	for {
		chunk := new(DHTKeysChunk)
		err := stream.RecvMsg(chunk)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, chunk.Keys...)
	}
	return out, nil
}

// --- worker task RPCs (consumed by internal/coordinator) ---

func (c *Client) RunMap(ctx context.Context, addr string, req RunMapRequest) error {
	return c.pool.invoke(ctx, addr, "RunMap", &req, &RunMapResponse{})
}

func (c *Client) RunReduce(ctx context.Context, addr string, req RunReduceRequest) error {
	return c.pool.invoke(ctx, addr, "RunReduce", &req, &RunReduceResponse{})
}

func (c *Client) TaskStatus(ctx context.Context, addr string, jobID string, taskIndex int) (string, error) {
	resp := new(TaskStatusResponse)
	req := &TaskStatusRequest{JobID: jobID, TaskIndex: taskIndex}
	if err := c.pool.invoke(ctx, addr, "TaskStatus", req, resp); err != nil {
		return "", err
	}
	return resp.State, nil
}
