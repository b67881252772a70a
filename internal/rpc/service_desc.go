package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the gRPC service name chordmr registers under. There is
// no .proto file: this package hand-writes the grpc.ServiceDesc that
// protoc-gen-go-grpc would otherwise generate, using the json codec from
// codec.go in place of protobuf wire encoding. See DESIGN.md's "RPC wire
// format" entry for why.
const ServiceName = "chordmr.rpc.Node"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: pingHandler},
		{MethodName: "GetPredecessor", Handler: getPredecessorHandler},
		{MethodName: "GetSuccessorList", Handler: getSuccessorListHandler},
		{MethodName: "Notify", Handler: notifyHandler},
		{MethodName: "FindSuccessor", Handler: findSuccessorHandler},
		{MethodName: "DHTPut", Handler: dhtPutHandler},
		{MethodName: "DHTReplicate", Handler: dhtReplicateHandler},
		{MethodName: "DHTGet", Handler: dhtGetHandler},
		{MethodName: "DHTDelete", Handler: dhtDeleteHandler},
		{MethodName: "RunMap", Handler: runMapHandler},
		{MethodName: "RunReduce", Handler: runReduceHandler},
		{MethodName: "TaskStatus", Handler: taskStatusHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "DHTKeys", Handler: dhtKeysHandler, ServerStreams: true},
	},
	Metadata: "chordmr/internal/rpc/service.proto",
}

// methodPath builds the "/service/method" string grpc.ClientConn.Invoke
// and NewStream expect, matching what protoc-gen-go-grpc would embed as a
// constant.
func methodPath(method string) string {
	return "/" + ServiceName + "/" + method
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(PingRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.handlePing(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: methodPath("Ping")}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.handlePing(ctx, req.(*PingRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func getPredecessorHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(GetPredecessorRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.handleGetPredecessor(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: methodPath("GetPredecessor")}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.handleGetPredecessor(ctx, req.(*GetPredecessorRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func getSuccessorListHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(GetSuccessorListRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.handleGetSuccessorList(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: methodPath("GetSuccessorList")}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.handleGetSuccessorList(ctx, req.(*GetSuccessorListRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func notifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(NotifyRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.handleNotify(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: methodPath("Notify")}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.handleNotify(ctx, req.(*NotifyRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func findSuccessorHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(FindSuccessorRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.handleFindSuccessor(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: methodPath("FindSuccessor")}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.handleFindSuccessor(ctx, req.(*FindSuccessorRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func dhtPutHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(DHTPutRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.handleDHTPut(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: methodPath("DHTPut")}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.handleDHTPut(ctx, req.(*DHTPutRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func dhtReplicateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(DHTReplicateRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.handleDHTReplicate(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: methodPath("DHTReplicate")}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.handleDHTReplicate(ctx, req.(*DHTReplicateRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func dhtGetHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(DHTGetRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.handleDHTGet(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: methodPath("DHTGet")}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.handleDHTGet(ctx, req.(*DHTGetRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func dhtDeleteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(DHTDeleteRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.handleDHTDelete(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: methodPath("DHTDelete")}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.handleDHTDelete(ctx, req.(*DHTDeleteRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func runMapHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(RunMapRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.handleRunMap(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: methodPath("RunMap")}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.handleRunMap(ctx, req.(*RunMapRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func runReduceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(RunReduceRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.handleRunReduce(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: methodPath("RunReduce")}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.handleRunReduce(ctx, req.(*RunReduceRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func taskStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(TaskStatusRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.handleTaskStatus(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: methodPath("TaskStatus")}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.handleTaskStatus(ctx, req.(*TaskStatusRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func dhtKeysHandler(srv any, stream grpc.ServerStream) error {
	req := new(DHTKeysRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	s := srv.(*Server)
	return s.handleDHTKeys(req, stream)
}
