package api

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Имена gRPC-сервиса. Запрос и ответ передаются как google.protobuf.Struct:
// {"operation": "...", "variables": {...}} и data соответственно.
const (
	GRPCServiceName   = "crm.v1.CRMService"
	GRPCMethodExecute = "/crm.v1.CRMService/Execute"
)

// CRMServiceServer - серверная сторона crm.v1.CRMService.
type CRMServiceServer interface {
	Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// CRMServiceDesc описывает crm.v1.CRMService для grpc.Server.
var CRMServiceDesc = grpc.ServiceDesc{
	ServiceName: GRPCServiceName,
	HandlerType: (*CRMServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: executeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "crm/v1/crm.proto",
}

func executeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CRMServiceServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GRPCMethodExecute}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CRMServiceServer).Execute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterCRMServiceServer регистрирует реализацию на сервере.
func RegisterCRMServiceServer(s grpc.ServiceRegistrar, srv CRMServiceServer) {
	s.RegisterService(&CRMServiceDesc, srv)
}

// GRPCServer реализует CRMServiceServer через Dispatcher.
type GRPCServer struct {
	dispatcher *Dispatcher
}

// NewGRPCServer создаёт gRPC-обработчик.
func NewGRPCServer(dispatcher *Dispatcher) *GRPCServer {
	return &GRPCServer{dispatcher: dispatcher}
}

// Execute исполняет операцию из запроса.
func (s *GRPCServer) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	operation := req.GetFields()["operation"].GetStringValue()
	if operation == "" {
		return nil, status.Error(codes.InvalidArgument, "operation is required")
	}

	var variables json.RawMessage
	if v, ok := req.GetFields()["variables"]; ok {
		raw, err := protojson.Marshal(v)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid variables: %v", err)
		}
		variables = raw
	}

	data, err := s.dispatcher.Execute(ctx, TransportGRPC, Request{Operation: operation, Variables: variables})
	if err != nil {
		apiErr := toError(err)
		return nil, status.Error(apiErr.Kind.GRPCCode(), apiErr.Message)
	}

	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}
