package engine

import (
	"context"
	"encoding/json"

	"github.com/xela07ax/toolgate/internal/domain"
	"github.com/xela07ax/toolgate/internal/infra/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

/*
gRPC-транспорт шлюза. Контракт сознательно держим на structpb.Struct:
у агентных рантаймов аргументы инструментов — это и так произвольный JSON,
кодогенерация здесь ничего не добавляет, а дескриптор сервиса пишется руками.

  service toolgate.v1.Gateway {
    rpc Invoke(google.protobuf.Struct) returns (google.protobuf.Struct);
  }

Запрос:  {"capability": "db.read_orders", "args": {...}}
Ответ:   {"result": {...}}
*/

const grpcServiceName = "toolgate.v1.Gateway"

type GRPCServer struct {
	core *Core
}

func NewGRPCServer(core *Core) *GRPCServer {
	return &GRPCServer{core: core}
}

// Register вешает сервис на grpc.Server по рукописному дескриптору
func (s *GRPCServer) Register(srv *grpc.Server) {
	srv.RegisterService(&gatewayServiceDesc, s)
}

var gatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invoke",
			Handler:    invokeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "toolgate/v1/gateway.proto",
}

func invokeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*GRPCServer).invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + grpcServiceName + "/Invoke",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*GRPCServer).invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func (s *GRPCServer) invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no agent session")
	}

	fields := req.GetFields()
	capName := fields["capability"].GetStringValue()
	if capName == "" {
		return nil, status.Error(codes.InvalidArgument, "request must carry a capability name")
	}

	args := []byte(`{}`)
	if argsVal, ok := fields["args"]; ok {
		raw, err := argsVal.MarshalJSON()
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "args is not a valid structure")
		}
		args = raw
	}

	result, callErr := s.core.ProcessCall(ctx, session, capName, args)
	if callErr != nil {
		return nil, grpcStatus(callErr)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(result, &parsed); err != nil {
		// Адаптер вернул не-объект (строку, массив) — заворачиваем
		parsed = map[string]interface{}{"value": string(result)}
	}
	out, err := structpb.NewStruct(map[string]interface{}{"result": parsed})
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode result")
	}
	return out, nil
}

// grpcStatus транслирует доменную классификацию в коды gRPC
func grpcStatus(e *domain.Error) error {
	var code codes.Code
	switch e.Kind {
	case domain.ErrInvalidToken:
		code = codes.Unauthenticated
	case domain.ErrPolicyDenied:
		code = codes.PermissionDenied
	case domain.ErrUnknownCapability:
		code = codes.NotFound
	case domain.ErrPayloadTooLarge, domain.ErrInvalidArgs:
		code = codes.InvalidArgument
	case domain.ErrRateLimited:
		code = codes.ResourceExhausted
	case domain.ErrTimeout:
		code = codes.DeadlineExceeded
	case domain.ErrCircuitOpen, domain.ErrAuditDegraded:
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return status.Error(code, string(e.Kind)+": "+e.Reason)
}
