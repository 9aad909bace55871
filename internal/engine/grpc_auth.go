package engine

import (
	"context"
	"strings"

	"github.com/xela07ax/toolgate/internal/infra/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryAuthInterceptor — gRPC-аналог агентского HTTP middleware:
// достает Bearer из metadata, проверяет подпись и кладет сессию в контекст.
func UnaryAuthInterceptor(validator auth.AgentValidator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing request metadata")
		}

		vals := md.Get("authorization")
		if len(vals) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization metadata")
		}
		token := strings.TrimPrefix(vals[0], "Bearer ")
		if token == "" || token == vals[0] {
			return nil, status.Error(codes.Unauthenticated, "authorization must be a bearer token")
		}

		session, err := validator.VerifyAgentToken(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid agent token")
		}

		return handler(auth.ContextWithSession(ctx, session), req)
	}
}
