package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Полное имя метода коннектора. Сообщения — динамические structpb.Struct,
// поэтому новые инструменты не требуют перегенерации protobuf-кода.
const connectorExecuteMethod = "/toolgate.connector.v1.Connector/Execute"

// GRPCAdapter гонит вызов во внешний gRPC-коннектор (Jira, CRM, KB и т.п.).
type GRPCAdapter struct {
	conn *grpc.ClientConn
}

// NewGRPCAdapter создает экземпляр адаптера поверх готового соединения
func NewGRPCAdapter(conn *grpc.ClientConn) *GRPCAdapter {
	return &GRPCAdapter{conn: conn}
}

// Execute реализует интерфейс Adapter.
func (a *GRPCAdapter) Execute(ctx context.Context, capName string, args []byte) ([]byte, error) {
	// 1. JSON-байты -> динамический Protobuf Struct
	var m map[string]interface{}
	if err := json.Unmarshal(args, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	req, err := structpb.NewStruct(map[string]interface{}{
		"capability": capName,
		"args":       m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build proto struct: %w", err)
	}

	// 2. Вызов коннектора. Дедлайн уже в ctx — его выставил Resilience-слой.
	resp := &structpb.Struct{}
	if err := a.conn.Invoke(ctx, connectorExecuteMethod, req, resp); err != nil {
		// Троттлинг бэкенда транслируем в ThrottleError для умного бэкоффа
		if status.Code(err) == codes.ResourceExhausted {
			return nil, &ThrottleError{RetryAfter: time.Second, Cause: err}
		}
		return nil, fmt.Errorf("connector call failed: %w", err)
	}

	// 3. Проверяем статус внутри ответа
	fields := resp.AsMap()
	if msg, ok := fields["error"].(string); ok && msg != "" {
		return nil, fmt.Errorf("connector returned error: %s", msg)
	}

	// 4. Результат обратно в JSON для шлюза
	result, ok := fields["result"]
	if !ok {
		result = map[string]interface{}{}
	}
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return resultBytes, nil
}
