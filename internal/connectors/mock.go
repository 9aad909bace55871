package connectors

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// MockAdapter имитирует внешние системы для dev-окружения и прогонов.
type MockAdapter struct{}

func (c *MockAdapter) Execute(ctx context.Context, capName string, args []byte) ([]byte, error) {
	// Имитируем задержку 50-300мс
	latency := time.Duration(50+rand.IntN(250)) * time.Millisecond

	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	switch capName {
	case "mock.unstable":
		return nil, fmt.Errorf("service internal error")
	case "db.read_orders":
		return []byte(`{"status": "success", "rows": [{"id": 1, "total": 5000}]}`), nil
	case "kb.upsert":
		return []byte(`{"status": "upserted", "doc_id": "KB-42"}`), nil
	case "web.search":
		return []byte(`{"results": [{"rank": 1, "title": "stub", "url": "https://example.com"}]}`), nil
	default:
		return nil, fmt.Errorf("capability %s not supported by mock connector", capName)
	}
}
