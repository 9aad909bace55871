package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/toolgate/internal/domain"
	"go.uber.org/zap"
)

type stubProvider struct {
	caps []domain.Capability
	err  error
}

func (s *stubProvider) GetAllCapabilities(_ context.Context) ([]domain.Capability, error) {
	return s.caps, s.err
}

func cap(name, adapter string) domain.Capability {
	return domain.Capability{
		Name: name, Risk: domain.RiskRead, Adapter: adapter,
		Timeout: time.Second, MaxPayload: 1024,
	}
}

func TestRefreshAndResolve(t *testing.T) {
	provider := &stubProvider{caps: []domain.Capability{
		cap("web.search", "mock"),
		cap("db.read_orders", "mock"),
	}}
	r := New(provider, []string{"mock"}, zap.NewNop())

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, uint64(1), r.Version())

	c, ok := r.Resolve("web.search")
	require.True(t, ok)
	assert.Equal(t, "mock", c.Adapter)

	_, ok = r.Resolve("web.unknown")
	assert.False(t, ok)

	// List отдает стабильный алфавитный порядок
	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "db.read_orders", list[0].Name)
}

func TestLoadRejectsDuplicateName(t *testing.T) {
	r := New(&stubProvider{}, []string{"mock"}, zap.NewNop())
	require.NoError(t, r.Load([]domain.Capability{cap("web.search", "mock")}))

	err := r.Load([]domain.Capability{cap("web.search", "mock"), cap("web.search", "mock")})
	require.ErrorContains(t, err, "duplicate")

	// Действующий снапшот не тронут
	_, ok := r.Resolve("web.search")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), r.Version())
}

func TestLoadRejectsUnboundAdapter(t *testing.T) {
	r := New(&stubProvider{}, []string{"mock"}, zap.NewNop())
	err := r.Load([]domain.Capability{cap("jira.create", "jira")})
	require.ErrorContains(t, err, "not bound")
}

func TestLoadRejectsMalformedSchema(t *testing.T) {
	r := New(&stubProvider{}, []string{"mock"}, zap.NewNop())

	c := cap("web.search", "mock")
	c.ArgsSchema = json.RawMessage(`{"type": 42}`)
	err := r.Load([]domain.Capability{c})
	require.ErrorContains(t, err, "malformed args schema")
}

func TestLoadRejectsInvalidDefinition(t *testing.T) {
	r := New(&stubProvider{}, []string{"mock"}, zap.NewNop())

	c := cap("flatname", "mock") // Без неймспейса
	require.Error(t, r.Load([]domain.Capability{c}))
}

func TestValidateArgs(t *testing.T) {
	c := cap("web.search", "mock")
	c.ArgsSchema = json.RawMessage(`{
		"type": "object",
		"required": ["query"],
		"properties": {"query": {"type": "string"}}
	}`)

	r := New(&stubProvider{}, []string{"mock"}, zap.NewNop())
	require.NoError(t, r.Load([]domain.Capability{c, cap("web.fetch", "mock")}))

	require.NoError(t, r.ValidateArgs("web.search", []byte(`{"query":"golang"}`)))
	require.Error(t, r.ValidateArgs("web.search", []byte(`{"query":42}`)))
	require.Error(t, r.ValidateArgs("web.search", []byte(`{}`)))
	require.Error(t, r.ValidateArgs("web.search", []byte(`not json`)))

	// Без схемы проверка отсутствует, а не запрещает
	require.NoError(t, r.ValidateArgs("web.fetch", []byte(`{"anything":true}`)))
}

func TestRefreshKeepsSnapshotOnError(t *testing.T) {
	provider := &stubProvider{caps: []domain.Capability{cap("web.search", "mock")}}
	r := New(provider, []string{"mock"}, zap.NewNop())
	require.NoError(t, r.Refresh(context.Background()))

	provider.err = assert.AnError
	require.Error(t, r.Refresh(context.Background()))

	_, ok := r.Resolve("web.search")
	assert.True(t, ok)
}
