package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/toolgate/internal/audit"
	"github.com/xela07ax/toolgate/internal/domain"
	"github.com/xela07ax/toolgate/internal/policy"
	"github.com/xela07ax/toolgate/internal/registry"
	"go.uber.org/zap"
)

// --- Фейки конвейера ---

type capProvider struct{ caps []domain.Capability }

func (p *capProvider) GetAllCapabilities(_ context.Context) ([]domain.Capability, error) {
	return p.caps, nil
}

type allowAll struct{}

func (allowAll) Authorize(*domain.AgentSession, *domain.Capability, []byte) domain.Decision {
	return domain.Decision{Allowed: true, RuleID: "r1", Reason: "granted"}
}

type denyAll struct{}

func (denyAll) Authorize(*domain.AgentSession, *domain.Capability, []byte) domain.Decision {
	return domain.Decision{Allowed: false, Reason: "role has no grants"}
}

type fakeInvoker struct {
	mu    sync.Mutex
	calls int
	data  []byte
	err   error
}

func (f *fakeInvoker) Invoke(_ context.Context, _ *domain.Capability, _ string, _ []byte) (*Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &Result{Data: f.data, Attempts: 1}, nil
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (m *memRecorder) Record(rec audit.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

func (m *memRecorder) last(t *testing.T) audit.Record {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.records, 1, "every call must produce exactly one audit record")
	return m.records[0]
}

func testRegistry(t *testing.T, caps ...domain.Capability) *registry.Registry {
	t.Helper()
	r := registry.New(&capProvider{caps: caps}, []string{"mock"}, zap.NewNop())
	require.NoError(t, r.Refresh(context.Background()))
	return r
}

func testSession() *domain.AgentSession {
	return &domain.AgentSession{
		AgentID: "agent-1", Role: domain.RoleResearch,
		TenantID: "t1", SessionID: "sess-1", RequestID: "req-1",
	}
}

func searchCap() domain.Capability {
	return domain.Capability{
		Name: "web.search", Risk: domain.RiskRead, Adapter: "mock",
		Timeout: time.Second, MaxPayload: 256,
		ArgsSchema: json.RawMessage(`{"type":"object","required":["query"],"properties":{"query":{"type":"string"}}}`),
	}
}

func newTestCore(t *testing.T, pdp policy.Enforcer, invoker Invoker, auditor audit.Recorder, caps ...domain.Capability) *Core {
	t.Helper()
	return NewCore(testRegistry(t, caps...), pdp, invoker, auditor, nil, NewMetrics(nil), zap.NewNop())
}

func trailStates(rec audit.Record) []string {
	states := make([]string, 0, len(rec.Trail))
	for _, sc := range rec.Trail {
		states = append(states, sc.State)
	}
	return states
}

// --- Тесты конвейера ---

func TestProcessCallSuccess(t *testing.T) {
	invoker := &fakeInvoker{data: []byte(`{"hits":[]}`)}
	auditor := &memRecorder{}
	core := newTestCore(t, allowAll{}, invoker, auditor, searchCap())

	data, callErr := core.ProcessCall(context.Background(), testSession(), "web.search", []byte(`{"query":"go"}`))
	require.Nil(t, callErr)
	assert.JSONEq(t, `{"hits":[]}`, string(data))
	assert.Equal(t, 1, invoker.callCount())

	rec := auditor.last(t)
	assert.Equal(t, audit.OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, "agent-1", rec.AgentID)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, []string{"received", "authorizing", "authorized", "executing", "succeeded"}, trailStates(rec))
}

func TestProcessCallUnknownCapability(t *testing.T) {
	invoker := &fakeInvoker{}
	auditor := &memRecorder{}
	core := newTestCore(t, allowAll{}, invoker, auditor, searchCap())

	_, callErr := core.ProcessCall(context.Background(), testSession(), "web.teleport", []byte(`{}`))
	require.NotNil(t, callErr)
	assert.Equal(t, domain.ErrUnknownCapability, callErr.Kind)
	// Неизвестный инструмент не доходит до адаптера
	assert.Equal(t, 0, invoker.callCount())

	rec := auditor.last(t)
	assert.Equal(t, audit.OutcomeDenied, rec.Outcome)
	assert.Equal(t, string(domain.ErrUnknownCapability), rec.ErrorKind)
	assert.Equal(t, 0, rec.Attempts)
}

func TestProcessCallPolicyDenied(t *testing.T) {
	invoker := &fakeInvoker{}
	auditor := &memRecorder{}
	core := newTestCore(t, denyAll{}, invoker, auditor, searchCap())

	_, callErr := core.ProcessCall(context.Background(), testSession(), "web.search", []byte(`{"query":"go"}`))
	require.NotNil(t, callErr)
	assert.Equal(t, domain.ErrPolicyDenied, callErr.Kind)
	// Отказ политики = ноль обращений к бэкенду
	assert.Equal(t, 0, invoker.callCount())

	rec := auditor.last(t)
	assert.Equal(t, audit.OutcomeDenied, rec.Outcome)
	assert.Equal(t, []string{"received", "authorizing", "denied"}, trailStates(rec))
}

func TestProcessCallPayloadTooLarge(t *testing.T) {
	invoker := &fakeInvoker{}
	auditor := &memRecorder{}
	core := newTestCore(t, allowAll{}, invoker, auditor, searchCap())

	big := []byte(`{"query":"` + string(make([]byte, 300)) + `"}`)
	_, callErr := core.ProcessCall(context.Background(), testSession(), "web.search", big)
	require.NotNil(t, callErr)
	assert.Equal(t, domain.ErrPayloadTooLarge, callErr.Kind)
	assert.Equal(t, 0, invoker.callCount())
	assert.Equal(t, audit.OutcomeDenied, auditor.last(t).Outcome)
}

func TestProcessCallInvalidArgs(t *testing.T) {
	invoker := &fakeInvoker{}
	auditor := &memRecorder{}
	core := newTestCore(t, allowAll{}, invoker, auditor, searchCap())

	_, callErr := core.ProcessCall(context.Background(), testSession(), "web.search", []byte(`{"query":42}`))
	require.NotNil(t, callErr)
	assert.Equal(t, domain.ErrInvalidArgs, callErr.Kind)
	assert.Equal(t, 0, invoker.callCount())
}

func TestProcessCallAdapterFailure(t *testing.T) {
	invoker := &fakeInvoker{err: domain.E(domain.ErrAdapterFailure, "backend call failed")}
	auditor := &memRecorder{}
	core := newTestCore(t, allowAll{}, invoker, auditor, searchCap())

	_, callErr := core.ProcessCall(context.Background(), testSession(), "web.search", []byte(`{"query":"go"}`))
	require.NotNil(t, callErr)
	assert.Equal(t, domain.ErrAdapterFailure, callErr.Kind)

	rec := auditor.last(t)
	assert.Equal(t, audit.OutcomeFailed, rec.Outcome)
	assert.Equal(t, []string{"received", "authorizing", "authorized", "executing", "failed"}, trailStates(rec))
}

func TestProcessCallTimeout(t *testing.T) {
	timeoutErr := domain.E(domain.ErrTimeout, "deadline exceeded after 2 attempt(s)")
	timeoutErr.OutcomeUnknown = true
	invoker := &fakeInvoker{err: timeoutErr}
	auditor := &memRecorder{}
	core := newTestCore(t, allowAll{}, invoker, auditor, searchCap())

	_, callErr := core.ProcessCall(context.Background(), testSession(), "web.search", []byte(`{"query":"go"}`))
	require.NotNil(t, callErr)
	assert.Equal(t, domain.ErrTimeout, callErr.Kind)

	rec := auditor.last(t)
	assert.Equal(t, audit.OutcomeTimedOut, rec.Outcome)
	// Исход write-таймаута помечен как неизвестный, а не как отказ
	assert.True(t, rec.OutcomeUnknown)
	assert.Equal(t, []string{"received", "authorizing", "authorized", "executing", "timed_out"}, trailStates(rec))
}

func TestErrorKindHTTPStatus(t *testing.T) {
	cases := map[domain.ErrorKind]int{
		domain.ErrInvalidToken:      401,
		domain.ErrPolicyDenied:      403,
		domain.ErrUnknownCapability: 404,
		domain.ErrPayloadTooLarge:   413,
		domain.ErrInvalidArgs:       400,
		domain.ErrRateLimited:       429,
		domain.ErrTimeout:           504,
		domain.ErrCircuitOpen:       503,
		domain.ErrAdapterFailure:    502,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.HTTPStatus(), string(kind))
	}
}
