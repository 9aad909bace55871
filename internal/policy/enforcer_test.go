package policy

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/toolgate/internal/domain"
	"go.uber.org/zap"
)

type stubRuleRepo struct {
	rules []domain.PolicyRule
	err   error
}

func (s *stubRuleRepo) GetAllRules(_ context.Context) ([]domain.PolicyRule, error) {
	return s.rules, s.err
}

func newEnforcer(t *testing.T, rules ...domain.PolicyRule) *MemoEnforcer {
	t.Helper()
	e := NewMemoEnforcer(&stubRuleRepo{rules: rules}, zap.NewNop())
	require.NoError(t, e.Refresh(context.Background()))
	return e
}

func session(role domain.Role) *domain.AgentSession {
	return &domain.AgentSession{AgentID: "agent-1", Role: role, TenantID: "t1", SessionID: "s1"}
}

func readCap(name string) *domain.Capability {
	return &domain.Capability{Name: name, Risk: domain.RiskRead, Adapter: "mock", Timeout: 1, MaxPayload: 1024}
}

func writeCap(name string) *domain.Capability {
	return &domain.Capability{Name: name, Risk: domain.RiskWrite, Adapter: "mock", Timeout: 1, MaxPayload: 1024}
}

func TestAuthorizeDefaultDeny(t *testing.T) {
	e := newEnforcer(t) // Ни одного правила

	d := e.Authorize(session(domain.RoleResearch), readCap("db.read_orders"), nil)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "no rule grants")
}

func TestAuthorizeRoleIsolation(t *testing.T) {
	e := newEnforcer(t, domain.PolicyRule{
		ID: "r1", Role: domain.RoleDB, Pattern: "db.read_orders", Effect: domain.EffectAllow,
	})

	// Правило чужой роли не дает ничего
	assert.False(t, e.Authorize(session(domain.RoleResearch), readCap("db.read_orders"), nil).Allowed)
	assert.True(t, e.Authorize(session(domain.RoleDB), readCap("db.read_orders"), nil).Allowed)
}

func TestAuthorizePrefixPattern(t *testing.T) {
	e := newEnforcer(t, domain.PolicyRule{
		ID: "r1", Role: domain.RoleResearch, Pattern: "web.*", Effect: domain.EffectAllow,
	})

	assert.True(t, e.Authorize(session(domain.RoleResearch), readCap("web.search"), nil).Allowed)
	assert.True(t, e.Authorize(session(domain.RoleResearch), readCap("web.fetch"), nil).Allowed)
	assert.False(t, e.Authorize(session(domain.RoleResearch), readCap("webhook.fire"), nil).Allowed)
}

func TestAuthorizeExplicitDenyShortCircuits(t *testing.T) {
	e := newEnforcer(t,
		domain.PolicyRule{ID: "r1", Role: domain.RoleResearch, Pattern: "web.fetch", Effect: domain.EffectDeny, Ordinal: 1},
		domain.PolicyRule{ID: "r2", Role: domain.RoleResearch, Pattern: "web.*", Effect: domain.EffectAllow, Ordinal: 2},
	)

	d := e.Authorize(session(domain.RoleResearch), readCap("web.fetch"), nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, "r1", d.RuleID)

	// Остальной неймспейс широкое правило по-прежнему разрешает
	assert.True(t, e.Authorize(session(domain.RoleResearch), readCap("web.search"), nil).Allowed)
}

func TestAuthorizeWriteRequiresExplicitGrant(t *testing.T) {
	e := newEnforcer(t,
		domain.PolicyRule{ID: "r1", Role: domain.RoleRAG, Pattern: "kb.*", Effect: domain.EffectAllow, Ordinal: 1},
		domain.PolicyRule{ID: "r2", Role: domain.RoleIngest, Pattern: "kb.upsert", Effect: domain.EffectAllow, AllowWrite: true, Ordinal: 1},
	)

	// Совпавший шаблон без write-гранта не пропускает write-класс
	d := e.Authorize(session(domain.RoleRAG), writeCap("kb.upsert"), nil)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "write-class")

	// Read из того же неймспейса — без особых грантов
	assert.True(t, e.Authorize(session(domain.RoleRAG), readCap("kb.search"), nil).Allowed)

	assert.True(t, e.Authorize(session(domain.RoleIngest), writeCap("kb.upsert"), nil).Allowed)
}

func TestAuthorizeConstraints(t *testing.T) {
	e := newEnforcer(t, domain.PolicyRule{
		ID: "r1", Role: domain.RoleResearch, Pattern: "db.read_orders", Effect: domain.EffectAllow,
		Conditions: json.RawMessage(`{"constraints":[{"field":"table","in":["orders"]}]}`),
	})

	okArgs := []byte(`{"table":"orders"}`)
	badArgs := []byte(`{"table":"users"}`)

	assert.True(t, e.Authorize(session(domain.RoleResearch), readCap("db.read_orders"), okArgs).Allowed)

	d := e.Authorize(session(domain.RoleResearch), readCap("db.read_orders"), badArgs)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "not in the allowed set")
}

func TestAuthorizeConstraintFailureFallsThrough(t *testing.T) {
	// Первое правило с условием не прошло — выигрывает следующее по порядку
	e := newEnforcer(t,
		domain.PolicyRule{
			ID: "r1", Role: domain.RoleDB, Pattern: "db.*", Effect: domain.EffectAllow, Ordinal: 1,
			Conditions: json.RawMessage(`{"constraints":[{"field":"table","in":["orders"]}]}`),
		},
		domain.PolicyRule{ID: "r2", Role: domain.RoleDB, Pattern: "db.read_users", Effect: domain.EffectAllow, Ordinal: 2},
	)

	d := e.Authorize(session(domain.RoleDB), readCap("db.read_users"), []byte(`{"table":"users"}`))
	assert.True(t, d.Allowed)
	assert.Equal(t, "r2", d.RuleID)
}

func TestAuthorizeDeterministicOrdering(t *testing.T) {
	rules := []domain.PolicyRule{
		{ID: "allow", Role: domain.RoleDB, Pattern: "db.read_orders", Effect: domain.EffectAllow, Ordinal: 2},
		{ID: "deny", Role: domain.RoleDB, Pattern: "db.read_orders", Effect: domain.EffectDeny, Ordinal: 1},
	}

	// Порядок подачи не важен: решает Ordinal
	for range 5 {
		e := newEnforcer(t, rules...)
		d := e.Authorize(session(domain.RoleDB), readCap("db.read_orders"), nil)
		assert.False(t, d.Allowed)
		assert.Equal(t, "deny", d.RuleID)
		rules[0], rules[1] = rules[1], rules[0]
	}
}

func TestPermits(t *testing.T) {
	e := newEnforcer(t,
		domain.PolicyRule{ID: "r1", Role: domain.RoleResearch, Pattern: "web.*", Effect: domain.EffectAllow, Ordinal: 1},
		domain.PolicyRule{ID: "r2", Role: domain.RoleResearch, Pattern: "files.read", Effect: domain.EffectDeny, Ordinal: 2},
	)

	assert.True(t, e.Permits(domain.RoleResearch, readCap("web.search")))
	assert.False(t, e.Permits(domain.RoleResearch, readCap("files.read")))
	assert.False(t, e.Permits(domain.RoleResearch, readCap("db.read_orders")))
	// Write без AllowWrite невидим и в каталоге
	assert.False(t, e.Permits(domain.RoleResearch, writeCap("web.submit")))
}

func TestRefreshPropagatesRepoError(t *testing.T) {
	repo := &stubRuleRepo{err: assert.AnError}
	e := NewMemoEnforcer(repo, zap.NewNop())
	require.Error(t, e.Refresh(context.Background()))
}
