package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesName(t *testing.T) {
	exact := PolicyRule{Pattern: "db.read_orders"}
	assert.True(t, exact.MatchesName("db.read_orders"))
	assert.False(t, exact.MatchesName("db.read_users"))
	assert.False(t, exact.MatchesName("db.read_orders_v2"))

	prefix := PolicyRule{Pattern: "web.*"}
	assert.True(t, prefix.MatchesName("web.search"))
	assert.True(t, prefix.MatchesName("web.fetch"))
	assert.False(t, prefix.MatchesName("webhook.fire")) // Только граница неймспейса
	assert.False(t, prefix.MatchesName("web"))
}

func TestCheckConstraintsIn(t *testing.T) {
	rule := PolicyRule{
		ID:         "r1",
		Conditions: json.RawMessage(`{"constraints":[{"field":"table","in":["orders","invoices"]}]}`),
	}

	require.NoError(t, rule.CheckConstraints(map[string]interface{}{"table": "orders"}))
	require.Error(t, rule.CheckConstraints(map[string]interface{}{"table": "users"}))
	// Отсутствие поля — отказ, а не пропуск проверки
	require.Error(t, rule.CheckConstraints(map[string]interface{}{}))
	require.Error(t, rule.CheckConstraints(nil))
}

func TestCheckConstraintsPrefix(t *testing.T) {
	rule := PolicyRule{
		Conditions: json.RawMessage(`{"constraints":[{"field":"path","prefix":"ingest/"}]}`),
	}

	require.NoError(t, rule.CheckConstraints(map[string]interface{}{"path": "ingest/2024/dump.csv"}))
	require.Error(t, rule.CheckConstraints(map[string]interface{}{"path": "../etc/passwd"}))
}

func TestCheckConstraintsMax(t *testing.T) {
	rule := PolicyRule{
		Conditions: json.RawMessage(`{"constraints":[{"field":"limit","max":100}]}`),
	}

	require.NoError(t, rule.CheckConstraints(map[string]interface{}{"limit": float64(100)}))
	require.Error(t, rule.CheckConstraints(map[string]interface{}{"limit": float64(101)}))
	require.Error(t, rule.CheckConstraints(map[string]interface{}{"limit": "100"}))
}

func TestCheckConstraintsMalformedJSON(t *testing.T) {
	rule := PolicyRule{Conditions: json.RawMessage(`{broken`)}
	// Битый JSON условий это отказ правила, а не молчаливый ALLOW
	require.Error(t, rule.CheckConstraints(map[string]interface{}{"any": "x"}))
}

func TestCapabilityValidate(t *testing.T) {
	valid := Capability{
		Name: "web.search", Risk: RiskRead, Adapter: "web",
		Timeout: 1, MaxPayload: 1,
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name string
		mut  func(c *Capability)
	}{
		{"no namespace", func(c *Capability) { c.Name = "search" }},
		{"uppercase", func(c *Capability) { c.Name = "Web.Search" }},
		{"bad risk", func(c *Capability) { c.Risk = "extreme" }},
		{"no adapter", func(c *Capability) { c.Adapter = "" }},
		{"zero timeout", func(c *Capability) { c.Timeout = 0 }},
		{"zero payload limit", func(c *Capability) { c.MaxPayload = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.mut(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestCapabilityRetryable(t *testing.T) {
	assert.True(t, (&Capability{Risk: RiskRead}).Retryable())
	assert.False(t, (&Capability{Risk: RiskWrite}).Retryable())
	// Write повторяем только при явной пометке идемпотентности
	assert.True(t, (&Capability{Risk: RiskWrite, Idempotent: true}).Retryable())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("research")
	require.NoError(t, err)
	assert.Equal(t, RoleResearch, r)

	_, err = ParseRole("superuser")
	require.Error(t, err)
}
