package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/toolgate/internal/domain"
)

func testKeyPair(t *testing.T) (*Issuer, *BaseValidator) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return NewIssuer(key), NewBaseValidator(&key.PublicKey)
}

func testAgent() *domain.Agent {
	return &domain.Agent{
		ID: "agent-1", Name: "research-bot-3",
		Role: domain.RoleResearch, TenantID: "t1", Status: domain.StatusActive,
	}
}

func TestAgentTokenRoundtrip(t *testing.T) {
	issuer, validator := testKeyPair(t)

	resp, err := issuer.IssueAgentToken(testAgent(), 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)

	session, err := validator.VerifyAgentToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", session.AgentID)
	assert.Equal(t, domain.RoleResearch, session.Role)
	assert.Equal(t, "t1", session.TenantID)
	assert.NotEmpty(t, session.SessionID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), session.ExpiresAt, time.Minute)
}

func TestAgentTokenSessionIDUniquePerIssue(t *testing.T) {
	issuer, validator := testKeyPair(t)

	r1, err := issuer.IssueAgentToken(testAgent(), time.Minute)
	require.NoError(t, err)
	r2, err := issuer.IssueAgentToken(testAgent(), time.Minute)
	require.NoError(t, err)

	s1, err := validator.VerifyAgentToken(r1.AccessToken)
	require.NoError(t, err)
	s2, err := validator.VerifyAgentToken(r2.AccessToken)
	require.NoError(t, err)
	// Одна выдача = одна сессия
	assert.NotEqual(t, s1.SessionID, s2.SessionID)
}

func TestVerifyAgentTokenStripsBearer(t *testing.T) {
	issuer, validator := testKeyPair(t)
	resp, err := issuer.IssueAgentToken(testAgent(), time.Minute)
	require.NoError(t, err)

	_, err = validator.VerifyAgentToken("Bearer " + resp.AccessToken)
	require.NoError(t, err)
}

func TestVerifyAgentTokenRejectsExpired(t *testing.T) {
	issuer, validator := testKeyPair(t)

	resp, err := issuer.IssueAgentToken(testAgent(), -time.Minute)
	require.NoError(t, err)

	_, err = validator.VerifyAgentToken(resp.AccessToken)
	require.Error(t, err)
}

func TestVerifyAgentTokenRejectsMalformed(t *testing.T) {
	_, validator := testKeyPair(t)
	_, err := validator.VerifyAgentToken("not-a-jwt")
	require.Error(t, err)
}

func TestVerifyAgentTokenRejectsForeignSignature(t *testing.T) {
	issuer, _ := testKeyPair(t)
	_, otherValidator := testKeyPair(t) // Другая пара ключей

	resp, err := issuer.IssueAgentToken(testAgent(), time.Minute)
	require.NoError(t, err)

	_, err = otherValidator.VerifyAgentToken(resp.AccessToken)
	require.Error(t, err)
}

func TestVerifyAgentTokenRejectsUnknownRole(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	validator := NewBaseValidator(&key.PublicKey)

	claims := &domain.AgentClaims{
		Role: "superuser", TenantID: "t1", SessionID: "s1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "agent-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	_, err = validator.VerifyAgentToken(signed)
	require.Error(t, err)
}

func TestVerifyAgentTokenRequiresExpiration(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	validator := NewBaseValidator(&key.PublicKey)

	// Токен без exp отклоняется, даже с валидной подписью
	claims := &domain.AgentClaims{
		Role: "research", TenantID: "t1", SessionID: "s1",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "agent-1"},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	_, err = validator.VerifyAgentToken(signed)
	require.Error(t, err)
}

func TestConsoleTokenRoundtrip(t *testing.T) {
	issuer, validator := testKeyPair(t)

	user := &domain.User{ID: "u1", Username: "sec-ops", Scopes: map[string]bool{"admin": true}}
	resp, err := issuer.IssueConsoleToken(user, time.Hour)
	require.NoError(t, err)

	claims, err := validator.VerifyConsoleToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.True(t, claims.Scopes["admin"])
}
