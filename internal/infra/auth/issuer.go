package auth

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/xela07ax/toolgate/internal/domain"
)

// Issuer подписывает токены закрытым ключом RS256. Живет только в консоли:
// шлюз токены проверяет, но никогда не выпускает.
type Issuer struct {
	privateKey *rsa.PrivateKey
}

func NewIssuer(privateKey *rsa.PrivateKey) *Issuer {
	return &Issuer{privateKey: privateKey}
}

// IssueAgentToken выпускает короткоживущий токен для агента.
// SessionID генерируется на выпуск: одна выдача = одна сессия агента.
func (i *Issuer) IssueAgentToken(agent *domain.Agent, ttl time.Duration) (*domain.TokenResponse, error) {
	now := time.Now()
	claims := &domain.AgentClaims{
		Role:      string(agent.Role),
		TenantID:  agent.TenantID,
		SessionID: uuid.New().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "toolgate-console",
			Subject:   agent.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return i.sign(claims, ttl)
}

// IssueConsoleToken выпускает токен оператора со скоупами из БД.
func (i *Issuer) IssueConsoleToken(user *domain.User, ttl time.Duration) (*domain.TokenResponse, error) {
	now := time.Now()
	claims := &domain.ConsoleClaims{
		UserID: user.ID,
		Scopes: user.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "toolgate-console",
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return i.sign(claims, ttl)
}

func (i *Issuer) sign(claims jwt.Claims, ttl time.Duration) (*domain.TokenResponse, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(i.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &domain.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
	}, nil
}
