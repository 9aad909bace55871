package auth

import (
	"crypto/rsa"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/toolgate/internal/domain"
)

// BaseValidator содержит общую логику проверки RS256.
// Проверка локальная: шлюз не ходит к издателю токенов на каждом вызове.
type BaseValidator struct {
	publicKey *rsa.PublicKey
}

func NewBaseValidator(pubKey *rsa.PublicKey) *BaseValidator {
	return &BaseValidator{publicKey: pubKey}
}

func (v *BaseValidator) parse(tokenStr string, claims jwt.Claims) error {
	tokenStr = strings.TrimPrefix(tokenStr, "Bearer ")
	tokenStr = strings.TrimSpace(tokenStr)

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.publicKey, nil
	}, jwt.WithExpirationRequired())

	if err != nil || !token.Valid {
		return fmt.Errorf("invalid token: %w", err)
	}
	return nil
}

// VerifyAgentToken проверяет подпись и срок агентского токена и собирает
// AgentSession. Невалидный токен — немедленный отказ, без обращения
// к реестру и адаптерам.
func (v *BaseValidator) VerifyAgentToken(tokenStr string) (*domain.AgentSession, error) {
	claims := &domain.AgentClaims{}
	if err := v.parse(tokenStr, claims); err != nil {
		return nil, err
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("token has no session id")
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return &domain.AgentSession{
		AgentID:   claims.Subject,
		Role:      role,
		TenantID:  claims.TenantID,
		SessionID: claims.SessionID,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyConsoleToken проверяет токен оператора консоли.
func (v *BaseValidator) VerifyConsoleToken(tokenStr string) (*domain.ConsoleClaims, error) {
	claims := &domain.ConsoleClaims{}
	if err := v.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRSAPublicKey превращает []byte в объект для проверки подписи
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}

// ParseRSAPrivateKey превращает []byte в объект для подписи (только для Console)
func ParseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("private key data is empty")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}
