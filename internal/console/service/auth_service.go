package service

import (
	"context"
	"errors"
	"time"

	"github.com/xela07ax/toolgate/internal/domain"
	"github.com/xela07ax/toolgate/internal/infra/auth"
	"golang.org/x/crypto/bcrypt"
)

type AuthProvider interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

type AuthService struct {
	repo   AuthProvider
	issuer *auth.Issuer
	ttl    time.Duration
}

func NewAuthService(repo AuthProvider, issuer *auth.Issuer, ttl time.Duration) *AuthService {
	return &AuthService{repo: repo, issuer: issuer, ttl: ttl}
}

// GenerateToken — логин оператора: bcrypt против Postgres, RS256 на выходе.
func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация (источник правды — Postgres)
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil || user == nil {
		return nil, errors.New("invalid credentials")
	}

	// 2. Проверка пароля
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	// 3. Scopes берем из прав пользователя в БД
	return s.issuer.IssueConsoleToken(user, s.ttl)
}
