package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/xela07ax/toolgate/internal/domain"
	"go.uber.org/zap"
)

// Типизированные ключи контекста (избегаем коллизий со строковыми)
type ctxKey int

const (
	sessionKey ctxKey = iota
	consoleUserKey
)

// AgentValidator — интерфейс проверки агентских токенов для шлюза.
type AgentValidator interface {
	VerifyAgentToken(tokenStr string) (*domain.AgentSession, error)
}

// ConsoleValidator — интерфейс проверки операторских токенов для консоли.
type ConsoleValidator interface {
	VerifyConsoleToken(tokenStr string) (*domain.ConsoleClaims, error)
}

// NewAgentMiddleware валидирует токен и кладет готовую AgentSession в контекст.
// Request-ID берем из заголовка оркестратора, иначе генерируем свой.
func NewAgentMiddleware(v AgentValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing Authorization header")
				return
			}

			session, err := v.VerifyAgentToken(authHeader)
			if err != nil {
				logger.Warn("agent auth failure", zap.Error(err))
				writeAuthError(w, "token is expired or malformed")
				return
			}

			session.RequestID = r.Header.Get("X-Request-ID")
			if session.RequestID == "" {
				session.RequestID = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", session.RequestID)

			ctx := context.WithValue(r.Context(), sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewConsoleMiddleware пускает только операторов с admin-скоупом.
func NewConsoleMiddleware(v ConsoleValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := v.VerifyConsoleToken(r.Header.Get("Authorization"))
			if err != nil {
				logger.Warn("console auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !claims.Scopes["admin"] {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), consoleUserKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext достает AgentSession, положенную middleware.
func SessionFromContext(ctx context.Context) (*domain.AgentSession, bool) {
	s, ok := ctx.Value(sessionKey).(*domain.AgentSession)
	return s, ok
}

// ContextWithSession — для gRPC интерсептора и тестов.
func ContextWithSession(ctx context.Context, s *domain.AgentSession) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// ConsoleUserFromContext достает операторские claims.
func ConsoleUserFromContext(ctx context.Context) (*domain.ConsoleClaims, bool) {
	c, ok := ctx.Value(consoleUserKey).(*domain.ConsoleClaims)
	return c, ok
}

func writeAuthError(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": domain.E(domain.ErrInvalidToken, "%s", reason),
	})
}
