package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/toolgate/internal/console/handler"
	"github.com/xela07ax/toolgate/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка операторских токенов (RS256)
	validator auth.ConsoleValidator

	// Обработчики бизнес-доменов
	authHandler       *handler.AuthHandler       // /auth/token
	agentHandler      *handler.AgentHandler      // /v1/agents
	policyHandler     *handler.PolicyHandler     // /v1/policies
	capabilityHandler *handler.CapabilityHandler // /v1/capabilities
	auditHandler      *handler.AuditHandler      // /v1/audit
}

// NewConsoleServer инициализирует сервер админки со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.ConsoleValidator,
	authH *handler.AuthHandler,
	agentH *handler.AgentHandler,
	policyH *handler.PolicyHandler,
	capH *handler.CapabilityHandler,
	auditH *handler.AuditHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:            chi.NewRouter(),
		logger:            logger.Named("console-api"),
		validator:         validator,
		authHandler:       authH,
		agentHandler:      agentH,
		policyHandler:     policyH,
		capabilityHandler: capH,
		auditHandler:      auditH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256 + admin scope) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewConsoleMiddleware(s.validator, s.logger))

		// Управление агентами (регистрация, kill-switch, выпуск токенов)
		r.Route("/v1/agents", func(r chi.Router) {
			r.Get("/", s.agentHandler.List)
			r.Post("/", s.agentHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.agentHandler.Get)
				r.Post("/block", s.agentHandler.Block)     // Мгновенная блокировка
				r.Post("/unblock", s.agentHandler.Unblock) // Снятие блокировки
				r.Post("/token", s.agentHandler.IssueToken)
			})
		})

		// Управление правилами политик
		r.Route("/v1/policies", func(r chi.Router) {
			r.Get("/", s.policyHandler.List)
			r.Post("/", s.policyHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.policyHandler.Get)
				r.Put("/", s.policyHandler.Update)
				r.Delete("/", s.policyHandler.Delete)
			})
		})

		// Управление каталогом инструментов
		r.Route("/v1/capabilities", func(r chi.Router) {
			r.Get("/", s.capabilityHandler.List)
			r.Post("/", s.capabilityHandler.Create)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.capabilityHandler.Get)
				r.Put("/", s.capabilityHandler.Update)
				r.Delete("/", s.capabilityHandler.Delete)
			})
		})

		// Журнал аудита
		r.Get("/v1/audit", s.auditHandler.Query)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
