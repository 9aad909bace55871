package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/toolgate/internal/console/handler"
	"github.com/xela07ax/toolgate/internal/console/server"
	"github.com/xela07ax/toolgate/internal/console/service"
	"github.com/xela07ax/toolgate/internal/infra"
	"github.com/xela07ax/toolgate/internal/infra/auth"
	"github.com/xela07ax/toolgate/internal/repository/postgres"
	"go.uber.org/zap"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Ресурсы: Redis (сигналы шлюзам) + Postgres (источник правды)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store, err := postgres.NewStore(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to init postgres", zap.Error(err))
	}
	defer store.Close()

	pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()

	// 3. Ключи: консоль и подписывает (private), и проверяет (public)
	privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("failed to parse private key", zap.Error(err))
	}
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("failed to parse public key", zap.Error(err))
	}
	issuer := auth.NewIssuer(privKey)
	validator := auth.NewBaseValidator(pubKey)

	// 4. Инициализация слоев (Dependency Injection)
	authService := service.NewAuthService(store, issuer, cfg.Auth.UserTokenTTL)
	agentService := service.NewAgentService(store, rdb, issuer, cfg.Auth.AgentTokenTTL, logger)
	policyService := service.NewPolicyService(store, rdb)
	capService := service.NewCapabilityService(store, rdb)
	auditService := service.NewAuditService(store)

	srv := server.NewConsoleServer(
		logger,
		validator,
		handler.NewAuthHandler(authService),
		handler.NewAgentHandler(agentService, logger),
		handler.NewPolicyHandler(policyService),
		handler.NewCapabilityHandler(capService),
		handler.NewAuditHandler(auditService),
	)

	// 5. Запуск сервера
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("console API started", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 6. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("console stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	logger.Info("console exited properly")
}
