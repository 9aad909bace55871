package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/toolgate/internal/audit"
	"github.com/xela07ax/toolgate/internal/connectors"
	"github.com/xela07ax/toolgate/internal/engine"
	"github.com/xela07ax/toolgate/internal/infra"
	"github.com/xela07ax/toolgate/internal/infra/auth"
	"github.com/xela07ax/toolgate/internal/policy"
	"github.com/xela07ax/toolgate/internal/registry"
	"github.com/xela07ax/toolgate/internal/repository/postgres"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
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

	// Контекст жизненного цикла фоновых горутин: SIGTERM остановит слушателей
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Трейсинг (пустой endpoint = no-op)
	shutdownTracing, err := infra.SetupTracing(appCtx, cfg.Tracing, "toolgate-gateway")
	if err != nil {
		logger.Fatal("failed to setup tracing", zap.Error(err))
	}

	// 3. Инфраструктура: Redis + Postgres
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

	// 4. Метрики
	promReg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(promReg)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(":9090", mux); err != nil {
			logger.Error("metrics endpoint failed", zap.Error(err))
		}
	}()

	// 5. Аудит: буферизованный sink с пакетной записью в Postgres
	sink := audit.NewSink(store, logger, audit.SinkOptions{
		BufferSize:    cfg.Engine.AuditBufferSize,
		BatchSize:     cfg.Engine.AuditBatchSize,
		FlushInterval: cfg.Engine.AuditFlushInterval,
		Gauges: audit.Gauges{
			BufferFill: func(n int) { metrics.AuditBufferFill.Set(float64(n)) },
			Dropped:    func() { metrics.AuditDropped.Inc() },
		},
	})
	sink.Start()

	// 6. Бэкенд-адаптеры из конфига
	adapters := make(map[string]connectors.Adapter)
	var grpcConns []*grpc.ClientConn
	for name, addr := range cfg.Adapters.GRPC {
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			logger.Fatal("failed to dial connector",
				zap.String("adapter", name), zap.String("addr", addr), zap.Error(err))
		}
		grpcConns = append(grpcConns, conn)
		adapters[name] = connectors.NewGRPCAdapter(conn)
	}
	defer func() {
		for _, conn := range grpcConns {
			conn.Close()
		}
	}()
	if len(cfg.Adapters.Web.AllowedDomains) > 0 {
		adapters["web"] = connectors.NewWebAdapter(cfg.Adapters.Web)
	}
	if cfg.Adapters.Files.BaseDir != "" {
		fa, err := connectors.NewFilesAdapter(cfg.Adapters.Files)
		if err != nil {
			logger.Fatal("failed to init files adapter", zap.Error(err))
		}
		adapters["files"] = fa
	}
	if cfg.Adapters.MockEnabled {
		adapters["mock"] = &connectors.MockAdapter{}
	}
	adapterNames := make([]string, 0, len(adapters))
	for n := range adapters {
		adapterNames = append(adapterNames, n)
	}

	// 7. Control Plane: реестр, политики, блок-лист — все с горячим обновлением
	reg := registry.New(store, adapterNames, logger)
	if err := reg.Refresh(appCtx); err != nil {
		logger.Fatal("failed to load capability catalog", zap.Error(err))
	}
	go engine.ListenRefreshSignal(appCtx, rdb, logger, infra.RedisChanRegistryUpdate, reg.Refresh)

	enforcer := policy.NewMemoEnforcer(store, logger)
	if err := enforcer.Refresh(appCtx); err != nil {
		logger.Fatal("failed to load policy rules", zap.Error(err))
	}
	go engine.ListenRefreshSignal(appCtx, rdb, logger, infra.RedisChanPolicyUpdate, enforcer.Refresh)

	blocklist := engine.NewBlocklistManager(rdb, store, logger)
	if err := blocklist.Init(appCtx); err != nil {
		logger.Fatal("failed to init blocklist", zap.Error(err))
	}
	go blocklist.StartListener(appCtx)

	// 8. Execution Layer: rate limit + circuit breaker + ретраи
	limiter := engine.NewRateLimiter(rdb, cfg.Engine, logger)
	reliability := engine.NewReliability(adapters, limiter, cfg.Engine, metrics, logger)

	// 9. Core
	core := engine.NewCore(reg, enforcer, reliability, sink, blocklist, metrics, logger)

	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("failed to parse public key", zap.Error(err))
	}
	validator := auth.NewBaseValidator(pubKey)

	// 10. HTTP-сервер. Цепочка: Trace-ID -> токен -> ядро
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(engine.TracingMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","catalog_version":%d}`, reg.Version())
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.NewAgentMiddleware(validator, logger))
		r.Post("/v1/invoke", core.HandleInvoke)
		r.Get("/v1/capabilities", core.HandleListCapabilities)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 11. gRPC-сервер шлюза (тот же конвейер, другой транспорт)
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(engine.UnaryAuthInterceptor(validator)))
	engine.NewGRPCServer(core).Register(grpcSrv)

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			logger.Fatal("failed to listen gRPC", zap.Error(err))
		}
		logger.Info("gRPC server started", zap.Int("port", cfg.Server.GRPCPort))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Fatal("gRPC serve failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("gateway started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 12. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("gateway stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	cancel() // Останавливаем слушателей Redis

	// Аудит закрываем последним: дописываем все, что накопилось
	sink.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", zap.Error(err))
	}
	logger.Info("gateway exited properly")
}
