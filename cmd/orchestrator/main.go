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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/xela07ax/zeus-orchestrator/internal/audit"
	"github.com/xela07ax/zeus-orchestrator/internal/bus"
	"github.com/xela07ax/zeus-orchestrator/internal/connectors"
	"github.com/xela07ax/zeus-orchestrator/internal/domain"
	"github.com/xela07ax/zeus-orchestrator/internal/engine"
	"github.com/xela07ax/zeus-orchestrator/internal/gateway/handler"
	"github.com/xela07ax/zeus-orchestrator/internal/gateway/server"
	"github.com/xela07ax/zeus-orchestrator/internal/gateway/service"
	"github.com/xela07ax/zeus-orchestrator/internal/guardrail"
	"github.com/xela07ax/zeus-orchestrator/internal/infra"
	"github.com/xela07ax/zeus-orchestrator/internal/infra/auth"
	"github.com/xela07ax/zeus-orchestrator/internal/repository/postgres"
	"github.com/xela07ax/zeus-orchestrator/internal/router"
	"github.com/xela07ax/zeus-orchestrator/internal/ws"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	// При завершении main() или срабатывании SIGTERM, cancel() остановит слушателей
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	repo, err := postgres.New(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to init postgres pool", zap.Error(err))
	}
	defer repo.Close()

	// Проверяем соединение с таймаутом
	pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
	if err := repo.Ping(pingCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	// Экспортируем метрики для Prometheus на отдельном порту
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Fatal("metrics listener failed", zap.Error(err))
		}
	}()

	// 3. Аудит: буферизованный трейл, данные летят в базу пачками
	trail := audit.NewTrail(repo, logger, audit.TrailOptions{
		BufferSize:    cfg.Engine.AuditBufferSize,
		BatchSize:     cfg.Engine.AuditBatchSize,
		FlushInterval: cfg.Engine.AuditFlushInterval,
	})
	trail.SetFillGauge(func(n int) { metrics.AuditBufferFill.Set(float64(n)) })
	trail.Start()

	// 4. Политика: снапшот в памяти + горячая перезагрузка по сигналу из Redis.
	// Источник политики — конфиг; Reload() перечитывает его с диска.
	store, err := guardrail.NewStore(&cfg.Guardrails, func() (*domain.PolicyConfig, error) {
		fresh, err := infra.LoadConfig()
		if err != nil {
			return nil, err
		}
		return &fresh.Guardrails, nil
	}, rdb, logger)
	if err != nil {
		logger.Fatal("invalid guardrail policy", zap.Error(err))
	}
	go store.StartListener(appCtx)

	evaluator := guardrail.NewEvaluator(store, logger)

	// 5. Маршрутизация и исполнение
	table := router.NewTable(cfg.Routes)
	executor := connectors.NewHTTPExecutor(cfg.Backends, cfg.Engine.ExecuteTimeout)
	// Оборачиваем в Reliability (Rate Limit, Circuit Breaker)
	safeExecutor := engine.NewReliabilityWrapper(executor, cfg.Engine, metrics)

	// 6. Шина подписок + межинстансный fanout через Redis
	eventBus := bus.New(logger)
	eventBus.SetSubscriberGauge(func(channel string, n int) {
		metrics.BusSubscribers.WithLabelValues(channel).Set(float64(n))
	})
	relay := bus.NewRelay(eventBus, rdb, logger)
	go relay.Start(appCtx)

	// 7. Core (сборка движка)
	dispatcher := engine.NewDispatcher(evaluator, table, safeExecutor, trail, relay, metrics, logger)

	pipeline := engine.NewDesignPipeline(evaluator, safeExecutor, repo, trail, relay, logger, cfg.Engine.DesignQueueSize)
	pipeline.Start(appCtx, 2)

	// 8. HTTP-поверхность
	validator := auth.NewBaseValidator([]byte(cfg.Auth.Secret), cfg.Auth.TokenTTL)

	authService := service.NewAuthService(repo, validator)
	auditService := service.NewAuditService(repo)

	wsHandler := ws.NewHandler(eventBus, dispatcher, logger)

	gw := server.NewGatewayServer(
		cfg,
		logger,
		validator,
		handler.NewAuthHandler(authService),
		handler.NewCommandHandler(dispatcher),
		handler.NewDesignHandler(pipeline, repo),
		handler.NewStateHandler(executor, eventBus),
		handler.NewAuditHandler(auditService),
		handler.NewPolicyHandler(store, logger),
		wsHandler,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      gw,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// gRPC health-сервер для проб оркестрации (k8s, балансировщики)
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.HealthPort))
		if err != nil {
			logger.Fatal("failed to listen gRPC health", zap.Error(err))
		}
		logger.Info("gRPC health server started", zap.Int("port", cfg.Server.HealthPort))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Fatal("gRPC health server failed", zap.Error(err))
		}
	}()

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("orchestrator started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("orchestrator stopping...")
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	grpcSrv.GracefulStop()

	// Останавливаем фоновые слои, трейл добирает хвост буфера
	cancel()
	pipeline.Stop()
	trail.Stop()

	logger.Info("orchestrator exited properly")
}
