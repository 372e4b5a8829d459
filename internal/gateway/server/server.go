package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/zeus-orchestrator/internal/gateway/handler"
	"github.com/xela07ax/zeus-orchestrator/internal/infra"
	"github.com/xela07ax/zeus-orchestrator/internal/infra/auth"
	"github.com/xela07ax/zeus-orchestrator/internal/ws"
)

type GatewayServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (HS256)
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler    *handler.AuthHandler    // /auth/token
	commandHandler *handler.CommandHandler // /api/v1/commands
	designHandler  *handler.DesignHandler  // /api/v1/infrastructure/design
	stateHandler   *handler.StateHandler   // /api/v1/infrastructure/state
	auditHandler   *handler.AuditHandler   // /api/v1/audit (Logs)
	policyHandler  *handler.PolicyHandler  // /api/v1/policy
	wsHandler      *ws.Handler             // /ws (live-подписки)
}

// NewGatewayServer инициализирует HTTP-поверхность оркестратора со всеми зависимостями
func NewGatewayServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	commandH *handler.CommandHandler,
	designH *handler.DesignHandler,
	stateH *handler.StateHandler,
	auditH *handler.AuditHandler,
	policyH *handler.PolicyHandler,
	wsH *ws.Handler,
) *GatewayServer {
	s := &GatewayServer{
		router:         chi.NewRouter(),
		logger:         logger.Named("gateway-api"),
		cfg:            cfg,
		authValidator:  validator,
		authHandler:    authH,
		commandHandler: commandH,
		designHandler:  designH,
		stateHandler:   stateH,
		auditHandler:   auditH,
		policyHandler:  policyH,
		wsHandler:      wsH,
	}

	s.routes()
	return s
}

func (s *GatewayServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		// WebSocket живет вне JWT-периметра: подписка на каналы не требует
		// токена, а команды через сокет несут актора в самом сообщении
		r.Get("/ws", s.wsHandler.Serve)
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют HS256 токен) ---
	r.Group(func(r chi.Router) {
		// Подключаем универсальный Middleware только для этой группы
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Исполнение команд (Guardrails -> Router -> MCP)
		r.Post("/api/v1/commands/execute", s.commandHandler.Execute)

		// Дизайн инфраструктуры (валидация + асинхронная кодогенерация)
		r.Route("/api/v1/infrastructure", func(r chi.Router) {
			r.Post("/design", s.designHandler.Create)
			r.Get("/design/{id}", s.designHandler.Get)
			r.Get("/designs", s.designHandler.List)
			r.Get("/state", s.stateHandler.Get)
		})

		// Действующая политика guardrail'ов и горячая перезагрузка
		r.Route("/api/v1/policy", func(r chi.Router) {
			r.Get("/", s.policyHandler.Get)
			r.Post("/reload", s.policyHandler.Reload)
		})

		// Аудит и Логи (Observability)
		r.Get("/api/v1/audit", s.auditHandler.GetRecords)
	})
}

// ServeHTTP позволяет использовать GatewayServer как стандартный http.Handler
func (s *GatewayServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
