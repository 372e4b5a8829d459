package guardrail

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/zeus-orchestrator/internal/domain"
	"github.com/xela07ax/zeus-orchestrator/internal/infra"
	"go.uber.org/zap"
)

// Loader перечитывает политику из источника (конфиг-файл + ENV).
type Loader func() (*domain.PolicyConfig, error)

// Store держит активный снапшот политики. Hot Path читает его атомарно,
// без блокировок: подмена происходит целиком, частичных обновлений не бывает.
// Это in-memory кэш правил, синхронизируемый сигналом из Redis, но в рантайме
// Evaluator обращается только к памяти.
type Store struct {
	current atomic.Pointer[domain.PolicyConfig]

	loader Loader // Используется только для Reload()
	rdb    *redis.Client
	logger *zap.Logger
}

func NewStore(initial *domain.PolicyConfig, loader Loader, rdb *redis.Client, logger *zap.Logger) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("initial policy rejected: %w", err)
	}

	s := &Store{
		loader: loader,
		rdb:    rdb,
		logger: logger.Named("policy-store"),
	}
	s.current.Store(initial)
	return s, nil
}

// Current возвращает активный снапшот. Никогда не nil после NewStore.
func (s *Store) Current() *domain.PolicyConfig {
	return s.current.Load()
}

// Swap валидирует и атомарно подменяет снапшот.
// Битая политика отклоняется, действующая остается активной.
func (s *Store) Swap(cfg *domain.PolicyConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("policy swap rejected: %w", err)
	}
	s.current.Store(cfg)
	s.logger.Info("policy snapshot swapped",
		zap.Int("roles", len(cfg.RBAC)),
		zap.Int("change_windows", len(cfg.ChangeWindows)))
	return nil
}

// Reload выполняет перечитку политики из источника и подмену снапшота.
func (s *Store) Reload() error {
	cfg, err := s.loader()
	if err != nil {
		return fmt.Errorf("policy reload failed: %w", err)
	}
	return s.Swap(cfg)
}

// StartListener подписывается на сигнал обновления политики.
// Любой инстанс, опубликовавший сигнал, заставит все остальные перечитать правила.
func (s *Store) StartListener(ctx context.Context) {
	infra.SubscribeResilient(ctx, s.rdb, s.logger, infra.RedisChanPolicyUpdate,
		func() error { return s.Reload() }, // Ресинхронизация при переподключении
		func(string) {
			// Сигнал может быть простым "refresh": инстанс сам перечитает источник
			if err := s.Reload(); err != nil {
				s.logger.Error("policy refresh on signal failed", zap.Error(err))
			}
		},
	)
}

// NotifyUpdate отправляет широковещательный сигнал "перечитай политику".
func (s *Store) NotifyUpdate(ctx context.Context) error {
	return s.rdb.Publish(ctx, infra.RedisChanPolicyUpdate, "refresh").Err()
}
