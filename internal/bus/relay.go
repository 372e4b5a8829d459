package bus

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/zeus-orchestrator/internal/domain"
	"github.com/xela07ax/zeus-orchestrator/internal/infra"
	"go.uber.org/zap"
)

// Relay раздает события между инстансами оркестратора через Redis Pub/Sub:
// publish на одном инстансе доходит до подписчиков, висящих на других.
// Доставка остается best-effort, как и у локальной шины.
type Relay struct {
	bus        *Bus
	rdb        *redis.Client
	logger     *zap.Logger
	instanceID string // Для подавления эха собственных publish'ей
}

// envelope — формат события в Redis-канале.
type envelope struct {
	Origin string       `json:"origin"`
	Event  domain.Event `json:"event"`
}

func NewRelay(b *Bus, rdb *redis.Client, logger *zap.Logger) *Relay {
	return &Relay{
		bus:        b,
		rdb:        rdb,
		logger:     logger.Named("bus-relay"),
		instanceID: uuid.New().String(),
	}
}

// Publish доставляет событие локальным подписчикам и транслирует его
// остальным инстансам. Сбой Redis не отменяет локальную доставку.
func (r *Relay) Publish(ctx context.Context, event domain.Event) {
	r.bus.Publish(event)

	payload, err := json.Marshal(envelope{Origin: r.instanceID, Event: event})
	if err != nil {
		r.logger.Error("failed to marshal relay envelope", zap.Error(err))
		return
	}
	if err := r.rdb.Publish(ctx, infra.RedisChanEvents, string(payload)).Err(); err != nil {
		r.logger.Warn("cross-instance fanout failed", zap.Error(err))
	}
}

// Start слушает чужие события и доставляет их локальной шине.
func (r *Relay) Start(ctx context.Context) {
	infra.SubscribeResilient(ctx, r.rdb, r.logger, infra.RedisChanEvents,
		func() error { return nil }, // Событийный поток не требует ресинхронизации
		func(payload string) {
			var env envelope
			if err := json.Unmarshal([]byte(payload), &env); err != nil {
				r.logger.Error("invalid relay payload", zap.Error(err))
				return
			}
			if env.Origin == r.instanceID {
				return // Свое же событие, локально уже доставлено
			}
			r.bus.Publish(env.Event)
		},
	)
}
