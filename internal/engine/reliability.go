package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sony/gobreaker"
	"github.com/xela07ax/zeus-orchestrator/internal/infra"
	"golang.org/x/time/rate"
)

// ExecutionProvider — то, что умеет исполнить команду на названном бэкенде.
type ExecutionProvider interface {
	Call(ctx context.Context, service, command string, params map[string]interface{}) (json.RawMessage, error)
}

// ReliabilityWrapper защищает бэкенды от шторма: rate limiter на входе,
// circuit breaker вокруг вызова. Ретраев здесь нет намеренно — диспетчер
// делает ровно одну попытку, политику повторов выбирает вызывающий.
type ReliabilityWrapper struct {
	next    ExecutionProvider
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewReliabilityWrapper(next ExecutionProvider, cfg infra.EngineConfig, metrics *Metrics) *ReliabilityWrapper {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "zeus-backends",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Через сколько CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Более 5 ошибок подряд — открываемся, блокируем трафик
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if metrics == nil {
				return
			}
			v := 0.0
			if to == gobreaker.StateOpen {
				v = 1.0
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(v)
		},
	})

	return &ReliabilityWrapper{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}
}

func (w *ReliabilityWrapper) Call(ctx context.Context, service, command string, params map[string]interface{}) (json.RawMessage, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker, одна попытка внутри
	result, err := w.cb.Execute(func() (interface{}, error) {
		return w.next.Call(ctx, service, command, params)
	})
	if err != nil {
		return nil, err
	}

	return result.(json.RawMessage), nil
}
