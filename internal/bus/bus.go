package bus

import (
	"sync"

	"github.com/xela07ax/zeus-orchestrator/internal/domain"
	"go.uber.org/zap"
)

// Observer — живое подключение наблюдателя. Send обязан быть потокобезопасным;
// ошибка Send трактуется как смерть подключения.
type Observer interface {
	ID() string
	Send(event domain.Event) error
}

// Bus — единственное разделяемое мутируемое состояние ядра: реестр наблюдателей
// и множества подписчиков по каналам. Один экземпляр на процесс, создается в main
// и передается по ссылке — никаких модульных синглтонов.
//
// Все мутации идут под одним RWMutex; доставка сообщений выполняется вне блокировки
// по снапшоту, чтобы медленный потребитель не тормозил чужие subscribe/unsubscribe.
// Никто снаружи не получает ссылок внутрь множеств подписчиков.
type Bus struct {
	mu        sync.RWMutex
	observers map[string]Observer            // все подключенные
	channels  map[string]map[string]Observer // канал -> id -> наблюдатель

	logger          *zap.Logger
	subscriberGauge func(channel string, n int) // опциональная метрика
}

func New(logger *zap.Logger) *Bus {
	return &Bus{
		observers:       make(map[string]Observer),
		channels:        make(map[string]map[string]Observer),
		logger:          logger.Named("bus"),
		subscriberGauge: func(string, int) {},
	}
}

// SetSubscriberGauge подключает prometheus-гейдж подписчиков по каналам.
func (b *Bus) SetSubscriberGauge(fn func(channel string, n int)) {
	if fn != nil {
		b.subscriberGauge = fn
	}
}

// Connect регистрирует наблюдателя без подписок. Идемпотентен по ID.
func (b *Bus) Connect(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.observers[o.ID()]; ok {
		return
	}
	b.observers[o.ID()] = o
	b.logger.Info("observer connected",
		zap.String("observer", o.ID()),
		zap.Int("total", len(b.observers)))
}

// Subscribe добавляет наблюдателя в канал. No-op, если уже подписан
// или наблюдатель не зарегистрирован.
func (b *Bus) Subscribe(o Observer, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.observers[o.ID()]; !ok {
		return
	}

	subs, ok := b.channels[channel]
	if !ok {
		subs = make(map[string]Observer)
		b.channels[channel] = subs
	}
	if _, ok := subs[o.ID()]; ok {
		return
	}
	subs[o.ID()] = o
	b.subscriberGauge(channel, len(subs))
	b.logger.Info("observer subscribed",
		zap.String("observer", o.ID()),
		zap.String("channel", channel))
}

// Unsubscribe убирает наблюдателя из канала. No-op, если не был подписан.
func (b *Bus) Unsubscribe(o Observer, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeFromChannel(o.ID(), channel)
}

// Disconnect удаляет наблюдателя из реестра и из всех каналов.
// Подписка не переживает своего наблюдателя.
func (b *Bus) Disconnect(o Observer) {
	b.disconnectByID(o.ID())
}

func (b *Bus) disconnectByID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.observers[id]; !ok {
		return
	}
	delete(b.observers, id)
	for channel := range b.channels {
		b.removeFromChannel(id, channel)
	}
	b.logger.Info("observer disconnected",
		zap.String("observer", id),
		zap.Int("total", len(b.observers)))
}

// removeFromChannel вызывается только под write-lock.
func (b *Bus) removeFromChannel(id, channel string) {
	subs, ok := b.channels[channel]
	if !ok {
		return
	}
	if _, ok := subs[id]; !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(b.channels, channel)
	}
	b.subscriberGauge(channel, len(subs))
}

// Publish доставляет событие всем, кто подписан на канал в момент вызова.
// Best-effort: порядок доставки между подписчиками не определен. Любая ошибка
// Send — неявный disconnect: наблюдатель вычищается из реестра и всех каналов
// до возврата из Publish, мертвые соединения убираются лениво, без heartbeat.
// Возвращает число успешных доставок.
func (b *Bus) Publish(event domain.Event) int {
	// Снапшот под read-lock, сама отправка — без блокировки
	b.mu.RLock()
	subs := b.channels[event.Channel]
	targets := make([]Observer, 0, len(subs))
	for _, o := range subs {
		targets = append(targets, o)
	}
	b.mu.RUnlock()

	delivered := 0
	var failed []string
	for _, o := range targets {
		if err := o.Send(event); err != nil {
			b.logger.Warn("send failed, pruning observer",
				zap.String("observer", o.ID()),
				zap.String("channel", event.Channel),
				zap.Error(err))
			failed = append(failed, o.ID())
			continue
		}
		delivered++
	}

	for _, id := range failed {
		b.disconnectByID(id)
	}

	return delivered
}

// ConnectionCount — число живых наблюдателей (для health/статистики).
func (b *Bus) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers)
}

// ChannelSubscriberCount — число подписчиков канала.
func (b *Bus) ChannelSubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}
