package bus

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/zeus-orchestrator/internal/domain"
)

// fakeObserver копит доставленные события; failSend включает режим мертвого соединения.
type fakeObserver struct {
	id       string
	mu       sync.Mutex
	events   []domain.Event
	failSend bool
}

func (f *fakeObserver) ID() string { return f.id }

func (f *fakeObserver) Send(event domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("connection closed")
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeObserver) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func newBusWith(t *testing.T, observers ...*fakeObserver) *Bus {
	t.Helper()
	b := New(zap.NewNop())
	for _, o := range observers {
		b.Connect(o)
	}
	return b
}

func TestPublishDeliversToChannelSubscribers(t *testing.T) {
	infra := &fakeObserver{id: "a"}
	costs := &fakeObserver{id: "b"}
	both := &fakeObserver{id: "c"}
	b := newBusWith(t, infra, costs, both)

	b.Subscribe(infra, "infrastructure")
	b.Subscribe(costs, "costs")
	b.Subscribe(both, "infrastructure")
	b.Subscribe(both, "costs")

	delivered := b.Publish(domain.NewUpdateEvent("infrastructure", map[string]interface{}{"x": 1}))
	assert.Equal(t, 2, delivered)

	// Ровно один раз каждому подписчику канала, чужие каналы не задеты
	assert.Equal(t, 1, infra.received())
	assert.Equal(t, 0, costs.received())
	assert.Equal(t, 1, both.received())
}

func TestSubscribeRequiresConnect(t *testing.T) {
	b := New(zap.NewNop())
	ghost := &fakeObserver{id: "ghost"}

	b.Subscribe(ghost, "infrastructure")
	assert.Equal(t, 0, b.ChannelSubscriberCount("infrastructure"))
}

func TestSubscribeIdempotent(t *testing.T) {
	o := &fakeObserver{id: "a"}
	b := newBusWith(t, o)

	b.Subscribe(o, "alerts")
	b.Subscribe(o, "alerts")
	assert.Equal(t, 1, b.ChannelSubscriberCount("alerts"))

	b.Publish(domain.NewUpdateEvent("alerts", nil))
	assert.Equal(t, 1, o.received())
}

func TestDisconnectRemovesAllSubscriptions(t *testing.T) {
	o := &fakeObserver{id: "a"}
	b := newBusWith(t, o)
	b.Subscribe(o, "infrastructure")
	b.Subscribe(o, "costs")

	b.Disconnect(o)

	assert.Equal(t, 0, b.ConnectionCount())
	assert.Equal(t, 0, b.ChannelSubscriberCount("infrastructure"))
	assert.Equal(t, 0, b.ChannelSubscriberCount("costs"))
	assert.Equal(t, 0, b.Publish(domain.NewUpdateEvent("infrastructure", nil)))
}

// Ошибка Send — неявный disconnect: наблюдатель вычищен из реестра
// и всех каналов до возврата из Publish.
func TestPublishPrunesFailedObserver(t *testing.T) {
	dead := &fakeObserver{id: "dead", failSend: true}
	alive := &fakeObserver{id: "alive"}
	b := newBusWith(t, dead, alive)
	b.Subscribe(dead, "infrastructure")
	b.Subscribe(dead, "costs")
	b.Subscribe(alive, "infrastructure")

	delivered := b.Publish(domain.NewUpdateEvent("infrastructure", nil))
	assert.Equal(t, 1, delivered)

	assert.Equal(t, 1, b.ConnectionCount())
	assert.Equal(t, 1, b.ChannelSubscriberCount("infrastructure"))
	assert.Equal(t, 0, b.ChannelSubscriberCount("costs"))
	assert.Equal(t, 1, alive.received())
}

func TestUnsubscribeKeepsOtherChannels(t *testing.T) {
	o := &fakeObserver{id: "a"}
	b := newBusWith(t, o)
	b.Subscribe(o, "infrastructure")
	b.Subscribe(o, "costs")

	b.Unsubscribe(o, "infrastructure")

	b.Publish(domain.NewUpdateEvent("infrastructure", nil))
	b.Publish(domain.NewUpdateEvent("costs", nil))
	require.Equal(t, 1, o.received())
	assert.Equal(t, "costs_update", o.events[0].Type)
}

// Smoke-тест на гонки: подписки, отписки и публикации вперемешку.
// Ловится детектором гонок, инварианты проверяются счетчиками.
func TestBusConcurrentAccess(t *testing.T) {
	b := New(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			o := &fakeObserver{id: fmt.Sprintf("obs-%d", n)}
			for j := 0; j < 200; j++ {
				b.Connect(o)
				b.Subscribe(o, "infrastructure")
				b.Publish(domain.NewUpdateEvent("infrastructure", map[string]interface{}{"n": n}))
				b.Unsubscribe(o, "infrastructure")
				b.Disconnect(o)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, b.ConnectionCount())
	assert.Equal(t, 0, b.ChannelSubscriberCount("infrastructure"))
}
