package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xela07ax/zeus-orchestrator/internal/domain"
)

const writeTimeout = 10 * time.Second

// observer оборачивает живое WebSocket-соединение в bus.Observer.
// gorilla/websocket не переносит конкурентных писателей, поэтому каждый
// исходящий кадр идет под мьютексом: publish шины и ответы на команды
// могут писать одновременно.
type observer struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (o *observer) ID() string {
	return o.id
}

// Send доставляет событие шины. Ошибка означает мертвое соединение —
// шина вычистит наблюдателя сама.
func (o *observer) Send(event domain.Event) error {
	return o.writeJSON(event)
}

func (o *observer) writeJSON(v interface{}) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return o.conn.WriteJSON(v)
}
