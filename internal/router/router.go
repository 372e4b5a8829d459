package router

import (
	"strings"

	"github.com/xela07ax/zeus-orchestrator/internal/infra"
)

// Route — разрешенный маршрут: какой бэкенд исполняет команду
// и в какой канал шины уходит событие исхода.
type Route struct {
	Service string
	Channel string
}

// Table — упорядоченная таблица префиксов. Порядок сохраняется ровно таким,
// каким его задал конфиг: побеждает ПЕРВЫЙ совпавший префикс, не самый длинный.
// Пересечения ("deploy" vs "deploy-prod") разруливаются порядком строк.
type Table struct {
	entries []entry
}

type entry struct {
	prefix string
	route  Route
}

func NewTable(routes []infra.RouteConfig) *Table {
	t := &Table{entries: make([]entry, 0, len(routes))}
	for _, r := range routes {
		t.entries = append(t.entries, entry{
			prefix: r.Prefix,
			route:  Route{Service: r.Service, Channel: r.Channel},
		})
	}
	return t
}

// Route возвращает маршрут для команды или ok=false, если ни один префикс
// не подошел. Отсутствие маршрута — ошибка клиента/конфигурации, не ретраибл.
func (t *Table) Route(command string) (Route, bool) {
	for _, e := range t.entries {
		if strings.HasPrefix(command, e.prefix) {
			return e.route, true
		}
	}
	return Route{}, false
}

// Len сообщает размер таблицы (для стартового лога).
func (t *Table) Len() int {
	return len(t.entries)
}
