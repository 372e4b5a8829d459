package audit

import "time"

// Виды записей аудита. Одна диспетчеризация порождает ровно одну запись:
// либо command (исполнение дошло до бэкенда), либо guardrail_violation (отказ).
const (
	ActionCommand            = "command"
	ActionGuardrailViolation = "guardrail_violation"
	ActionDesign             = "infrastructure_design"
)

// Record — одна строка аудиторского следа. Append-only: после Log никто
// ее не изменяет.
type Record struct {
	ID           string                 `json:"id"`                    // UUID записи
	TraceID      string                 `json:"trace_id"`              // Сквозной ID запроса
	Actor        string                 `json:"actor"`                 // Кто делал
	Action       string                 `json:"action"`                // command | guardrail_violation | ...
	ResourceType string                 `json:"resource_type"`         // "command", "infrastructure"...
	ResourceID   string                 `json:"resource_id,omitempty"` // Опционально
	Details      map[string]interface{} `json:"details"`               // Параметры, причина отказа, ответ бэкенда

	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}
