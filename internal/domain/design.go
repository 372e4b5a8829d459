package domain

import "time"

// DesignStatus — жизненный цикл дизайна инфраструктуры.
// Запись в БД коммитится сразу, генерация кода догоняет статус асинхронно.
type DesignStatus string

const (
	DesignPending   DesignStatus = "pending"    // Записан, ждет воркера
	DesignGenerated DesignStatus = "generated"  // Terraform готов, PR открыт
	DesignFailed    DesignStatus = "gen_failed" // Генерация не удалась, дизайн остался
)

// DesignComponent — один блок из drag&drop конструктора инфраструктуры.
type DesignComponent struct {
	Type     string `json:"type"` // "ec2", "rds", "s3"...
	Count    int    `json:"count"`
	MemoryGB int    `json:"memory_gb"`
	CPUCores int    `json:"cpu_cores"`
}

// DesignRequest — декларация желаемой инфраструктуры целиком.
// Guardrail'ы агрегируют ресурсы по компонентам, а не по одной команде.
type DesignRequest struct {
	Name              string            `json:"name"`
	Environment       string            `json:"environment"`
	Components        []DesignComponent `json:"components"`
	BackupEnabled     bool              `json:"backup_enabled"`
	MonitoringEnabled bool              `json:"monitoring_enabled"`
	Actor             Actor             `json:"actor"`
}

// DesignRecord — персистентное состояние дизайна.
type DesignRecord struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Environment string       `json:"environment"`
	Status      DesignStatus `json:"status"`
	PRURL       string       `json:"pr_url,omitempty"`       // Заполняется воркером
	StatusNote  string       `json:"status_note,omitempty"`  // Причина gen_failed
	CreatedBy   string       `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
