package domain

import (
	"fmt"
	"time"
)

// PolicyConfig — неизменяемый снапшот всех правил guardrail'ов.
// Вместо динамических словарей (как в ранних прототипах) — типизированные поля:
// отсутствие ключа ловится на старте, а не в рантайме.
// Снапшот подменяется атомарно целиком, читатели не видят частичных обновлений.
type PolicyConfig struct {
	ChangeWindows map[string]ChangeWindow `mapstructure:"change_windows" json:"change_windows"` // ключ — environment
	RBAC          map[string][]string     `mapstructure:"rbac" json:"rbac"`                     // роль -> permissions, "*" = все
	ScalingLimits ScalingLimits           `mapstructure:"scaling_limits" json:"scaling_limits"`
	ProdLockdown  ProdLockdown            `mapstructure:"prod_lockdown" json:"prod_lockdown"`
}

// ChangeWindow задает часы, в которые разрешены изменения в окружении.
type ChangeWindow struct {
	AllowedHours []int  `mapstructure:"allowed_hours" json:"allowed_hours"` // час суток, 0..23
	Timezone     string `mapstructure:"timezone" json:"timezone"`           // IANA-имя, по умолчанию UTC
}

// ScalingLimits — потолки на суммарные ресурсы одного запроса/дизайна.
type ScalingLimits struct {
	MaxInstances int `mapstructure:"max_instances" json:"max_instances"`
	MaxMemoryGB  int `mapstructure:"max_memory_gb" json:"max_memory_gb"`
	MaxCPUCores  int `mapstructure:"max_cpu_cores" json:"max_cpu_cores"`
}

// ProdLockdown — требование ручных апрувов для изменений в production.
type ProdLockdown struct {
	Enabled           bool `mapstructure:"enabled" json:"enabled"`
	RequiredApprovals int  `mapstructure:"required_approvals" json:"required_approvals"`
}

// WildcardPermission дает роли неограниченный доступ ко всем командам.
const WildcardPermission = "*"

// Validate проверяет снапшот перед тем, как он станет активным.
// Битая конфигурация не должна дожить до первой команды.
func (c *PolicyConfig) Validate() error {
	for env, w := range c.ChangeWindows {
		for _, h := range w.AllowedHours {
			if h < 0 || h > 23 {
				return fmt.Errorf("change window for %q: hour %d out of range [0,23]", env, h)
			}
		}
		if w.Timezone != "" {
			if _, err := time.LoadLocation(w.Timezone); err != nil {
				return fmt.Errorf("change window for %q: bad timezone %q: %w", env, w.Timezone, err)
			}
		}
	}

	if len(c.RBAC) == 0 {
		return fmt.Errorf("rbac map is empty: every role would be denied")
	}

	if c.ScalingLimits.MaxInstances < 0 || c.ScalingLimits.MaxMemoryGB < 0 || c.ScalingLimits.MaxCPUCores < 0 {
		return fmt.Errorf("scaling limits must be non-negative")
	}

	if c.ProdLockdown.Enabled && c.ProdLockdown.RequiredApprovals < 1 {
		return fmt.Errorf("prod lockdown enabled but required_approvals < 1")
	}

	return nil
}

// Location возвращает таймзону окна изменений (UTC, если не задана или битая).
func (w ChangeWindow) Location() *time.Location {
	if w.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
