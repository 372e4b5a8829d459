package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/zeus-orchestrator/internal/audit"
)

// AuditLogProvider описывает контракт для чтения данных аудита.
// Используем структуру Record из пакета audit, чтобы сохранить единую модель данных.
type AuditLogProvider interface {
	FetchRecords(ctx context.Context, actor, action string, limit int) ([]audit.Record, error)
}

type AuditService struct {
	repo AuditLogProvider
}

func NewAuditService(repo AuditLogProvider) *AuditService {
	return &AuditService{
		repo: repo,
	}
}

// FetchRecords запрашивает записи с фильтрацией.
// Логика фильтрации (пустые строки или конкретные значения) инкапсулирована в репозитории.
func (s *AuditService) FetchRecords(ctx context.Context, actor, action string, limit int) ([]audit.Record, error) {
	records, err := s.repo.FetchRecords(ctx, actor, action, limit)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch records: %w", err)
	}
	return records, nil
}
