package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/zeus-orchestrator/internal/audit"
	"github.com/xela07ax/zeus-orchestrator/internal/domain"
	"go.uber.org/zap"
)

// DesignValidator — guardrail-проверка дизайна целиком (агрегация по компонентам).
type DesignValidator interface {
	ValidateDesign(req domain.DesignRequest) domain.Verdict
}

// DesignStore — персистентность записей дизайна.
type DesignStore interface {
	Create(ctx context.Context, rec *domain.DesignRecord) error
	UpdateStatus(ctx context.Context, id string, status domain.DesignStatus, prURL, note string) error
}

/// DesignPipeline разделяет транзакцию на две независимые операции:
// запись дизайна коммитится сразу, кодогенерация (terraform + PR) идет
// фоновым воркером и догоняет статус ретроактивно. Никакой атомарности
// между ними нет намеренно — eventual consistency.
type DesignPipeline struct {
	validator DesignValidator
	executor  ExecutionProvider
	store     DesignStore
	auditor   audit.Sink
	publisher Publisher
	logger    *zap.Logger

	tfService  string // Бэкенд кодогенерации
	gitService string // Бэкенд создания PR

	tasks chan designTask
	wg    sync.WaitGroup
}

type designTask struct {
	record domain.DesignRecord
	req    domain.DesignRequest
}

func NewDesignPipeline(
	validator DesignValidator,
	executor ExecutionProvider,
	store DesignStore,
	auditor audit.Sink,
	publisher Publisher,
	logger *zap.Logger,
	queueSize int,
) *DesignPipeline {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &DesignPipeline{
		validator:  validator,
		executor:   executor,
		store:      store,
		auditor:    auditor,
		publisher:  publisher,
		logger:     logger.Named("design-pipeline"),
		tfService:  "tf-migrator",
		gitService: "git-mcp",
		tasks:      make(chan designTask, queueSize),
	}
}

// Start запускает воркеров кодогенерации.
func (p *DesignPipeline) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Stop закрывает очередь и дожидается воркеров (Drain Pattern, как в аудите).
func (p *DesignPipeline) Stop() {
	close(p.tasks)
	p.wg.Wait()
}

// Submit валидирует дизайн и, если он прошел, коммитит запись и ставит
// кодогенерацию в очередь. Вызывающий не ждет terraform и PR.
func (p *DesignPipeline) Submit(ctx context.Context, req domain.DesignRequest) (*domain.DesignRecord, domain.Verdict, error) {
	verdict := p.validator.ValidateDesign(req)
	if !verdict.Allowed {
		p.auditor.Log(audit.Record{
			ID:           uuid.New().String(),
			Actor:        req.Actor.ID,
			Action:       audit.ActionGuardrailViolation,
			ResourceType: "infrastructure",
			Details: map[string]interface{}{
				"design_name": req.Name,
				"reason":      verdict.Reason,
				"environment": req.Environment,
				"blocked":     true,
			},
			Success: false,
			Error:   verdict.Reason,
		})
		return nil, verdict, &PolicyDeniedError{Reason: verdict.Reason}
	}

	rec := &domain.DesignRecord{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Environment: req.Environment,
		Status:      domain.DesignPending,
		CreatedBy:   req.Actor.ID,
		CreatedAt:   time.Now().UTC(),
	}

	// Первая операция коммитится сразу, независимо от судьбы второй
	if err := p.store.Create(ctx, rec); err != nil {
		return nil, verdict, fmt.Errorf("failed to persist design: %w", err)
	}

	select {
	case p.tasks <- designTask{record: *rec, req: req}:
	default:
		// Очередь забита: дизайн сохранен, генерация не состоится.
		// Статус честно отражает это, клиент может пересабмитить.
		p.logger.Error("design codegen queue is full", zap.String("design_id", rec.ID))
		p.markFailed(rec.ID, "codegen queue overflow")
	}

	return rec, verdict, nil
}

func (p *DesignPipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.process(ctx, task)
	}
}

// process — best-effort генерация terraform и открытие PR.
// Сбой не откатывает дизайн: статус обновляется ретроактивно.
func (p *DesignPipeline) process(ctx context.Context, task designTask) {
	callCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	designPayload := map[string]interface{}{
		"design_id":   task.record.ID,
		"name":        task.req.Name,
		"environment": task.req.Environment,
		"components":  componentsToMaps(task.req.Components),
	}

	tfResult, err := p.executor.Call(callCtx, p.tfService, "generate", designPayload)
	if err != nil {
		p.logger.Error("terraform generation failed",
			zap.String("design_id", task.record.ID), zap.Error(err))
		p.markFailed(task.record.ID, "terraform generation failed: "+err.Error())
		return
	}

	prResult, err := p.executor.Call(callCtx, p.gitService, "pr/create", map[string]interface{}{
		"design_id":      task.record.ID,
		"terraform_code": rawToValue(tfResult),
	})
	if err != nil {
		p.logger.Error("PR creation failed",
			zap.String("design_id", task.record.ID), zap.Error(err))
		p.markFailed(task.record.ID, "pr creation failed: "+err.Error())
		return
	}

	prURL := extractPRURL(prResult)
	if err := p.store.UpdateStatus(context.Background(), task.record.ID, domain.DesignGenerated, prURL, ""); err != nil {
		p.logger.Error("failed to update design status",
			zap.String("design_id", task.record.ID), zap.Error(err))
	}

	p.auditor.Log(audit.Record{
		ID:           uuid.New().String(),
		Actor:        task.req.Actor.ID,
		Action:       audit.ActionDesign,
		ResourceType: "infrastructure",
		ResourceID:   task.record.ID,
		Details: map[string]interface{}{
			"design_name":      task.req.Name,
			"environment":      task.req.Environment,
			"components_count": len(task.req.Components),
			"pr_url":           prURL,
		},
		Success: true,
	})

	p.publisher.Publish(ctx, domain.NewUpdateEvent(domain.ChannelInfrastructure, map[string]interface{}{
		"design_id": task.record.ID,
		"name":      task.req.Name,
		"status":    string(domain.DesignGenerated),
		"pr_url":    prURL,
	}))
}

func (p *DesignPipeline) markFailed(id, note string) {
	if err := p.store.UpdateStatus(context.Background(), id, domain.DesignFailed, "", note); err != nil {
		p.logger.Error("failed to mark design as failed", zap.String("design_id", id), zap.Error(err))
	}
}

func componentsToMaps(components []domain.DesignComponent) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(components))
	for _, c := range components {
		out = append(out, map[string]interface{}{
			"type":      c.Type,
			"count":     c.Count,
			"memory_gb": c.MemoryGB,
			"cpu_cores": c.CPUCores,
		})
	}
	return out
}

func extractPRURL(raw json.RawMessage) string {
	var parsed struct {
		PRURL string `json:"pr_url"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ""
	}
	return parsed.PRURL
}
