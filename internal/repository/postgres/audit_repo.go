package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xela07ax/zeus-orchestrator/internal/audit"
)

// WriteBatch пакетная вставка записей аудита одним запросом.
func (r *Repo) WriteBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_records
	numFields := 11
	placeholderStr := ""
	vals := make([]interface{}, 0, len(records)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, rec := range records {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11)

		details, _ := json.Marshal(rec.Details)

		vals = append(vals,
			rec.ID, rec.TraceID, rec.Actor, rec.Action, rec.ResourceType, rec.ResourceID,
			details, rec.Success, nullIfEmpty(rec.Error), rec.DurationMs, rec.Timestamp,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO audit_records (id, trace_id, actor, action, resource_type, resource_id, details, success, error, duration_ms, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.pool.Exec(ctx, query, vals...)
	return err
}

// FetchRecords выборка последних записей с фильтрацией по актору и типу действия.
func (r *Repo) FetchRecords(ctx context.Context, actor, action string, limit int) ([]audit.Record, error) {
	query := `SELECT id, trace_id, actor, action, resource_type, resource_id, details, success, COALESCE(error, ''), duration_ms, timestamp
	          FROM audit_records`

	var conds []string
	var args []interface{}
	if actor != "" {
		args = append(args, actor)
		conds = append(conds, fmt.Sprintf("actor = $%d", len(args)))
	}
	if action != "" {
		args = append(args, action)
		conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit records: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]audit.Record, 0)
	for rows.Next() {
		var rec audit.Record
		var details []byte
		if err := rows.Scan(
			&rec.ID, &rec.TraceID, &rec.Actor, &rec.Action, &rec.ResourceType, &rec.ResourceID,
			&details, &rec.Success, &rec.Error, &rec.DurationMs, &rec.Timestamp,
		); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &rec.Details)
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
