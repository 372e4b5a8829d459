package guardrail

import (
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/zeus-orchestrator/internal/domain"
	"go.uber.org/zap"
)

// Snapshot отдает текущую политику. Реализуется Store'ом,
// в тестах подменяется статическим снапшотом.
type Snapshot interface {
	Current() *domain.PolicyConfig
}

// Evaluator — чистая функция решения (command, actor, env) -> Verdict.
// Никаких побочных эффектов: детерминирован относительно снапшота политики
// и настенных часов. Сколько угодно проверок может идти параллельно.
type Evaluator struct {
	policy Snapshot
	logger *zap.Logger
	now    func() time.Time // Подменяется в тестах окна изменений
}

func NewEvaluator(policy Snapshot, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		policy: policy,
		logger: logger.Named("guardrails"),
		now:    time.Now,
	}
}

// Evaluate прогоняет команду через все правила. Порядок проверок фиксирован
// и значим: первый сработавший отказ формирует Reason, дальше не идем.
func (e *Evaluator) Evaluate(req domain.CommandRequest) domain.Verdict {
	cfg := e.policy.Current()

	// 1. Окно изменений (только production)
	if !e.inChangeWindow(cfg, req.Environment) {
		return domain.Deny("Command blocked: outside allowed change window for production environment")
	}

	// 2. Потолки масштабирования — только для scale-команд
	if strings.HasPrefix(req.Command, "scale") {
		if reason := checkCeilings(requestTotals(req.Parameters), cfg.ScalingLimits, false); reason != "" {
			return domain.Deny(reason)
		}
	}

	// 3. RBAC
	perms, ok := cfg.RBAC[req.Actor.Role]
	if !ok {
		// Неизвестная роль — всегда отказ, никаких дефолтов
		return domain.Deny(fmt.Sprintf("Unknown actor role: %s", req.Actor.Role))
	}
	if !hasPermission(perms, req.Command) {
		return domain.Deny(fmt.Sprintf("Role '%s' does not have permission to run '%s'", req.Actor.Role, leadingToken(req.Command)))
	}

	// 4. Production lockdown
	if req.Environment == "production" && cfg.ProdLockdown.Enabled {
		if req.Actor.Approvals < cfg.ProdLockdown.RequiredApprovals {
			return domain.Deny(fmt.Sprintf("Production changes require %d approvals, but only %d provided",
				cfg.ProdLockdown.RequiredApprovals, req.Actor.Approvals))
		}
	}

	return domain.Allow(nil, nil)
}

// ValidateDesign агрегирует ресурсы по всем компонентам дизайна и гоняет их
// через тот же примитив потолков, что и scale-команды. Предупреждения
// (бэкапы, мониторинг) не блокируют — только информируют.
func (e *Evaluator) ValidateDesign(req domain.DesignRequest) domain.Verdict {
	cfg := e.policy.Current()

	totals := resourceTotals{hasInstances: true, hasMemory: true, hasCPU: true}
	for _, c := range req.Components {
		if c.Type != "ec2" {
			continue
		}
		count := c.Count
		if count == 0 {
			count = 1
		}
		totals.instances += count
		totals.memoryGB += c.MemoryGB * count
		totals.cpuCores += c.CPUCores * count
	}

	if reason := checkCeilings(totals, cfg.ScalingLimits, true); reason != "" {
		return domain.Deny(reason)
	}

	var warnings, suggestions []string
	if req.Environment == "production" {
		if !req.BackupEnabled {
			warnings = append(warnings, "Backup is not enabled for production environment")
			suggestions = append(suggestions, "Enable backup for production infrastructure")
		}
		if !req.MonitoringEnabled {
			warnings = append(warnings, "Monitoring is not enabled for production environment")
			suggestions = append(suggestions, "Enable monitoring for production infrastructure")
		}
	}

	return domain.Allow(warnings, suggestions)
}

// inChangeWindow проверяет час суток в таймзоне окна.
// Любое окружение кроме production проходит всегда; production без
// сконфигурированного окна тоже проходит.
func (e *Evaluator) inChangeWindow(cfg *domain.PolicyConfig, environment string) bool {
	if environment != "production" {
		return true
	}

	window, ok := cfg.ChangeWindows["production"]
	if !ok {
		return true
	}

	hour := e.now().In(window.Location()).Hour()
	for _, h := range window.AllowedHours {
		if h == hour {
			return true
		}
	}
	return false
}

// resourceTotals — измерения одного запроса или агрегата по дизайну.
// hasX отличает "измерение не запрошено" от нулевого значения:
// частичные запросы проверяются только по заявленным измерениям.
type resourceTotals struct {
	instances, memoryGB, cpuCores    int
	hasInstances, hasMemory, hasCPU  bool
}

// checkCeilings — общий примитив проверки потолков для scale-команд и дизайнов.
// Возвращает пустую строку, если все измерения в пределах лимитов.
// Причина отказа всегда называет и вычисленное значение, и лимит.
func checkCeilings(t resourceTotals, limits domain.ScalingLimits, aggregated bool) string {
	label := func(single, total string) string {
		if aggregated {
			return total
		}
		return single
	}

	if t.hasInstances && t.instances > limits.MaxInstances {
		return fmt.Sprintf("%s (%d) exceeds limit (%d)",
			label("Instance count", "Total instances"), t.instances, limits.MaxInstances)
	}
	if t.hasMemory && t.memoryGB > limits.MaxMemoryGB {
		return fmt.Sprintf("%s (%dGB) exceeds limit (%dGB)",
			label("Memory", "Total memory"), t.memoryGB, limits.MaxMemoryGB)
	}
	if t.hasCPU && t.cpuCores > limits.MaxCPUCores {
		return fmt.Sprintf("%s (%d) exceeds limit (%d)",
			label("CPU cores", "Total CPU cores"), t.cpuCores, limits.MaxCPUCores)
	}
	return ""
}

// requestTotals вытаскивает заявленные измерения из параметров команды.
// Отсутствующие поля остаются незаявленными (permissive by default).
func requestTotals(params map[string]interface{}) resourceTotals {
	var t resourceTotals
	t.instances, t.hasInstances = intParam(params, "instances")
	t.memoryGB, t.hasMemory = intParam(params, "memory_gb")
	t.cpuCores, t.hasCPU = intParam(params, "cpu_cores")
	return t
}

// intParam достает число из JSON-параметров (числа из JSON приходят как float64).
func intParam(params map[string]interface{}, key string) (int, bool) {
	raw, ok := params[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}

// hasPermission: wildcard пропускает всё, иначе ведущий токен команды
// должен присутствовать в наборе прав роли.
func hasPermission(perms []string, command string) bool {
	token := leadingToken(command)
	for _, p := range perms {
		if p == domain.WildcardPermission || p == token {
			return true
		}
	}
	return false
}

// leadingToken выделяет первый токен команды: "scale-up" -> "scale",
// "deploy canary" -> "deploy", "pr/create" -> "pr".
func leadingToken(command string) string {
	fields := strings.FieldsFunc(command, func(r rune) bool {
		return r == ' ' || r == '-' || r == '.' || r == '_' || r == '/'
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
