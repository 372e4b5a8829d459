package domain

// Verdict — результат проверки guardrail'ов. Значение неизменяемое:
// Evaluator конструирует его один раз и больше никто его не трогает.
// Инвариант: Allowed == false всегда означает непустой Reason.
type Verdict struct {
	Allowed     bool     `json:"allowed"`
	Reason      string   `json:"reason,omitempty"`      // Заполнен только при отказе
	Warnings    []string `json:"warnings,omitempty"`    // Информируют, но не блокируют
	Suggestions []string `json:"suggestions,omitempty"` // Подсказки оператору (например, включить бэкапы)
}

// Deny — единая точка конструирования отказа, чтобы Reason никогда не был пустым.
func Deny(reason string) Verdict {
	if reason == "" {
		reason = "denied by policy"
	}
	return Verdict{Allowed: false, Reason: reason}
}

// Allow собирает положительный вердикт с накопленными предупреждениями.
func Allow(warnings, suggestions []string) Verdict {
	return Verdict{Allowed: true, Warnings: warnings, Suggestions: suggestions}
}
