package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xela07ax/zeus-orchestrator/internal/domain"
)

// Config — корневая структура конфигурации оркестратора.
type Config struct {
	Server     ServerConfig        `mapstructure:"server"`
	Database   DatabaseConfig      `mapstructure:"database"`
	Redis      RedisConfig         `mapstructure:"redis"`
	Auth       AuthConfig          `mapstructure:"auth"`
	Engine     EngineConfig        `mapstructure:"engine"`
	Logger     LoggerConfig        `mapstructure:"logger"`
	Guardrails domain.PolicyConfig `mapstructure:"guardrails"`
	Routes     []RouteConfig       `mapstructure:"routes"`
	Backends   map[string]string   `mapstructure:"backends"` // имя сервиса -> base URL
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"` // Отдельный листенер для /metrics
	HealthPort   int           `mapstructure:"health_port"`  // gRPC health (пробы оркестрации)
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (сигналы и межинстансный fanout).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит настройки JWT (HS256) и bcrypt.
type AuthConfig struct {
	Secret     string        `mapstructure:"secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

// EngineConfig содержит настройки пайплайна диспетчеризации.
type EngineConfig struct {
	ExecuteTimeout     time.Duration `mapstructure:"execute_timeout"` // Бюджет одного вызова бэкенда
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditBatchSize     int           `mapstructure:"audit_batch_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`
	DesignQueueSize    int           `mapstructure:"design_queue_size"` // Очередь фоновой кодогенерации

	// Настройки Circuit Breaker и лимитера для вызовов бэкендов
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	RateBurst     int           `mapstructure:"rate_burst"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// RouteConfig — одна строка таблицы маршрутизации команд.
// Порядок строк в конфиге значим: выигрывает первый совпавший префикс.
type RouteConfig struct {
	Prefix  string `mapstructure:"prefix"`
	Service string `mapstructure:"service"`
	Channel string `mapstructure:"channel"` // Канал шины для событий исхода
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает файл: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла (отсутствие файла — не ошибка, работаем на ENV и дефолтах)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Политика guardrail'ов обязана быть валидной уже на старте
	if err := cfg.Guardrails.Validate(); err != nil {
		return nil, fmt.Errorf("guardrails config invalid: %w", err)
	}
	if err := validateRoutes(cfg.Routes, cfg.Backends); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.health_port", 50052)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("auth.token_ttl", 30*time.Minute)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("engine.execute_timeout", 30*time.Second)
	v.SetDefault("engine.audit_buffer_size", 10000)
	v.SetDefault("engine.audit_batch_size", 100)
	v.SetDefault("engine.audit_flush_interval", 500*time.Millisecond)
	v.SetDefault("engine.design_queue_size", 256)
	v.SetDefault("engine.cb_max_requests", 3)
	v.SetDefault("engine.cb_interval", 5*time.Second)
	v.SetDefault("engine.cb_timeout", 30*time.Second)
	v.SetDefault("engine.rate_limit", 100)
	v.SetDefault("engine.rate_burst", 20)

	// Правила по умолчанию повторяют исходную политику платформы:
	// прод меняется только ночью, admin может всё, лимиты 100/512/64, два апрува.
	v.SetDefault("guardrails.change_windows.production.allowed_hours", []int{2, 3, 4, 5})
	v.SetDefault("guardrails.change_windows.production.timezone", "UTC")
	v.SetDefault("guardrails.rbac.admin", []string{"*"})
	v.SetDefault("guardrails.rbac.dev", []string{"read", "deploy"})
	v.SetDefault("guardrails.rbac.viewer", []string{"read"})
	v.SetDefault("guardrails.scaling_limits.max_instances", 100)
	v.SetDefault("guardrails.scaling_limits.max_memory_gb", 512)
	v.SetDefault("guardrails.scaling_limits.max_cpu_cores", 64)
	v.SetDefault("guardrails.prod_lockdown.enabled", true)
	v.SetDefault("guardrails.prod_lockdown.required_approvals", 2)
}

// validateRoutes проверяет, что каждый маршрут указывает на известный бэкенд.
// Пересечения префиксов ("deploy" vs "deploy-prod") допустимы намеренно:
// семантика first-match, порядок задает оператор.
func validateRoutes(routes []RouteConfig, backends map[string]string) error {
	for i, r := range routes {
		if r.Prefix == "" || r.Service == "" {
			return fmt.Errorf("route #%d: prefix and service are required", i)
		}
		if _, ok := backends[r.Service]; !ok {
			return fmt.Errorf("route #%d: unknown backend service %q", i, r.Service)
		}
	}
	return nil
}
