package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации шлюза и консоли.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Adapters AdaptersConfig `mapstructure:"adapters"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP и gRPC серверов шлюза.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	GRPCPort     int           `mapstructure:"grpc_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub, блок-лист, rate limit).
// Redis — коллаборатор: при его недоступности шлюз деградирует до локальных
// лимитов, а не отказывает всем вызовам.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для Console API
	AgentTokenTTL  time.Duration `mapstructure:"agent_token_ttl"`  // Короткоживущие агентские токены
	UserTokenTTL   time.Duration `mapstructure:"user_token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PublicKey      []byte
	PrivateKey     []byte
}

// EngineConfig — настройки Data Plane: аудит, ретраи, предохранитель, лимиты.
type EngineConfig struct {
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`
	AuditBatchSize     int           `mapstructure:"audit_batch_size"`

	// Ретраи только для идемпотентных операций
	RetryAttempts uint          `mapstructure:"retry_attempts"`
	RetryBaseWait time.Duration `mapstructure:"retry_base_wait"`
	RetryMaxWait  time.Duration `mapstructure:"retry_max_wait"`

	// Circuit Breaker на каждый адаптер
	CBMaxRequests  uint32        `mapstructure:"cb_max_requests"` // Пробные запросы в half-open
	CBInterval     time.Duration `mapstructure:"cb_interval"`     // Окно подсчета отказов
	CBFailures     uint32        `mapstructure:"cb_failures"`     // Порог последовательных отказов
	CBCooldown     time.Duration `mapstructure:"cb_cooldown"`     // Базовый cool-down
	CBMaxCooldown  time.Duration `mapstructure:"cb_max_cooldown"` // Потолок эскалации после неудачных проб
	DefaultTimeout time.Duration `mapstructure:"default_timeout"` // Потолок дедлайна вызова

	// Rate limit: распределенный (Redis) с локальным fallback
	RateLimit  int           `mapstructure:"rate_limit"` // Запросов на агента в окно
	RateBurst  int           `mapstructure:"rate_burst"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

// AdaptersConfig — привязки бэкенд-адаптеров.
type AdaptersConfig struct {
	// GRPC: имя адаптера -> адрес коннектора ("kb": "localhost:50051")
	GRPC map[string]string `mapstructure:"grpc"`

	Web   WebAdapterConfig   `mapstructure:"web"`
	Files FilesAdapterConfig `mapstructure:"files"`

	MockEnabled bool `mapstructure:"mock_enabled"` // Для dev-окружения и нагрузочных прогонов
}

// WebAdapterConfig — лимиты безопасности web-инструментов.
type WebAdapterConfig struct {
	AllowedDomains []string      `mapstructure:"allowed_domains"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxBytes       int64         `mapstructure:"max_bytes"`
}

// FilesAdapterConfig — корневая директория файловых инструментов.
type FilesAdapterConfig struct {
	BaseDir  string `mapstructure:"base_dir"`
	MaxChars int    `mapstructure:"max_chars"`
}

// TracingConfig — экспорт трейсов в OTLP-коллектор. Пустой endpoint = выключено.
type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
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

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Ключи из файла ИЛИ напрямую из ENV (для Docker/K8s)
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 50052)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("auth.agent_token_ttl", 15*time.Minute)
	v.SetDefault("auth.user_token_ttl", 12*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("logger.level", "info")
	v.SetDefault("engine.audit_buffer_size", 10000)
	v.SetDefault("engine.audit_flush_interval", 500*time.Millisecond)
	v.SetDefault("engine.audit_batch_size", 100)
	v.SetDefault("engine.retry_attempts", 3)
	v.SetDefault("engine.retry_base_wait", 100*time.Millisecond)
	v.SetDefault("engine.retry_max_wait", 2*time.Second)
	v.SetDefault("engine.cb_max_requests", 1)
	v.SetDefault("engine.cb_interval", 10*time.Second)
	v.SetDefault("engine.cb_failures", 5)
	v.SetDefault("engine.cb_cooldown", 15*time.Second)
	v.SetDefault("engine.cb_max_cooldown", 2*time.Minute)
	v.SetDefault("engine.default_timeout", 30*time.Second)
	v.SetDefault("engine.rate_limit", 100)
	v.SetDefault("engine.rate_burst", 20)
	v.SetDefault("engine.rate_window", time.Second)
	v.SetDefault("adapters.web.timeout", 12*time.Second)
	v.SetDefault("adapters.web.max_bytes", 800_000)
	v.SetDefault("adapters.files.base_dir", "./data")
	v.SetDefault("adapters.files.max_chars", 200_000)
}

// loadKeyResource — ключ либо напрямую в ENV (PEM), либо файлом по пути
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
