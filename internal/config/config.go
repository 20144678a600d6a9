package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Security  SecurityConfig
	Providers ProvidersConfig
	Engine    EngineConfig
	Logging   LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// bcrypt-хэш операторского токена для админ-API
	APITokenHash string
	// секрет подписи входящих webhook'ов платёжного провайдера
	WebhookSecret string
	// ключ шифрования API ключей провайдеров в БД
	EncryptionKey string
}

// ProvidersConfig - адреса и ключи внешних провайдеров
type ProvidersConfig struct {
	InvoiceBaseURL string // платёжный провайдер (СБП/карты)
	InvoiceAPIKey  string
	WalletBaseURL  string // кошелёк выплат (Lightning/onchain)
	WalletAdminKey string
	RatesBaseURL   string // источник курсов
}

// EngineConfig - параметры движка заявок
type EngineConfig struct {
	// Шардирование шины событий
	NumShards int // шардов = воркеров, одна заявка всегда в одном шарде
	BusBuffer int // ёмкость очереди шарда

	// Расписание опроса подтверждения оплаты
	MonitorDelays      []time.Duration
	MonitorMaxAttempts int

	// Проверка статуса выплаты после отправки
	PayoutVerifyAttempts int
	PayoutVerifyInterval time.Duration

	// Очистка терминальных заявок из памяти
	SweepInterval time.Duration
	Retention     time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "cryptodesk"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			APITokenHash:  getEnv("API_TOKEN_HASH", ""),
			WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		Providers: ProvidersConfig{
			InvoiceBaseURL: getEnv("INVOICE_BASE_URL", ""),
			InvoiceAPIKey:  getEnv("INVOICE_API_KEY", ""),
			WalletBaseURL:  getEnv("WALLET_BASE_URL", ""),
			WalletAdminKey: getEnv("WALLET_ADMIN_KEY", ""),
			RatesBaseURL:   getEnv("RATES_BASE_URL", ""),
		},
		Engine: EngineConfig{
			NumShards: getEnvAsInt("ENGINE_SHARDS", 8),
			BusBuffer: getEnvAsInt("ENGINE_BUS_BUFFER", 128),

			// Растущие интервалы: оплата по СБП обычно видна в первые
			// минуты, дальше опрашиваем всё реже
			MonitorDelays: getEnvAsDurationList("MONITOR_DELAYS",
				[]time.Duration{30 * time.Second, time.Minute, 2 * time.Minute, 5 * time.Minute, 10 * time.Minute, 30 * time.Minute}),
			MonitorMaxAttempts: getEnvAsInt("MONITOR_MAX_ATTEMPTS", 20),

			PayoutVerifyAttempts: getEnvAsInt("PAYOUT_VERIFY_ATTEMPTS", 10),
			PayoutVerifyInterval: getEnvAsDuration("PAYOUT_VERIFY_INTERVAL", 3*time.Second),

			SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", 10*time.Minute),
			Retention:     getEnvAsDuration("ORDER_RETENTION", 24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// API_TOKEN_HASH обязателен - без него админ-API открыт всем
	if c.Security.APITokenHash == "" {
		return fmt.Errorf("API_TOKEN_HASH is required for admin API authentication")
	}

	// WEBHOOK_SECRET обязателен для проверки подписи уведомлений провайдера
	if c.Security.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required for webhook signature verification")
	}

	if len(c.Security.WebhookSecret) < 32 {
		return fmt.Errorf("WEBHOOK_SECRET must be at least 32 characters for security")
	}

	// ENCRYPTION_KEY обязателен для шифрования ключей провайдеров
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting provider API keys")
	}

	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// Валидация шардирования шины
	if c.Engine.NumShards < 1 {
		return fmt.Errorf("ENGINE_SHARDS must be positive, got %d", c.Engine.NumShards)
	}

	if c.Engine.BusBuffer < 1 {
		return fmt.Errorf("ENGINE_BUS_BUFFER must be positive, got %d", c.Engine.BusBuffer)
	}

	// Расписание монитора
	if len(c.Engine.MonitorDelays) == 0 {
		return fmt.Errorf("MONITOR_DELAYS must contain at least one interval")
	}

	for _, d := range c.Engine.MonitorDelays {
		if d <= 0 {
			return fmt.Errorf("MONITOR_DELAYS intervals must be positive, got %v", d)
		}
	}

	if c.Engine.MonitorMaxAttempts < 1 {
		return fmt.Errorf("MONITOR_MAX_ATTEMPTS must be positive, got %d", c.Engine.MonitorMaxAttempts)
	}

	// Верификация выплаты
	if c.Engine.PayoutVerifyAttempts < 1 {
		return fmt.Errorf("PAYOUT_VERIFY_ATTEMPTS must be positive, got %d", c.Engine.PayoutVerifyAttempts)
	}

	if c.Engine.PayoutVerifyInterval <= 0 {
		return fmt.Errorf("PAYOUT_VERIFY_INTERVAL must be positive, got %v", c.Engine.PayoutVerifyInterval)
	}

	// Очистка памяти
	if c.Engine.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %v", c.Engine.SweepInterval)
	}

	if c.Engine.Retention <= 0 {
		return fmt.Errorf("ORDER_RETENTION must be positive, got %v", c.Engine.Retention)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDurationList парсит список длительностей через запятую: "30s,1m,5m".
// При любой ошибке парсинга возвращает значение по умолчанию целиком.
func getEnvAsDurationList(key string, defaultValue []time.Duration) []time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	result := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil {
			return defaultValue
		}
		result = append(result, d)
	}
	return result
}
