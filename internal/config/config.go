package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"broadcaster/internal/alerts"
	"broadcaster/internal/models"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Poller   PollerConfig
	Stream   StreamConfig
	Alerts   AlertsConfig
	Archiver ArchiverConfig
	Logging  LoggingConfig

	// Аккаунты биржи, загруженные из ACCOUNT_N_* переменных
	Accounts []models.AccountIdentity
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port int
	Host string
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

// PollerConfig - настройки циклов опроса REST API
type PollerConfig struct {
	// Интервал быстрого цикла (позиции + баланс + ордера)
	FastInterval time.Duration

	// Каждый N-й тик быстрого цикла дополнительно запрашивает
	// историю сделок
	TradesEvery int

	// Каждый N-й тик быстрого цикла проверяет маржинальные риски
	// и запрашивает поинты
	RiskEvery int

	// Пауза после паники или системной ошибки тика
	ErrorBackoff time.Duration

	// Размер страницы истории сделок в быстром цикле
	HistoryPageSize int
}

// StreamConfig - настройки WebSocket стрима стакана
type StreamConfig struct {
	// URL WebSocket эндпоинта биржи. Пустая строка отключает стрим.
	URL string

	// Рынки для подписки на стакан
	Markets []string

	// Глубина стакана (уровней на сторону)
	Depth int

	// Опциональный прокси для WS соединения
	ProxyURL string

	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

// AlertsConfig - настройки каналов маржинальных алертов.
// Имена переменных окружения сохранены в историческом виде,
// чтобы не ломать существующие деплои.
type AlertsConfig struct {
	// Минимальный интервал между повторными алертами по одному
	// порогу одного аккаунта
	Cooldown time.Duration

	TelegramBotToken string
	TelegramChatID   string

	PushoverAppToken string
	PushoverUserKey  string

	Twilio alerts.TwilioConfig
}

// ArchiverConfig - настройки фонового архиватора истории
type ArchiverConfig struct {
	Interval time.Duration
	PageSize int
	MaxPages int
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// maxAccounts ограничивает перебор ACCOUNT_N_* переменных
const maxAccounts = 32

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "broadcaster"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Poller: PollerConfig{
			FastInterval:    getEnvAsDuration("POLL_FAST_INTERVAL", 250*time.Millisecond),
			TradesEvery:     getEnvAsInt("POLL_TRADES_EVERY", 4),
			RiskEvery:       getEnvAsInt("POLL_RISK_EVERY", 20),
			ErrorBackoff:    getEnvAsDuration("POLL_ERROR_BACKOFF", 500*time.Millisecond),
			HistoryPageSize: getEnvAsInt("POLL_HISTORY_PAGE_SIZE", 50),
		},
		Stream: StreamConfig{
			URL:           getEnv("STREAM_WS_URL", ""),
			Markets:       splitCSV(getEnv("STREAM_MARKETS", "BTC-PERP")),
			Depth:         getEnvAsInt("STREAM_DEPTH", 10),
			ProxyURL:      getEnv("STREAM_PROXY", ""),
			ReconnectBase: getEnvAsDuration("STREAM_RECONNECT_BASE", 5*time.Second),
			ReconnectMax:  getEnvAsDuration("STREAM_RECONNECT_MAX", 300*time.Second),
		},
		Alerts: AlertsConfig{
			Cooldown:         getEnvAsDuration("ALERT_COOLDOWN", 30*time.Minute),
			TelegramBotToken: getEnv("Telegram_bot_token", ""),
			TelegramChatID:   getEnv("Telegram_id", ""),
			PushoverAppToken: getEnv("Pushover_API_token", ""),
			PushoverUserKey:  getEnv("Pushover_user_key", ""),
			Twilio: alerts.TwilioConfig{
				AccountSID:   getEnv("Twilio_account_sid", ""),
				APIKeySID:    getEnv("Twilio_sid", ""),
				APIKeySecret: getEnv("Twillio_secret_api", ""),
				ToNumber:     getEnv("Alert_phone_number", ""),
				FromNumber:   getEnv("Twilio_from_number", ""),
			},
		},
		Archiver: ArchiverConfig{
			Interval: getEnvAsDuration("ARCHIVE_INTERVAL", 10*time.Minute),
			PageSize: getEnvAsInt("ARCHIVE_PAGE_SIZE", 100),
			MaxPages: getEnvAsInt("ARCHIVE_MAX_PAGES", 50),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	accounts, err := loadAccounts()
	if err != nil {
		return nil, err
	}
	cfg.Accounts = accounts

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadAccounts собирает аккаунты из ACCOUNT_N_API_KEY / ACCOUNT_N_NAME /
// ACCOUNT_N_BASE_URL / ACCOUNT_N_PROXY. Нумерация непрерывная с 1:
// первый пропущенный индекс завершает перебор.
func loadAccounts() ([]models.AccountIdentity, error) {
	var accounts []models.AccountIdentity

	for i := 1; i <= maxAccounts; i++ {
		apiKey := os.Getenv(fmt.Sprintf("ACCOUNT_%d_API_KEY", i))
		if apiKey == "" {
			break
		}

		baseURL := strings.TrimRight(getEnv(fmt.Sprintf("ACCOUNT_%d_BASE_URL", i), ""), "/")
		if baseURL == "" {
			return nil, fmt.Errorf("ACCOUNT_%d_BASE_URL is required when ACCOUNT_%d_API_KEY is set", i, i)
		}

		proxyURL, err := models.ParseProxySpec(os.Getenv(fmt.Sprintf("ACCOUNT_%d_PROXY", i)))
		if err != nil {
			return nil, fmt.Errorf("ACCOUNT_%d_PROXY: %w", i, err)
		}

		accounts = append(accounts, models.AccountIdentity{
			ID:       fmt.Sprintf("account_%d", i),
			Index:    i,
			Name:     getEnv(fmt.Sprintf("ACCOUNT_%d_NAME", i), fmt.Sprintf("Account %d", i)),
			APIKey:   apiKey,
			BaseURL:  baseURL,
			ProxyURL: proxyURL,
		})
	}

	return accounts, nil
}

// validate проверяет обязательные параметры и числовые диапазоны
func (c *Config) validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required (set ACCOUNT_1_API_KEY)")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Poller.FastInterval <= 0 {
		return fmt.Errorf("POLL_FAST_INTERVAL must be positive, got %v", c.Poller.FastInterval)
	}

	if c.Poller.TradesEvery < 1 {
		return fmt.Errorf("POLL_TRADES_EVERY must be at least 1, got %d", c.Poller.TradesEvery)
	}

	if c.Poller.RiskEvery < 1 {
		return fmt.Errorf("POLL_RISK_EVERY must be at least 1, got %d", c.Poller.RiskEvery)
	}

	if c.Stream.Depth < 1 {
		return fmt.Errorf("STREAM_DEPTH must be at least 1, got %d", c.Stream.Depth)
	}

	if c.Alerts.Cooldown <= 0 {
		return fmt.Errorf("ALERT_COOLDOWN must be positive, got %v", c.Alerts.Cooldown)
	}

	if c.Archiver.PageSize < 1 {
		return fmt.Errorf("ARCHIVE_PAGE_SIZE must be at least 1, got %d", c.Archiver.PageSize)
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

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
