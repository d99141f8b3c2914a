package models

import (
	"fmt"
	"strconv"
	"strings"
)

// AccountIdentity - неизменяемая конфигурация одного суб-аккаунта биржи.
//
// Создаётся один раз при старте процесса из переменных окружения и дальше
// никогда не мутируется: все горутины опроса читают её только на чтение.
// Secret-поля (APIKey) не должны попадать в логи и API ответы целиком -
// используйте MaskedAPIKey.
type AccountIdentity struct {
	// Стабильный идентификатор аккаунта ("account_1" ... "account_N")
	ID string

	// Порядковый номер аккаунта (1..N), используется как ключ в БД
	Index int

	// Человекочитаемое имя для логов и UI
	Name string

	// API ключ для заголовка X-Api-Key
	APIKey string

	// Базовый URL REST API (без trailing slash)
	BaseURL string

	// Опциональный прокси для всех запросов этого аккаунта.
	// Пустая строка = прямое соединение.
	ProxyURL string
}

// MaskedAPIKey возвращает первые 6 символов ключа для диагностики
func (a AccountIdentity) MaskedAPIKey() string {
	if len(a.APIKey) <= 6 {
		return "***"
	}
	return a.APIKey[:6] + "..."
}

// HasProxy проверяет, настроен ли прокси для аккаунта
func (a AccountIdentity) HasProxy() bool {
	return a.ProxyURL != ""
}

// ParseProxySpec преобразует прокси из формата "IP:PORT:USER:PASS"
// (формат, в котором прокси выдают провайдеры) в обычный proxy URL
// "http://user:pass@ip:port". Уже готовый URL (с префиксом http:// или
// socks5://) возвращается как есть.
func ParseProxySpec(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "socks5://") {
		return raw, nil
	}

	parts := strings.Split(raw, ":")
	if len(parts) != 4 {
		return "", fmt.Errorf("invalid proxy spec: expected IP:PORT:USER:PASS, got %d parts", len(parts))
	}

	host, port, user, pass := parts[0], parts[1], parts[2], parts[3]
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid proxy port %q: %w", port, err)
	}

	return fmt.Sprintf("http://%s:%s@%s:%s", user, pass, host, port), nil
}
