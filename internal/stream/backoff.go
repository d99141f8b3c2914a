package stream

import (
	"math/rand"
	"time"
)

// reconnectDelay возвращает базовую (без jitter) задержку перед
// попыткой переподключения attempt (нумерация с 1).
//
// delay = min(base * 2^min(attempt-1, 6), max)
//
// Показатель степени ограничен 6, чтобы 2^attempt не переполнился
// на длинных сериях отказов; сверху задержка ограничена max.
func reconnectDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	exp := attempt - 1
	if exp > 6 {
		exp = 6
	}

	delay := base * time.Duration(1<<uint(exp))
	if delay > max {
		delay = max
	}
	return delay
}

// jitter умножает задержку на случайный коэффициент из [0.5, 1.5),
// размазывая reconnect storm при массовом обрыве
func jitter(d time.Duration) time.Duration {
	factor := 0.5 + rand.Float64()
	return time.Duration(float64(d) * factor)
}
