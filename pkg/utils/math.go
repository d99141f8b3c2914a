package utils

import (
	"math"
)

// math.go - математические утилиты для агрегации статистики
//
// Все функции являются чистыми (pure functions) без побочных эффектов.

// Round округляет значение до указанного числа знаков после запятой.
//
// Используется при формировании API ответов со статистикой, чтобы
// не отдавать клиентам float64 с артефактами двоичного представления.
func Round(value float64, decimals int) float64 {
	if decimals < 0 {
		return value
	}
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}

// SafeRatio возвращает a/b, либо 0 если знаменатель нулевой.
//
// Типовой случай - расчёт win rate и долей объёма по рынкам, когда
// у аккаунта ещё нет сделок.
func SafeRatio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
