package utils

import (
	"time"
)

// time.go - утилиты для работы со временем
//
// Назначение:
// Вспомогательные функции для агрегации торговой статистики по периодам
// и недельным эпохам (поинтовая программа биржи считает объёмы по неделям).
//
// Эпоха - это неделя с понедельника 00:00 UTC. Эпоха №1 началась
// 28 апреля 2025 года; номер эпохи растёт на 1 каждую неделю.

// epochOneStart - начало эпохи №1 (понедельник)
var epochOneStart = time.Date(2025, time.April, 28, 0, 0, 0, 0, time.UTC)

// EpochStart возвращает начало недельной эпохи (понедельник 00:00 UTC),
// в которую попадает указанное время
func EpochStart(t time.Time) time.Time {
	t = t.UTC()
	// Weekday: Sunday=0 ... Saturday=6; приводим к Monday=0
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	monday := t.AddDate(0, 0, -daysSinceMonday)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
}

// EpochNumber возвращает номер недельной эпохи для указанного времени.
// Времена до начала эпохи №1 относятся к эпохе 1.
func EpochNumber(t time.Time) int {
	delta := t.UTC().Sub(epochOneStart)
	week := int(delta.Hours() / 24 / 7)
	if week < 0 {
		return 1
	}
	return week + 1
}

// EpochDates возвращает границы эпохи: начало (понедельник) и
// последний день (воскресенье)
func EpochDates(epoch int) (start, end time.Time) {
	if epoch < 1 {
		epoch = 1
	}
	start = epochOneStart.AddDate(0, 0, (epoch-1)*7)
	end = start.AddDate(0, 0, 6)
	return start, end
}

// GetDayStartFrom возвращает начало дня (00:00:00 UTC) для указанного времени
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
