// Package alerts реализует мониторинг маржи аккаунтов и отправку
// уведомлений при превышении пороговых значений.
//
// Эскалация по порогам:
// - 70%: push уведомление (Telegram + Pushover)
// - 80%: push + SMS
// - 90%: push + SMS + телефонный звонок
// - 95%: push + SMS + звонок (критический, emergency priority)
package alerts

// MarginThresholds - пороги использования маржи по возрастанию.
// Порядок важен: ThresholdLevel ищет наибольший порог <= ratio.
var MarginThresholds = []float64{0.70, 0.80, 0.90, 0.95}

// ThresholdLevel возвращает наибольший порог, который превышен
// данным margin ratio, и ok=false если не превышен ни один.
func ThresholdLevel(ratio float64) (float64, bool) {
	for i := len(MarginThresholds) - 1; i >= 0; i-- {
		if ratio >= MarginThresholds[i] {
			return MarginThresholds[i], true
		}
	}
	return 0, false
}
