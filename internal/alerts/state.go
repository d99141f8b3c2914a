package alerts

import (
	"sync"
	"time"
)

// AlertState отслеживает отправленные алерты для защиты от спама.
//
// Ключ - пара (account id, threshold). Инварианты:
// - алерт для одного порога не повторяется внутри cooldown окна
// - состояние порога сбрасывается когда маржа аккаунта опускается
//   ниже этого порога, следующее пересечение алертит заново
type AlertState struct {
	mu       sync.Mutex
	sent     map[stateKey]time.Time
	cooldown time.Duration
}

type stateKey struct {
	accountID string
	threshold float64
}

// NewAlertState создаёт пустое состояние с указанным cooldown.
func NewAlertState(cooldown time.Duration) *AlertState {
	return &AlertState{
		sent:     make(map[stateKey]time.Time),
		cooldown: cooldown,
	}
}

// CanSend проверяет, прошёл ли cooldown с последней отправки
// для пары (account, threshold)
func (s *AlertState) CanSend(accountID string, threshold float64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.sent[stateKey{accountID, threshold}]
	if !ok {
		return true
	}
	return now.Sub(last) > s.cooldown
}

// MarkSent фиксирует отправку алерта
func (s *AlertState) MarkSent(accountID string, threshold float64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[stateKey{accountID, threshold}] = now
}

// Reset сбрасывает состояние одного порога аккаунта
func (s *AlertState) Reset(accountID string, threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sent, stateKey{accountID, threshold})
}

// ResetBelow сбрасывает состояние всех порогов аккаунта, выше ratio.
// Вызывается на каждой проверке: маржа упала ниже порога - порог
// снова вооружён.
func (s *AlertState) ResetBelow(accountID string, ratio float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range MarginThresholds {
		if ratio < t {
			delete(s.sent, stateKey{accountID, t})
		}
	}
}
