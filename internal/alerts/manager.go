package alerts

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Manager - точка входа мониторинга маржи.
//
// CheckAndAlert вызывается планировщиком на медленном цикле для
// каждого аккаунта с текущим margin ratio из кэша. Менеджер сам
// решает, какой порог превышен, какие каналы вызвать и не пора ли
// замолчать (cooldown).
type Manager struct {
	state    *AlertState
	channels []Channel
	logger   *zap.Logger
	now      func() time.Time
}

// Result - итог одной проверки CheckAndAlert
type Result struct {
	AccountID          string   `json:"account_id"`
	AccountName        string   `json:"account_name"`
	MarginRatio        float64  `json:"margin_ratio"`
	Equity             float64  `json:"equity"`
	ThresholdTriggered float64  `json:"threshold_triggered,omitempty"`
	AlertsSent         []string `json:"alerts_sent"`
	CooldownActive     bool     `json:"cooldown_active,omitempty"`
}

// NewManager создаёт менеджер с указанными каналами.
// Ненастроенные каналы (пустые креды) пропускаются при отправке,
// но остаются в списке для ConfigStatus.
func NewManager(cooldown time.Duration, channels []Channel, logger *zap.Logger) *Manager {
	return &Manager{
		state:    NewAlertState(cooldown),
		channels: channels,
		logger:   logger,
		now:      time.Now,
	}
}

// DefaultChannels собирает стандартный набор каналов из кредов.
func DefaultChannels(telegramToken, telegramChatID, pushoverToken, pushoverKey string, twilio TwilioConfig) []Channel {
	client := &http.Client{Timeout: 10 * time.Second}
	return []Channel{
		&TelegramChannel{BotToken: telegramToken, ChatID: telegramChatID, Client: client},
		&PushoverChannel{AppToken: pushoverToken, UserKey: pushoverKey, Client: client},
		&SMSChannel{Config: twilio, Client: client},
		&CallChannel{Config: twilio, Client: client},
	}
}

// CheckAndAlert проверяет margin ratio аккаунта и рассылает алерты.
//
// Логика:
//  1. Пороги выше текущего ratio разоружаются - следующее пересечение
//     алертит заново.
//  2. Если ни один порог не превышен - выход.
//  3. Если превышенный порог в cooldown - выход с CooldownActive.
//  4. Иначе вызываются все каналы яруса; отказ одного канала не
//     мешает остальным. Порог помечается отправленным независимо
//     от успеха каналов - частичная доставка не повод спамить.
func (m *Manager) CheckAndAlert(ctx context.Context, accountID, accountName string, marginRatio, equity float64) Result {
	result := Result{
		AccountID:   accountID,
		AccountName: accountName,
		MarginRatio: marginRatio,
		Equity:      equity,
		AlertsSent:  []string{},
	}

	m.state.ResetBelow(accountID, marginRatio)

	threshold, crossed := ThresholdLevel(marginRatio)
	if !crossed {
		return result
	}
	result.ThresholdTriggered = threshold

	now := m.now()
	if !m.state.CanSend(accountID, threshold, now) {
		result.CooldownActive = true
		return result
	}

	alert := Alert{
		AccountID:   accountID,
		AccountName: accountName,
		MarginRatio: marginRatio,
		Equity:      equity,
		Threshold:   threshold,
		Timestamp:   now,
	}

	for _, ch := range m.channels {
		if threshold < ch.MinThreshold() {
			continue
		}
		if !ch.Configured() {
			m.logger.Warn("alert channel not configured, skipping",
				zap.String("channel", ch.Name()))
			continue
		}

		if err := ch.Send(ctx, alert); err != nil {
			alertSendFailures.WithLabelValues(ch.Name()).Inc()
			m.logger.Error("alert channel send failed",
				zap.String("channel", ch.Name()),
				zap.String("account", accountName),
				zap.Float64("threshold", threshold),
				zap.Error(err))
			continue
		}

		alertsSent.WithLabelValues(ch.Name()).Inc()
		result.AlertsSent = append(result.AlertsSent, ch.Name())
	}

	m.state.MarkSent(accountID, threshold, now)

	m.logger.Info("margin alert dispatched",
		zap.String("account", accountName),
		zap.Float64("margin_ratio", marginRatio),
		zap.Float64("threshold", threshold),
		zap.Strings("channels", result.AlertsSent))

	return result
}

// TestAllChannels отправляет тестовый алерт во все настроенные
// каналы. Используется эндпоинтом /api/alerts/test.
func (m *Manager) TestAllChannels(ctx context.Context) map[string]bool {
	alert := Alert{
		AccountID:   "test",
		AccountName: "TEST ACCOUNT",
		MarginRatio: 0.85,
		Equity:      10000,
		Threshold:   0.80,
		Timestamp:   m.now(),
	}

	results := make(map[string]bool, len(m.channels))
	for _, ch := range m.channels {
		if !ch.Configured() {
			results[ch.Name()] = false
			continue
		}
		results[ch.Name()] = ch.Send(ctx, alert) == nil
	}
	return results
}

// ConfigStatus возвращает какие каналы настроены.
// Креды не раскрываются, только факт наличия.
func (m *Manager) ConfigStatus() map[string]bool {
	status := make(map[string]bool, len(m.channels))
	for _, ch := range m.channels {
		status[ch.Name()] = ch.Configured()
	}
	return status
}
