package handlers

import (
	"context"
	"net/http"
)

// AlertTester проверяет работоспособность каналов уведомлений
type AlertTester interface {
	TestAllChannels(ctx context.Context) map[string]bool
	ConfigStatus() map[string]bool
}

// AlertsHandler обрабатывает HTTP запросы управления алертами.
//
// Endpoints:
// - GET /api/alerts/status - какие каналы сконфигурированы
// - POST /api/alerts/test - отправить тестовое сообщение во все каналы
type AlertsHandler struct {
	manager AlertTester
}

// NewAlertsHandler создает новый AlertsHandler
func NewAlertsHandler(manager AlertTester) *AlertsHandler {
	return &AlertsHandler{manager: manager}
}

// GetStatus возвращает конфигурационный статус каждого канала
//
// GET /api/alerts/status
func (h *AlertsHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SuccessResponse{Data: h.manager.ConfigStatus()})
}

// TestChannels отправляет тестовое сообщение во все сконфигурированные
// каналы и возвращает результат по каждому
//
// POST /api/alerts/test
func (h *AlertsHandler) TestChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SuccessResponse{Data: h.manager.TestAllChannels(r.Context())})
}
