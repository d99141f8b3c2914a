package handlers

import (
	"net/http"
	"time"
)

// HubStats отдает счетчики broadcast hub
type HubStats interface {
	ClientCount() int
	DroppedMessages() int64
}

// SystemHandler обрабатывает служебные endpoints.
//
// Endpoints:
// - GET /api/health - liveness проверка
// - GET /api/broadcaster/stats - подписчики и потерянные сообщения
type SystemHandler struct {
	hub       HubStats
	startedAt time.Time
}

// NewSystemHandler создает новый SystemHandler
func NewSystemHandler(hub HubStats) *SystemHandler {
	return &SystemHandler{
		hub:       hub,
		startedAt: time.Now(),
	}
}

// Health возвращает статус сервиса и аптайм
//
// GET /api/health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// BroadcasterStats возвращает счетчики WebSocket hub
//
// GET /api/broadcaster/stats
func (h *SystemHandler) BroadcasterStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"clients":          h.hub.ClientCount(),
		"dropped_messages": h.hub.DroppedMessages(),
	})
}
