package api

import (
	"net/http"

	"broadcaster/internal/api/handlers"
	"broadcaster/internal/api/middleware"
	"broadcaster/internal/cache"
	"broadcaster/internal/models"
	"broadcaster/internal/websocket"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Accounts  []models.AccountIdentity
	Caches    *cache.Registry
	Hub       *websocket.Hub
	Snapshots handlers.SnapshotHistoryStore
	History   handlers.TradeHistoryStore
	Stats     handlers.StatsStore
	Alerts    handlers.AlertTester
	Refresher handlers.Refresher
	Logger    *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/
//
//	├── GET  /health - liveness проверка
//	├── GET  /accounts - список аккаунтов
//	├── GET  /accounts/{id} - снимок одного аккаунта
//	├── GET  /accounts/{id}/balance-history - история балансов
//	├── GET  /history - последние закрытые позиции
//	├── GET  /history/{epoch}/{account} - позиции за эпоху
//	├── POST /history/refresh - полная пересборка архива
//	├── GET  /epochs - список эпох
//	├── GET  /epochs/{epoch}/stats - статистика эпохи
//	├── GET  /stats/periods/{period} - сводка за 24h/7d/30d
//	├── GET  /stats/archive - метаданные архива
//	├── GET  /alerts/status - статус каналов алертов
//	├── POST /alerts/test - тестовая отправка алертов
//	└── GET  /broadcaster/stats - счетчики hub
//
// /ws/broadcast - WebSocket для real-time обновлений
// /metrics - Prometheus метрики
//
// Middleware: Recovery и CORS глобально, Logging только на /api
// (WebSocket upgrade не переживает оборачивание ResponseWriter).
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.CORS)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.Logging(deps.Logger))

	systemHandler := handlers.NewSystemHandler(deps.Hub)
	api.HandleFunc("/health", systemHandler.Health).Methods("GET")
	api.HandleFunc("/broadcaster/stats", systemHandler.BroadcasterStats).Methods("GET")

	accountHandler := handlers.NewAccountHandler(deps.Accounts, deps.Caches, deps.Snapshots)
	api.HandleFunc("/accounts", accountHandler.GetAccounts).Methods("GET")
	api.HandleFunc("/accounts/{id}", accountHandler.GetAccount).Methods("GET")
	api.HandleFunc("/accounts/{id}/balance-history", accountHandler.GetBalanceHistory).Methods("GET")

	if deps.History != nil {
		historyHandler := handlers.NewHistoryHandler(deps.History, deps.Refresher)
		api.HandleFunc("/history", historyHandler.GetRecent).Methods("GET")
		api.HandleFunc("/history/{epoch:[0-9]+}/{account:[0-9]+}", historyHandler.GetAccountTrades).Methods("GET")
		api.HandleFunc("/history/refresh", historyHandler.Refresh).Methods("POST")
	}

	if deps.Stats != nil {
		statsHandler := handlers.NewStatsHandler(deps.Stats)
		api.HandleFunc("/epochs", statsHandler.GetEpochs).Methods("GET")
		api.HandleFunc("/epochs/{epoch:[0-9]+}/stats", statsHandler.GetEpochStats).Methods("GET")
		api.HandleFunc("/stats/periods/{period}", statsHandler.GetPeriodStats).Methods("GET")
		api.HandleFunc("/stats/archive", statsHandler.GetArchiveStats).Methods("GET")
	}

	if deps.Alerts != nil {
		alertsHandler := handlers.NewAlertsHandler(deps.Alerts)
		api.HandleFunc("/alerts/status", alertsHandler.GetStatus).Methods("GET")
		api.HandleFunc("/alerts/test", alertsHandler.TestChannels).Methods("POST")
	}

	// WebSocket route - мимо logging middleware
	router.HandleFunc("/ws/broadcast", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWS(deps.Hub, w, r)
	})

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}
