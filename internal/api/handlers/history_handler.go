package handlers

import (
	"context"
	"net/http"
	"strconv"

	"broadcaster/internal/models"

	"github.com/gorilla/mux"
)

// TradeHistoryStore читает архив закрытых позиций
type TradeHistoryStore interface {
	GetRecent(limit int) ([]*models.TradePosition, error)
	GetAccountTrades(epochNumber, accountIndex int) ([]*models.TradePosition, error)
}

// Refresher запускает полную пересборку архива с нуля
type Refresher interface {
	FullRefresh(ctx context.Context) error
}

// HistoryHandler обрабатывает HTTP запросы архива сделок.
//
// Endpoints:
// - GET /api/history?limit=N - последние закрытые позиции
// - GET /api/history/{epoch}/{account} - позиции аккаунта за эпоху
// - POST /api/history/refresh - очистить архив и перезагрузить с биржи
type HistoryHandler struct {
	store     TradeHistoryStore
	refresher Refresher
}

// NewHistoryHandler создает новый HistoryHandler
func NewHistoryHandler(store TradeHistoryStore, refresher Refresher) *HistoryHandler {
	return &HistoryHandler{
		store:     store,
		refresher: refresher,
	}
}

// GetRecent возвращает последние закрытые позиции по всем аккаунтам
//
// GET /api/history?limit=100
func (h *HistoryHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	trades, err := h.store.GetRecent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load trade history")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Data: trades})
}

// GetAccountTrades возвращает позиции одного аккаунта за одну эпоху
//
// GET /api/history/{epoch}/{account}
func (h *HistoryHandler) GetAccountTrades(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	epoch, err := strconv.Atoi(vars["epoch"])
	if err != nil || epoch < 1 {
		writeError(w, http.StatusBadRequest, "epoch must be a positive integer")
		return
	}

	accountIndex, err := strconv.Atoi(vars["account"])
	if err != nil || accountIndex < 1 {
		writeError(w, http.StatusBadRequest, "account must be a positive integer")
		return
	}

	trades, err := h.store.GetAccountTrades(epoch, accountIndex)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load account trades")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Data: trades})
}

// Refresh очищает архив и перезагружает всю историю с биржи.
// Операция синхронная и может занять десятки секунд.
//
// POST /api/history/refresh
func (h *HistoryHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.refresher.FullRefresh(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "history refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Message: "history refreshed"})
}
