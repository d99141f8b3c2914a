package handlers

import (
	"net/http"
	"strconv"

	"broadcaster/internal/models"

	"github.com/gorilla/mux"
)

// StatsStore агрегирует архив сделок по эпохам и периодам
type StatsStore interface {
	GetEpochs() ([]models.EpochSummary, error)
	GetEpochStats(epochNumber int) (*models.EpochStats, error)
	GetPeriodStats(period string) (*models.PeriodStats, error)
	GetArchiveStats() (*models.ArchiveStats, error)
}

// StatsHandler обрабатывает HTTP запросы агрегированной статистики.
//
// Endpoints:
// - GET /api/epochs - список недельных эпох с количеством позиций
// - GET /api/epochs/{epoch}/stats - разбивка эпохи по аккаунтам
// - GET /api/stats/periods/{period} - сводка за 24h/7d/30d
// - GET /api/stats/archive - метаданные архива (размер, границы)
type StatsHandler struct {
	store StatsStore
}

// NewStatsHandler создает новый StatsHandler
func NewStatsHandler(store StatsStore) *StatsHandler {
	return &StatsHandler{store: store}
}

// GetEpochs возвращает список всех эпох в архиве
//
// GET /api/epochs
func (h *StatsHandler) GetEpochs(w http.ResponseWriter, r *http.Request) {
	epochs, err := h.store.GetEpochs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load epochs")
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Data: epochs})
}

// GetEpochStats возвращает статистику эпохи с разбивкой по аккаунтам
//
// GET /api/epochs/{epoch}/stats
func (h *StatsHandler) GetEpochStats(w http.ResponseWriter, r *http.Request) {
	epoch, err := strconv.Atoi(mux.Vars(r)["epoch"])
	if err != nil || epoch < 1 {
		writeError(w, http.StatusBadRequest, "epoch must be a positive integer")
		return
	}

	stats, err := h.store.GetEpochStats(epoch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load epoch stats")
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Data: stats})
}

// GetPeriodStats возвращает сводку за скользящий период
//
// GET /api/stats/periods/{period}  (period: 24h | 7d | 30d)
func (h *StatsHandler) GetPeriodStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetPeriodStats(mux.Vars(r)["period"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Data: stats})
}

// GetArchiveStats возвращает метаданные архива
//
// GET /api/stats/archive
func (h *StatsHandler) GetArchiveStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetArchiveStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load archive stats")
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Data: stats})
}
