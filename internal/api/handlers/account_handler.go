package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"broadcaster/internal/cache"
	"broadcaster/internal/models"

	"github.com/gorilla/mux"
)

// SnapshotHistoryStore читает историю сохраненных балансов аккаунта
type SnapshotHistoryStore interface {
	GetSnapshotHistory(accountID string, limit int) ([]json.RawMessage, error)
}

// AccountHandler обрабатывает HTTP запросы состояния аккаунтов.
//
// Endpoints:
// - GET /api/accounts - список аккаунтов с последними снимками
// - GET /api/accounts/{id} - полный снимок одного аккаунта
// - GET /api/accounts/{id}/balance-history?limit=N - история балансов из БД
//
// Все данные отдаются из in-memory кэша, заполняемого поллером:
// handler никогда не ходит на биржу и отвечает мгновенно.
type AccountHandler struct {
	accounts []models.AccountIdentity
	caches   *cache.Registry
	store    SnapshotHistoryStore
}

// NewAccountHandler создает новый AccountHandler
func NewAccountHandler(accounts []models.AccountIdentity, caches *cache.Registry, store SnapshotHistoryStore) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		caches:   caches,
		store:    store,
	}
}

// accountSummary - облегченное представление аккаунта для списка
type accountSummary struct {
	ID           string `json:"id"`
	Index        int    `json:"index"`
	Name         string `json:"name"`
	MaskedAPIKey string `json:"masked_api_key"`
	HasProxy     bool   `json:"has_proxy"`
	Initialized  bool   `json:"initialized"`
}

// accountDetail - полный снимок состояния аккаунта
type accountDetail struct {
	accountSummary
	Snapshot cache.Snapshot `json:"snapshot"`
}

// GetAccounts возвращает список всех сконфигурированных аккаунтов
//
// GET /api/accounts
func (h *AccountHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	out := make([]accountSummary, 0, len(h.accounts))
	for _, acc := range h.accounts {
		out = append(out, h.summary(acc))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetAccount возвращает полный снимок состояния одного аккаунта
//
// GET /api/accounts/{id}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.find(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	writeJSON(w, http.StatusOK, accountDetail{
		accountSummary: h.summary(acc),
		Snapshot:       h.caches.Account(acc.ID).Snapshot(),
	})
}

// GetBalanceHistory возвращает последние сохраненные балансы аккаунта
//
// GET /api/accounts/{id}/balance-history?limit=100
func (h *AccountHandler) GetBalanceHistory(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.find(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	history, err := h.store.GetSnapshotHistory(acc.ID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load balance history")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Data: history})
}

func (h *AccountHandler) find(id string) (models.AccountIdentity, bool) {
	for _, acc := range h.accounts {
		if acc.ID == id {
			return acc, true
		}
	}
	return models.AccountIdentity{}, false
}

func (h *AccountHandler) summary(acc models.AccountIdentity) accountSummary {
	return accountSummary{
		ID:           acc.ID,
		Index:        acc.Index,
		Name:         acc.Name,
		MaskedAPIKey: acc.MaskedAPIKey(),
		HasProxy:     acc.HasProxy(),
		Initialized:  h.caches.Account(acc.ID).Initialized(),
	}
}
