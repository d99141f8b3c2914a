package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"broadcaster/internal/models"

	"github.com/gorilla/mux"
)

func TestHistoryHandler_GetRecent(t *testing.T) {
	t.Run("returns trades", func(t *testing.T) {
		store := &mockHistoryStore{recent: []*models.TradePosition{
			{ID: 101, Market: "BTC-PERP", AccountIndex: 1},
		}}
		handler := NewHistoryHandler(store, &mockRefresher{})

		req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
		w := httptest.NewRecorder()

		handler.GetRecent(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response SuccessResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Data == nil {
			t.Error("expected data in response")
		}
	})

	t.Run("rejects bad limit", func(t *testing.T) {
		handler := NewHistoryHandler(&mockHistoryStore{}, &mockRefresher{})

		req := httptest.NewRequest(http.MethodGet, "/api/history?limit=-1", nil)
		w := httptest.NewRecorder()

		handler.GetRecent(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("returns 500 on store error", func(t *testing.T) {
		handler := NewHistoryHandler(&mockHistoryStore{err: ErrMockDatabase}, &mockRefresher{})

		req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
		w := httptest.NewRecorder()

		handler.GetRecent(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

func TestHistoryHandler_GetAccountTrades(t *testing.T) {
	t.Run("parses epoch and account from path", func(t *testing.T) {
		store := &mockHistoryStore{}
		handler := NewHistoryHandler(store, &mockRefresher{})

		req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/history/12/3", nil),
			map[string]string{"epoch": "12", "account": "3"})
		w := httptest.NewRecorder()

		handler.GetAccountTrades(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if store.lastEpoch != 12 || store.lastAccount != 3 {
			t.Errorf("store called with (%d, %d)", store.lastEpoch, store.lastAccount)
		}
	})

	t.Run("rejects zero epoch", func(t *testing.T) {
		handler := NewHistoryHandler(&mockHistoryStore{}, &mockRefresher{})

		req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/history/0/1", nil),
			map[string]string{"epoch": "0", "account": "1"})
		w := httptest.NewRecorder()

		handler.GetAccountTrades(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}

func TestHistoryHandler_Refresh(t *testing.T) {
	t.Run("triggers full refresh", func(t *testing.T) {
		refresher := &mockRefresher{}
		handler := NewHistoryHandler(&mockHistoryStore{}, refresher)

		req := httptest.NewRequest(http.MethodPost, "/api/history/refresh", nil)
		w := httptest.NewRecorder()

		handler.Refresh(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if refresher.calls != 1 {
			t.Errorf("FullRefresh calls = %d, want 1", refresher.calls)
		}
	})

	t.Run("returns 500 on refresh error", func(t *testing.T) {
		handler := NewHistoryHandler(&mockHistoryStore{}, &mockRefresher{err: ErrMockDatabase})

		req := httptest.NewRequest(http.MethodPost, "/api/history/refresh", nil)
		w := httptest.NewRecorder()

		handler.Refresh(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}
