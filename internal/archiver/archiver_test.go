package archiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"testing"

	"go.uber.org/zap"

	"broadcaster/internal/models"
)

// pagedFetcher отдаёт историю позиций страницами из заданного набора
type pagedFetcher struct {
	account   models.AccountIdentity
	positions []string // JSON объектов позиций
	fills     []string
	requests  []string // path?offset для проверки листания
}

func (f *pagedFetcher) Account() models.AccountIdentity { return f.account }

func (f *pagedFetcher) Fetch(_ context.Context, path string, params url.Values) json.RawMessage {
	limit, _ := strconv.Atoi(params.Get("limit"))
	offset, _ := strconv.Atoi(params.Get("offset"))
	f.requests = append(f.requests, fmt.Sprintf("%s?offset=%d", path, offset))

	var source []string
	switch path {
	case pathPositionHistory:
		source = f.positions
	case pathFills:
		source = f.fills
	default:
		return nil
	}

	if offset >= len(source) {
		return json.RawMessage(`[]`)
	}
	end := offset + limit
	if end > len(source) {
		end = len(source)
	}

	page := "["
	for i, item := range source[offset:end] {
		if i > 0 {
			page += ","
		}
		page += item
	}
	page += "]"
	return json.RawMessage(page)
}

type recordingStore struct {
	positions []int64
	fills     []int64
	cleared   bool
	failOn    int64
}

func (s *recordingStore) UpsertPosition(pos *models.TradePosition) error {
	if s.failOn != 0 && pos.ID == s.failOn {
		return errors.New("db unavailable")
	}
	s.positions = append(s.positions, pos.ID)
	return nil
}

func (s *recordingStore) UpsertFill(fill *models.TradeFill) error {
	s.fills = append(s.fills, fill.ID)
	return nil
}

func (s *recordingStore) ClearAll() error {
	s.cleared = true
	return nil
}

func positionJSON(id int) string {
	return fmt.Sprintf(`{"id": %d, "market": "BTC-USD", "createdTime": 1748863200000}`, id)
}

func fillJSON(id int) string {
	return fmt.Sprintf(`{"id": %d, "market": "BTC-USD", "createdTime": 1748863200000}`, id)
}

func TestRunOncePagesUntilShortPage(t *testing.T) {
	// 5 позиций при размере страницы 2: страницы 2+2+1,
	// последняя короткая останавливает листание
	f := &pagedFetcher{account: models.AccountIdentity{ID: "acc-1", Index: 1, Name: "main"}}
	for i := 1; i <= 5; i++ {
		f.positions = append(f.positions, positionJSON(i))
	}
	store := &recordingStore{}

	a := New(Config{PageSize: 2}, []Fetcher{f}, store, zap.NewNop())
	a.RunOnce(context.Background())

	if len(store.positions) != 5 {
		t.Fatalf("expected 5 positions saved, got %d", len(store.positions))
	}

	pages := 0
	for _, req := range f.requests {
		if req == "/user/positions/history?offset=0" ||
			req == "/user/positions/history?offset=2" ||
			req == "/user/positions/history?offset=4" {
			pages++
		}
	}
	if pages != 3 {
		t.Errorf("expected 3 history pages, requests: %v", f.requests)
	}
}

func TestRunOnceArchivesFills(t *testing.T) {
	f := &pagedFetcher{
		account:   models.AccountIdentity{ID: "acc-1", Index: 1, Name: "main"},
		positions: []string{positionJSON(1)},
		fills:     []string{fillJSON(10), fillJSON(11)},
	}
	store := &recordingStore{}

	a := New(Config{PageSize: 10}, []Fetcher{f}, store, zap.NewNop())
	a.RunOnce(context.Background())

	if len(store.fills) != 2 {
		t.Errorf("expected 2 fills saved, got %d", len(store.fills))
	}
}

func TestRunOnceSkipsRecordsWithoutID(t *testing.T) {
	f := &pagedFetcher{
		account:   models.AccountIdentity{ID: "acc-1"},
		positions: []string{positionJSON(1), `{"market": "ETH-USD"}`, positionJSON(2)},
	}
	store := &recordingStore{}

	a := New(Config{PageSize: 10}, []Fetcher{f}, store, zap.NewNop())
	a.RunOnce(context.Background())

	if len(store.positions) != 2 {
		t.Errorf("expected 2 positions (record without id skipped), got %d", len(store.positions))
	}
}

func TestRunOnceAccountFailureIsolated(t *testing.T) {
	broken := &pagedFetcher{
		account:   models.AccountIdentity{ID: "acc-1", Name: "broken"},
		positions: []string{positionJSON(99)},
	}
	healthy := &pagedFetcher{
		account:   models.AccountIdentity{ID: "acc-2", Name: "healthy"},
		positions: []string{positionJSON(1)},
	}
	store := &recordingStore{failOn: 99}

	a := New(Config{PageSize: 10}, []Fetcher{broken, healthy}, store, zap.NewNop())
	a.RunOnce(context.Background())

	if len(store.positions) != 1 || store.positions[0] != 1 {
		t.Errorf("healthy account must be archived despite the broken one: %v", store.positions)
	}
}

func TestFullRefreshClearsFirst(t *testing.T) {
	f := &pagedFetcher{
		account:   models.AccountIdentity{ID: "acc-1"},
		positions: []string{positionJSON(1)},
	}
	store := &recordingStore{}

	a := New(Config{PageSize: 10}, []Fetcher{f}, store, zap.NewNop())
	if err := a.FullRefresh(context.Background()); err != nil {
		t.Fatalf("FullRefresh failed: %v", err)
	}

	if !store.cleared {
		t.Error("FullRefresh must clear tables before refetching")
	}
	if len(store.positions) != 1 {
		t.Errorf("expected refetch after clear, got %d positions", len(store.positions))
	}
}

func TestPageThroughStopsOnNilFetch(t *testing.T) {
	// Fetch без данных (сетевой сбой) обрывает листание без ошибки
	f := &pagedFetcher{account: models.AccountIdentity{ID: "acc-1"}}
	store := &recordingStore{}

	a := New(Config{PageSize: 10}, []Fetcher{f}, store, zap.NewNop())

	n, err := a.pageThrough(context.Background(), f, "/nonexistent", func(json.RawMessage) error {
		t.Fatal("save must not be called")
		return nil
	})
	if err != nil || n != 0 {
		t.Errorf("nil fetch must stop paging silently: n=%d err=%v", n, err)
	}
}
