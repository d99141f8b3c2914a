package poller

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"broadcaster/internal/alerts"
	"broadcaster/internal/cache"
	"broadcaster/internal/models"
)

type stubFetcher struct {
	account   models.AccountIdentity
	mu        sync.Mutex
	responses map[string]json.RawMessage
}

func (f *stubFetcher) Account() models.AccountIdentity { return f.account }

func (f *stubFetcher) Fetch(_ context.Context, path string, _ url.Values) json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.responses[path]
}

func (f *stubFetcher) set(path string, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value == "" {
		delete(f.responses, path)
	} else {
		f.responses[path] = json.RawMessage(value)
	}
}

type hubCall struct {
	kind      string
	accountID string
	fields    map[string]json.RawMessage
	payload   json.RawMessage
}

type stubHub struct {
	mu    sync.Mutex
	calls []hubCall
}

func (h *stubHub) BroadcastAccountUpdate(acc models.AccountIdentity, fields map[string]json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, hubCall{kind: "account_update", accountID: acc.ID, fields: fields})
}

func (h *stubHub) BroadcastOrdersUpdate(acc models.AccountIdentity, orders json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, hubCall{kind: "orders_update", accountID: acc.ID, payload: orders})
}

func (h *stubHub) BroadcastTradesUpdate(acc models.AccountIdentity, trades json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, hubCall{kind: "trades_update", accountID: acc.ID, payload: trades})
}

func (h *stubHub) BroadcastPointsUpdate(accountID string, points json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, hubCall{kind: "points_update", accountID: accountID, payload: points})
}

func (h *stubHub) byKind(kind string) []hubCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []hubCall
	for _, c := range h.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

type storeCall struct {
	kind      string
	accountID string
	payload   json.RawMessage
}

type stubStore struct {
	mu    sync.Mutex
	calls []storeCall
}

func (s *stubStore) record(kind, accountID string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{kind, accountID, payload})
	return nil
}

func (s *stubStore) SaveSnapshot(id string, v json.RawMessage) error  { return s.record("snapshot", id, v) }
func (s *stubStore) SavePositions(id string, v json.RawMessage) error { return s.record("positions", id, v) }
func (s *stubStore) SaveOrders(id string, v json.RawMessage) error    { return s.record("orders", id, v) }
func (s *stubStore) SaveTrade(id string, v json.RawMessage) error     { return s.record("trade", id, v) }

func (s *stubStore) byKind(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

type riskCheck struct {
	accountID string
	ratio     float64
	equity    float64
}

type stubRisk struct {
	mu     sync.Mutex
	checks []riskCheck
}

func (r *stubRisk) CheckAndAlert(_ context.Context, accountID, _ string, ratio, equity float64) alerts.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, riskCheck{accountID, ratio, equity})
	return alerts.Result{}
}

func newTestScheduler(fetchers ...Fetcher) (*Scheduler, *stubHub, *stubStore, *stubRisk) {
	ids := make([]string, 0, len(fetchers))
	for _, f := range fetchers {
		ids = append(ids, f.Account().ID)
	}

	hub := &stubHub{}
	store := &stubStore{}
	risk := &stubRisk{}
	s := NewScheduler(Config{}, fetchers, cache.NewRegistry(ids), hub, store, risk, zap.NewNop())
	return s, hub, store, risk
}

func newStubFetcher(id string) *stubFetcher {
	return &stubFetcher{
		account:   models.AccountIdentity{ID: id, Name: id},
		responses: make(map[string]json.RawMessage),
	}
}

func TestFastTickBroadcastsOnlyChangedFields(t *testing.T) {
	f := newStubFetcher("acc-1")
	f.set(pathPositions, `[{"market": "BTC-USD", "size": 1}]`)
	f.set(pathBalance, `{"equity": 1000}`)
	s, hub, store, _ := newTestScheduler(f)

	s.fastTick(context.Background())

	updates := hub.byKind("account_update")
	if len(updates) != 1 {
		t.Fatalf("expected 1 account_update, got %d", len(updates))
	}
	fields := updates[0].fields
	if _, ok := fields["positions"]; !ok {
		t.Error("changed positions must be in the event")
	}
	if _, ok := fields["balance"]; !ok {
		t.Error("changed balance must be in the event")
	}

	// второй тик с теми же данными: ничего не меняется,
	// события и записи не появляются
	s.fastTick(context.Background())
	if got := hub.byKind("account_update"); len(got) != 1 {
		t.Errorf("identical payloads must not broadcast, got %d updates", len(got))
	}

	// только balance меняется - positions в событии отсутствует
	f.set(pathBalance, `{"equity": 1100}`)
	s.fastTick(context.Background())
	updates = hub.byKind("account_update")
	if len(updates) != 2 {
		t.Fatalf("expected 2 account_updates, got %d", len(updates))
	}
	last := updates[1].fields
	if _, ok := last["positions"]; ok {
		t.Error("unchanged positions must not be in the event")
	}
	if _, ok := last["balance"]; !ok {
		t.Error("changed balance must be in the event")
	}

	drainPersistQueue(s)
	if store.byKind("snapshot") != 2 || store.byKind("positions") != 1 {
		t.Errorf("persist calls: snapshot=%d positions=%d, expected 2/1",
			store.byKind("snapshot"), store.byKind("positions"))
	}
}

func TestFastTickOrdersUpdate(t *testing.T) {
	f := newStubFetcher("acc-1")
	f.set(pathOrders, `[{"id": "o-1", "status": "ACTIVE"}]`)
	s, hub, _, _ := newTestScheduler(f)

	s.fastTick(context.Background())
	s.fastTick(context.Background())

	if got := hub.byKind("orders_update"); len(got) != 1 {
		t.Errorf("expected 1 orders_update, got %d", len(got))
	}
}

func TestFastTickFailedFetchTreatedAsUnchanged(t *testing.T) {
	f := newStubFetcher("acc-1")
	f.set(pathBalance, `{"equity": 1000}`)
	s, hub, _, _ := newTestScheduler(f)

	s.fastTick(context.Background())

	// биржа перестала отвечать: Fetch возвращает nil,
	// кэш хранит последнее известное значение, событий нет
	f.set(pathBalance, "")
	s.fastTick(context.Background())

	if got := hub.byKind("account_update"); len(got) != 1 {
		t.Errorf("nil fetch must not produce events, got %d updates", len(got))
	}

	balance, _, ok := s.caches.Account("acc-1").Get(cache.FieldBalance)
	if !ok || string(balance) != `{"equity": 1000}` {
		t.Errorf("cache must keep the last known value, got %s", balance)
	}
}

func TestFastTickAccountIsolation(t *testing.T) {
	healthy := newStubFetcher("acc-1")
	healthy.set(pathBalance, `{"equity": 500}`)
	broken := newStubFetcher("acc-2") // все Fetch возвращают nil
	s, hub, _, _ := newTestScheduler(healthy, broken)

	s.fastTick(context.Background())

	updates := hub.byKind("account_update")
	if len(updates) != 1 || updates[0].accountID != "acc-1" {
		t.Errorf("healthy account must produce its update despite the broken sibling: %+v", updates)
	}
}

func TestMediumTickTrades(t *testing.T) {
	f := newStubFetcher("acc-1")
	f.set(pathPositionHistory, `[{"id": 1, "market": "BTC-USD"}, {"id": 2, "market": "ETH-USD"}]`)
	s, hub, store, _ := newTestScheduler(f)

	s.mediumTick(context.Background())

	if got := hub.byKind("trades_update"); len(got) != 1 {
		t.Fatalf("expected 1 trades_update, got %d", len(got))
	}

	drainPersistQueue(s)
	if got := store.byKind("trade"); got != 2 {
		t.Errorf("each trade must be persisted individually, got %d", got)
	}

	// та же страница истории - тишина
	s.mediumTick(context.Background())
	if got := hub.byKind("trades_update"); len(got) != 1 {
		t.Errorf("identical history must not broadcast, got %d", len(got))
	}
}

func TestSlowTickRiskFromCachedBalance(t *testing.T) {
	f := newStubFetcher("acc-1")
	f.set(pathBalance, `{"equity": 1000, "marginRatio": 0.85}`)
	s, _, _, risk := newTestScheduler(f)

	// без кэшированного баланса risk monitor не вызывается
	s.slowTick(context.Background())
	if len(risk.checks) != 0 {
		t.Fatalf("risk must not run without cached balance, got %d checks", len(risk.checks))
	}

	s.fastTick(context.Background())
	s.slowTick(context.Background())

	if len(risk.checks) != 1 {
		t.Fatalf("expected 1 risk check, got %d", len(risk.checks))
	}
	if risk.checks[0].ratio != 0.85 || risk.checks[0].equity != 1000 {
		t.Errorf("risk check = %+v, expected ratio=0.85 equity=1000", risk.checks[0])
	}
}

func TestSlowTickPoints(t *testing.T) {
	f := newStubFetcher("acc-1")
	f.set(pathPoints, `{"points": 1200}`)
	s, hub, _, _ := newTestScheduler(f)

	s.slowTick(context.Background())
	s.slowTick(context.Background())

	if got := hub.byKind("points_update"); len(got) != 1 {
		t.Errorf("expected 1 points_update, got %d", len(got))
	}
}

func TestRunCadenceAndShutdown(t *testing.T) {
	f := newStubFetcher("acc-1")
	f.set(pathBalance, `{"equity": 1000, "marginRatio": 0.5}`)
	s, _, _, risk := newTestScheduler(f)
	s.cfg.FastInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// ждём пока доедет хотя бы до 20-го тика (медленная каденция)
	deadline := time.After(2 * time.Second)
	for {
		risk.mu.Lock()
		n := len(risk.checks)
		risk.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("slow cadence never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run must stop on context cancellation")
	}
}

func TestRunSurvivesPanickingTick(t *testing.T) {
	f := newStubFetcher("acc-1")
	s, _, _, _ := newTestScheduler(f)
	s.cfg.FastInterval = time.Millisecond
	s.cfg.ErrorBackoff = time.Millisecond
	s.hub = nil // BroadcastAccountUpdate по nil интерфейсу паникует

	f.set(pathBalance, `{"equity": 1}`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx) // не должен упасть процессом
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context timeout")
	}
}

// drainPersistQueue синхронно выполняет накопленные persist задания
func drainPersistQueue(s *Scheduler) {
	for {
		select {
		case job := <-s.persistCh:
			switch job.kind {
			case "snapshot":
				s.store.SaveSnapshot(job.accountID, job.payload)
			case "positions":
				s.store.SavePositions(job.accountID, job.payload)
			case "orders":
				s.store.SaveOrders(job.accountID, job.payload)
			case "trade":
				s.store.SaveTrade(job.accountID, job.payload)
			}
		default:
			return
		}
	}
}
