package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"broadcaster/internal/cache"
	"broadcaster/internal/models"
)

func newTestHub() *Hub {
	accounts := []models.AccountIdentity{
		{ID: "acc-1", Index: 1, Name: "main"},
	}
	return NewHub(accounts, cache.NewRegistry([]string{"acc-1"}), cache.NewOrderBookRegistry(), zap.NewNop())
}

func newTestClient(buffer int) *Client {
	return &Client{send: make(chan []byte, buffer)}
}

func receiveMessage(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.send:
		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("invalid message: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestDeliverPrunesSlowSubscriberAfterSweep(t *testing.T) {
	h := newTestHub()

	c1 := newTestClient(4)
	c2 := newTestClient(1)
	c3 := newTestClient(4)
	h.clients[c1] = true
	h.clients[c2] = true
	h.clients[c3] = true

	// буфер второго клиента заполнен - доставка ему провалится
	c2.send <- []byte("stale")

	h.deliver([]byte(`{"type":"account_update"}`))

	if len(c1.send) != 1 || len(c3.send) != 1 {
		t.Errorf("healthy subscribers must receive the message: c1=%d c3=%d", len(c1.send), len(c3.send))
	}
	if _, ok := h.clients[c2]; ok {
		t.Error("slow subscriber must be removed from the set")
	}
	if _, ok := h.clients[c1]; !ok {
		t.Error("healthy subscriber must stay in the set")
	}
	if h.DroppedMessages() != 1 {
		t.Errorf("DroppedMessages = %d, expected 1", h.DroppedMessages())
	}

	// канал удалённого клиента закрыт
	<-c2.send // stale сообщение
	if _, ok := <-c2.send; ok {
		t.Error("removed subscriber's channel must be closed")
	}
}

func TestBroadcastDoesNotBlockProducer(t *testing.T) {
	h := newTestHub()

	// Run не запущен - очередь hub'а никто не читает. Переполняем её
	// и убеждаемся, что Broadcast возвращается, а не виснет.
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(h.broadcast)+10; i++ {
			h.Broadcast(&PingMessage{Type: "ping"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked the producer on a full hub queue")
	}

	if h.DroppedMessages() == 0 {
		t.Error("overflow must be counted as dropped")
	}
}

func TestRegisterSendsSnapshotBeforeDeltas(t *testing.T) {
	h := newTestHub()
	h.caches.Account("acc-1").UpdateIfChanged(cache.FieldBalance, json.RawMessage(`{"equity": 100}`), time.Now())

	go h.Run()
	defer h.Stop()

	client := newTestClient(16)
	h.register <- client

	h.BroadcastAccountUpdate(models.AccountIdentity{ID: "acc-1", Name: "main"},
		map[string]json.RawMessage{"balance": json.RawMessage(`{"equity": 120}`)})

	first := receiveMessage(t, client)
	if first["type"] != "snapshot" {
		t.Fatalf("first message type = %v, expected snapshot", first["type"])
	}

	accounts, ok := first["accounts"].(map[string]interface{})
	if !ok || accounts["acc-1"] == nil {
		t.Error("snapshot must carry state for configured accounts")
	}

	second := receiveMessage(t, client)
	if second["type"] != "account_update" {
		t.Errorf("second message type = %v, expected account_update", second["type"])
	}
}

func TestBroadcastOrderBook(t *testing.T) {
	h := newTestHub()
	go h.Run()
	defer h.Stop()

	client := newTestClient(16)
	h.register <- client
	receiveMessage(t, client) // снимок

	h.BroadcastOrderBook(models.OrderBookSnapshot{
		Market:   "BTC-USD",
		Bids:     []models.PriceLevel{{Price: 50000, Size: 1.5}},
		Asks:     []models.PriceLevel{{Price: 50010, Size: 2}},
		Sequence: 42,
	})

	msg := receiveMessage(t, client)
	if msg["type"] != "orderbook_update" || msg["market"] != "BTC-USD" {
		t.Errorf("unexpected orderbook message: %v", msg)
	}
}

func TestStopClosesSubscribers(t *testing.T) {
	h := newTestHub()
	go h.Run()

	client := newTestClient(16)
	h.register <- client
	receiveMessage(t, client) // снимок

	h.Stop()
	h.Stop() // повторный Stop безопасен

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-client.send:
			if !ok {
				return // канал закрыт, как и ожидалось
			}
		case <-deadline:
			t.Fatal("Stop must close subscriber channels")
		}
	}
}
