package websocket

import (
	"bytes"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"broadcaster/internal/cache"
	"broadcaster/internal/models"
)

var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// sync.Pool для JSON буферов - убирает аллокации при каждом
// Broadcast (несколько сотен в секунду при активном рынке)
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями.
//
// Назначение:
// Центральная точка доставки real-time обновлений подписчикам.
// Поллер и stream клиент публикуют события через типизированные
// Broadcast* методы, hub сериализует сообщение один раз и
// раскладывает байты по буферам всех клиентов.
//
// Контракт доставки:
// - без подтверждений, без retry, без backpressure к продюсерам
// - медленный клиент (полный буфер send) помечается и удаляется
//   после прохода по всем клиентам, не во время итерации
// - новый подписчик синхронно получает полный снимок состояния
//   до любых последующих дельт
//
// Использование:
//  1. hub := NewHub(accounts, caches, orderBooks, logger)
//  2. go hub.Run()
//  3. hub.BroadcastAccountUpdate(...) из поллера
//  4. hub.Stop() при остановке сервиса
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	// источники полного снимка для новых подписчиков
	accounts   []models.AccountIdentity
	caches     *cache.Registry
	orderBooks *cache.OrderBookRegistry

	dropped atomic.Int64

	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub создает новый Hub
func NewHub(accounts []models.AccountIdentity, caches *cache.Registry, orderBooks *cache.OrderBookRegistry, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		accounts:   accounts,
		caches:     caches,
		orderBooks: orderBooks,
		logger:     logger,
	}
}

// Run запускает главный цикл Hub.
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Завершается по Stop(), закрывая каналы всех клиентов.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()

			// Снимок кладётся в буфер клиента до возврата в select,
			// поэтому любая следующая дельта окажется в буфере ПОСЛЕ
			// него - клиент не видит дельту без базы
			h.sendSnapshot(client)

			connectedClients.Set(float64(total))
			h.logger.Info("subscriber connected", zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()

			connectedClients.Set(float64(total))
			h.logger.Info("subscriber disconnected", zap.Int("total", total))

		case message := <-h.broadcast:
			h.deliver(message)

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			connectedClients.Set(0)
			return
		}
	}
}

// deliver раскладывает сериализованное сообщение по клиентам.
//
// Список клиентов копируется под коротким RLock, отправка идёт без
// блокировки, неуспевающие клиенты удаляются под Write Lock после
// прохода - коллекция не мутируется во время итерации.
func (h *Hub) deliver(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			// буфер клиента полон - он не успевает, убираем
			toRemove = append(toRemove, client)
		}
	}

	if len(toRemove) > 0 {
		h.mu.Lock()
		for _, client := range toRemove {
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		}
		total := len(h.clients)
		h.mu.Unlock()

		h.dropped.Add(int64(len(toRemove)))
		connectedClients.Set(float64(total))
		h.logger.Warn("removed slow subscribers",
			zap.Int("removed", len(toRemove)),
			zap.Int("total", total))
	}

	messagesDelivered.Add(float64(len(clients) - len(toRemove)))
}

// Stop останавливает цикл Run и отключает всех клиентов.
// Повторные вызовы безопасны.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast сериализует сообщение один раз и ставит его в очередь
// доставки. Никогда не блокирует вызывающего: при переполнении
// очереди hub'а сообщение отбрасывается с инкрементом счётчика.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := wireJSON.NewEncoder(buf).Encode(message); err != nil {
		h.logger.Error("failed to marshal broadcast message", zap.Error(err))
		jsonBufferPool.Put(buf)
		return
	}

	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	select {
	case h.broadcast <- msgCopy:
	default:
		h.dropped.Add(1)
		messagesDropped.Inc()
	}
}

// DroppedMessages возвращает счётчик сообщений, потерянных из-за
// переполнения очереди hub'а или буферов клиентов
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ============ Типизированные broadcast helpers ============

// BroadcastAccountUpdate отправляет только изменившиеся поля аккаунта
func (h *Hub) BroadcastAccountUpdate(account models.AccountIdentity, fields map[string]json.RawMessage) {
	h.Broadcast(&AccountUpdateMessage{
		Type:        "account_update",
		AccountID:   account.ID,
		AccountName: account.Name,
		Fields:      fields,
		Timestamp:   time.Now().UTC(),
	})
}

// BroadcastTradesUpdate отправляет обновление истории закрытых позиций
func (h *Hub) BroadcastTradesUpdate(account models.AccountIdentity, trades json.RawMessage) {
	h.Broadcast(&TradesUpdateMessage{
		Type:        "trades_update",
		AccountID:   account.ID,
		AccountName: account.Name,
		Trades:      trades,
		Timestamp:   time.Now().UTC(),
	})
}

// BroadcastOrdersUpdate отправляет обновление активных ордеров
func (h *Hub) BroadcastOrdersUpdate(account models.AccountIdentity, orders json.RawMessage) {
	h.Broadcast(&OrdersUpdateMessage{
		Type:        "orders_update",
		AccountID:   account.ID,
		AccountName: account.Name,
		Orders:      orders,
		Timestamp:   time.Now().UTC(),
	})
}

// BroadcastOrderBook отправляет полную замену стакана рынка
func (h *Hub) BroadcastOrderBook(snap models.OrderBookSnapshot) {
	h.Broadcast(&OrderBookUpdateMessage{
		Type:      "orderbook_update",
		Market:    snap.Market,
		Bids:      snap.Bids,
		Asks:      snap.Asks,
		Sequence:  snap.Sequence,
		Timestamp: snap.Timestamp,
	})
}

// BroadcastPointsUpdate отправляет обновление баллов аккаунта
func (h *Hub) BroadcastPointsUpdate(accountID string, points json.RawMessage) {
	h.Broadcast(&PointsUpdateMessage{
		Type:      "points_update",
		AccountID: accountID,
		Points:    points,
		Timestamp: time.Now().UTC(),
	})
}

// ============ Снимок для нового подписчика ============

// SnapshotMessage собирает полное текущее состояние из кэшей
func (h *Hub) snapshotMessage() *SnapshotMessage {
	accounts := make(map[string]AccountSnapshotState, len(h.accounts))
	for _, acc := range h.accounts {
		c := h.caches.Account(acc.ID)
		if c == nil {
			continue
		}
		snap := c.Snapshot()

		fields := make(map[string]json.RawMessage, 5)
		for field, value := range map[cache.Field]json.RawMessage{
			cache.FieldPositions: snap.Positions,
			cache.FieldBalance:   snap.Balance,
			cache.FieldOrders:    snap.Orders,
			cache.FieldTrades:    snap.Trades,
			cache.FieldPoints:    snap.Points,
		} {
			if value != nil {
				fields[string(field)] = value
			}
		}

		lastUpdate := make(map[string]time.Time, len(snap.LastUpdate))
		for field, ts := range snap.LastUpdate {
			lastUpdate[string(field)] = ts
		}

		accounts[acc.ID] = AccountSnapshotState{
			AccountID:   acc.ID,
			AccountName: acc.Name,
			Fields:      fields,
			LastUpdate:  lastUpdate,
		}
	}

	return &SnapshotMessage{
		Type:       "snapshot",
		Accounts:   accounts,
		OrderBooks: h.orderBooks.All(),
		Timestamp:  time.Now().UTC(),
	}
}

// sendSnapshot кладёт полный снимок в буфер клиента
func (h *Hub) sendSnapshot(client *Client) {
	data, err := wireJSON.Marshal(h.snapshotMessage())
	if err != nil {
		h.logger.Error("failed to marshal snapshot", zap.Error(err))
		return
	}

	select {
	case client.send <- data:
	default:
		// буфер свежесозданного клиента полон только если снимок
		// гигантский, логируем и живём дальше
		h.logger.Warn("snapshot dropped, client buffer full")
	}
}
