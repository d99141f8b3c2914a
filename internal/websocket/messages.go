package websocket

import (
	"encoding/json"
	"time"

	"broadcaster/internal/models"
)

// ============ Типизированные broadcast сообщения ============
// Избегаем map[string]interface{} - Go сериализует известные типы
// без рефлексии по ключам

// AccountUpdateMessage - изменившиеся поля одного аккаунта.
// Fields содержит только то, что реально изменилось в этом тике
// (positions и/или balance и/или orders)
type AccountUpdateMessage struct {
	Type        string                     `json:"type"`
	AccountID   string                     `json:"account_id"`
	AccountName string                     `json:"account_name"`
	Fields      map[string]json.RawMessage `json:"fields"`
	Timestamp   time.Time                  `json:"timestamp"`
}

// TradesUpdateMessage - новая страница истории закрытых позиций
type TradesUpdateMessage struct {
	Type        string          `json:"type"`
	AccountID   string          `json:"account_id"`
	AccountName string          `json:"account_name"`
	Trades      json.RawMessage `json:"trades"`
	Timestamp   time.Time       `json:"timestamp"`
}

// OrdersUpdateMessage - изменившийся список активных ордеров
type OrdersUpdateMessage struct {
	Type        string          `json:"type"`
	AccountID   string          `json:"account_id"`
	AccountName string          `json:"account_name"`
	Orders      json.RawMessage `json:"orders"`
	Timestamp   time.Time       `json:"timestamp"`
}

// OrderBookUpdateMessage - полная замена стакана одного рынка
type OrderBookUpdateMessage struct {
	Type      string              `json:"type"`
	Market    string              `json:"market"`
	Bids      []models.PriceLevel `json:"bids"`
	Asks      []models.PriceLevel `json:"asks"`
	Sequence  int64               `json:"sequence"`
	Timestamp time.Time           `json:"timestamp"`
}

// PointsUpdateMessage - обновление баллов аккаунта
type PointsUpdateMessage struct {
	Type      string          `json:"type"`
	AccountID string          `json:"account_id"`
	Points    json.RawMessage `json:"points"`
	Timestamp time.Time       `json:"timestamp"`
}

// PingMessage - heartbeat, отправляется каждому клиенту ~раз в 30с
type PingMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// AccountSnapshotState - состояние одного аккаунта внутри snapshot
type AccountSnapshotState struct {
	AccountID   string                     `json:"account_id"`
	AccountName string                     `json:"account_name"`
	Fields      map[string]json.RawMessage `json:"fields"`
	LastUpdate  map[string]time.Time       `json:"last_update"`
}

// SnapshotMessage - полное текущее состояние, отправляется новому
// подписчику при подключении. Клиент никогда не видит дельту
// раньше, чем базу, к которой она применяется.
type SnapshotMessage struct {
	Type       string                              `json:"type"`
	Accounts   map[string]AccountSnapshotState     `json:"accounts"`
	OrderBooks map[string]models.OrderBookSnapshot `json:"orderbooks"`
	Timestamp  time.Time                           `json:"timestamp"`
}
