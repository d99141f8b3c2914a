package cache

import (
	"encoding/json"
	"sync"
	"time"
)

// Field - имя поля кэша аккаунта
type Field string

// Поля кэша аккаунта. Каждое поле опрашивается со своей каденцией.
const (
	FieldPositions Field = "positions"
	FieldBalance   Field = "balance"
	FieldOrders    Field = "orders"
	FieldTrades    Field = "trades"
	FieldPoints    Field = "points"
)

// AccountCache - последнее известное состояние одного аккаунта.
//
// Назначение:
// Единица мутации и детекции изменений. Писатель один - поллер,
// владеющий fast/medium каденциями этого аккаунта. Читателей много:
// HTTP слой, risk monitor, hub (снимок при подключении клиента).
//
// Инвариант: значение поля и его отметка времени в lastUpdate
// обновляются атомарно под одним мьютексом - читатель никогда не
// увидит значение, для которого ещё не выставлен timestamp.
type AccountCache struct {
	mu         sync.RWMutex
	data       map[Field]json.RawMessage
	lastUpdate map[Field]time.Time
}

// NewAccountCache создаёт пустой кэш аккаунта
func NewAccountCache() *AccountCache {
	return &AccountCache{
		data:       make(map[Field]json.RawMessage),
		lastUpdate: make(map[Field]time.Time),
	}
}

// Get возвращает значение поля и время его последнего обновления.
// ok=false, если поле ещё ни разу не было получено.
func (c *AccountCache) Get(f Field) (value json.RawMessage, updatedAt time.Time, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok = c.data[f]
	return value, c.lastUpdate[f], ok
}

// UpdateIfChanged сравнивает новое значение с кэшированным и, если они
// структурно различаются, записывает значение вместе с отметкой времени
// одним шагом под write-lock. Возвращает true, если запись произошла.
//
// Идентичное (с точностью до порядка ключей) значение НЕ трогает
// ни данные, ни lastUpdate - и не должно порождать broadcast у вызывающего.
func (c *AccountCache) UpdateIfChanged(f Field, value json.RawMessage, now time.Time) bool {
	if value == nil {
		// Отсутствие данных (ошибка fetch) трактуем как "без изменений"
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !Changed(c.data[f], value) {
		return false
	}

	c.data[f] = value
	c.lastUpdate[f] = now
	return true
}

// Snapshot - point-in-time копия состояния аккаунта
type Snapshot struct {
	Positions  json.RawMessage     `json:"positions"`
	Balance    json.RawMessage     `json:"balance"`
	Orders     json.RawMessage     `json:"orders"`
	Trades     json.RawMessage     `json:"trades"`
	Points     json.RawMessage     `json:"points"`
	LastUpdate map[Field]time.Time `json:"last_update"`
}

// Snapshot возвращает копию всех полей под одним read-lock.
// Используется при подключении нового подписчика и в HTTP handlers.
func (c *AccountCache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lu := make(map[Field]time.Time, len(c.lastUpdate))
	for k, v := range c.lastUpdate {
		lu[k] = v
	}

	return Snapshot{
		Positions:  c.data[FieldPositions],
		Balance:    c.data[FieldBalance],
		Orders:     c.data[FieldOrders],
		Trades:     c.data[FieldTrades],
		Points:     c.data[FieldPoints],
		LastUpdate: lu,
	}
}

// Initialized проверяет, получены ли хотя бы positions и balance
func (c *AccountCache) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, hasPos := c.data[FieldPositions]
	_, hasBal := c.data[FieldBalance]
	return hasPos && hasBal
}

// Registry - кэши всех сконфигурированных аккаунтов.
//
// Создаётся один раз при старте и дальше не меняет состав: аккаунты
// не добавляются и не удаляются на лету. Передаётся явно во все
// компоненты (poller, hub, API) - глобального экземпляра нет.
type Registry struct {
	caches map[string]*AccountCache
}

// NewRegistry создаёт пустые кэши для каждого переданного account id
func NewRegistry(accountIDs []string) *Registry {
	caches := make(map[string]*AccountCache, len(accountIDs))
	for _, id := range accountIDs {
		caches[id] = NewAccountCache()
	}
	return &Registry{caches: caches}
}

// Account возвращает кэш аккаунта по id (nil, если аккаунт не сконфигурирован)
func (r *Registry) Account(accountID string) *AccountCache {
	return r.caches[accountID]
}

// Len возвращает количество аккаунтов
func (r *Registry) Len() int {
	return len(r.caches)
}
