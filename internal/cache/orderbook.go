package cache

import (
	"sync"

	"broadcaster/internal/models"
)

// OrderBookRegistry - последние снимки стаканов по рынкам.
//
// Пишет только stream клиент (замена снимка целиком), читают HTTP слой
// и hub при отправке полного снимка новому подписчику.
type OrderBookRegistry struct {
	mu    sync.RWMutex
	books map[string]models.OrderBookSnapshot
}

// NewOrderBookRegistry создаёт пустой реестр стаканов
func NewOrderBookRegistry() *OrderBookRegistry {
	return &OrderBookRegistry{
		books: make(map[string]models.OrderBookSnapshot),
	}
}

// Replace заменяет снимок рынка целиком
func (r *OrderBookRegistry) Replace(snap models.OrderBookSnapshot) {
	r.mu.Lock()
	r.books[snap.Market] = snap
	r.mu.Unlock()
}

// Get возвращает снимок рынка
func (r *OrderBookRegistry) Get(market string) (models.OrderBookSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.books[market]
	return snap, ok
}

// All возвращает копию всех снимков
func (r *OrderBookRegistry) All() map[string]models.OrderBookSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]models.OrderBookSnapshot, len(r.books))
	for market, snap := range r.books {
		out[market] = snap
	}
	return out
}
