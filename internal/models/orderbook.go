package models

import "time"

// PriceLevel - один уровень стакана (цена + объём на уровне)
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBookSnapshot - полный снимок стакана одного рынка.
//
// Фид биржи присылает полную глубину в каждом сообщении, поэтому снимок
// всегда заменяется целиком: частичных обновлений полей нет. Sequence -
// монотонный номер от биржи, позволяет клиентам отбрасывать устаревшие
// снимки после переподключения.
type OrderBookSnapshot struct {
	Market    string       `json:"market"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Sequence  int64        `json:"sequence"`
	Timestamp time.Time    `json:"timestamp"`
}
