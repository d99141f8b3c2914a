package models

import "time"

// TradePosition - закрытая позиция из истории биржи.
//
// Запись неизменяема после сохранения и ключуется по ID, который
// присваивает биржа. Повторный fetch той же позиции может уточнить
// числовые поля (например, позже появляется exit_price), но никогда
// не меняет привязку id -> account.
type TradePosition struct {
	ID              int64     `json:"id"`
	AccountID       string    `json:"account_id"`
	AccountIndex    int       `json:"account_index"`
	AccountName     string    `json:"account_name"`
	Market          string    `json:"market"`
	Side            string    `json:"side"`
	Size            float64   `json:"size"`
	MaxPositionSize float64   `json:"max_position_size"`
	Leverage        float64   `json:"leverage"`
	OpenPrice       float64   `json:"open_price"`
	ExitPrice       float64   `json:"exit_price"`
	RealisedPnl     float64   `json:"realised_pnl"`
	TradePnl        float64   `json:"trade_pnl"`
	FundingFees     float64   `json:"funding_fees"`
	OpenFees        float64   `json:"open_fees"`
	CloseFees       float64   `json:"close_fees"`
	CreatedTime     int64     `json:"created_time"` // миллисекунды от биржи
	CreatedAt       time.Time `json:"created_at"`
	EpochStart      time.Time `json:"epoch_start"`
	EpochNumber     int       `json:"epoch_number"`
}

// TradeFill - исполненный ордер из истории биржи, ключ - биржевой id
type TradeFill struct {
	ID           int64     `json:"id"`
	AccountID    string    `json:"account_id"`
	AccountIndex int       `json:"account_index"`
	Market       string    `json:"market"`
	Side         string    `json:"side"`
	Price        float64   `json:"price"`
	Qty          float64   `json:"qty"`
	Fee          float64   `json:"fee"`
	IsMaker      bool      `json:"is_maker"`
	CreatedTime  int64     `json:"created_time"`
	CreatedAt    time.Time `json:"created_at"`
}
