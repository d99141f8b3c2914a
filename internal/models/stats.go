package models

import "time"

// EpochSummary - одна недельная эпоха в списке эпох
type EpochSummary struct {
	EpochNumber   int       `json:"epoch_number"`
	EpochStart    time.Time `json:"epoch_start"`
	EpochEnd      time.Time `json:"epoch_end"`
	PositionCount int       `json:"position_count"`
	AccountCount  int       `json:"account_count"`
}

// AccountEpochStats - агрегаты одного аккаунта за эпоху
type AccountEpochStats struct {
	AccountIndex int     `json:"account_index"`
	AccountID    string  `json:"account_id"`
	AccountName  string  `json:"account_name"`
	Positions    int     `json:"positions"`
	MarketsCount int     `json:"markets_traded"`
	Volume       float64 `json:"volume"`
	Fees         float64 `json:"fees"`
	Pnl          float64 `json:"pnl"`
	TradePnl     float64 `json:"trade_pnl"`
	FundingFees  float64 `json:"funding_fees"`
	MakerVolume  float64 `json:"maker_volume"`
	TakerVolume  float64 `json:"taker_volume"`
}

// EpochStats - агрегаты всей эпохи: суммарные и по аккаунтам
type EpochStats struct {
	EpochNumber      int                 `json:"epoch_number"`
	TotalPositions   int                 `json:"total_positions"`
	TotalAccounts    int                 `json:"total_accounts"`
	TotalMarkets     int                 `json:"total_markets"`
	TotalVolume      float64             `json:"total_volume"`
	TotalFees        float64             `json:"total_fees"`
	TotalPnl         float64             `json:"total_pnl"`
	TotalTradePnl    float64             `json:"total_trade_pnl"`
	TotalFundingFees float64             `json:"total_funding_fees"`
	Accounts         []AccountEpochStats `json:"accounts"`
}

// PeriodStats - агрегаты скользящего окна (24h/7d/30d)
type PeriodStats struct {
	Period      string  `json:"period"`
	Positions   int     `json:"positions"`
	Volume      float64 `json:"volume"`
	Fees        float64 `json:"fees"`
	Pnl         float64 `json:"pnl"`
	TradePnl    float64 `json:"trade_pnl"`
	FundingFees float64 `json:"funding_fees"`
}

// ArchiveStats - общее состояние таблицы истории
type ArchiveStats struct {
	TotalRecords  int        `json:"total_records"`
	TotalAccounts int        `json:"total_accounts"`
	TotalEpochs   int        `json:"total_epochs"`
	Earliest      *time.Time `json:"earliest"`
	Latest        *time.Time `json:"latest"`
	LastFetch     *time.Time `json:"last_fetch"`
}
