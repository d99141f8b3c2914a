package exchange

import (
	"encoding/json"
	"time"

	"broadcaster/internal/models"
	"broadcaster/pkg/utils"
)

// rawPosition - закрытая позиция как отдаёт её биржа.
// realisedPnl приходит с разбивкой по составляющим в отдельном
// объекте realisedPnlBreakdown.
type rawPosition struct {
	ID              int64     `json:"id"`
	Market          string    `json:"market"`
	Side            string    `json:"side"`
	Size            flexFloat `json:"size"`
	MaxPositionSize flexFloat `json:"maxPositionSize"`
	Leverage        flexFloat `json:"leverage"`
	OpenPrice       flexFloat `json:"openPrice"`
	ExitPrice       flexFloat `json:"exitPrice"`
	RealisedPnl     flexFloat `json:"realisedPnl"`
	CreatedTime     int64     `json:"createdTime"`
	Breakdown       struct {
		TradePnl    flexFloat `json:"tradePnl"`
		FundingFees flexFloat `json:"fundingFees"`
		OpenFees    flexFloat `json:"openFees"`
		CloseFees   flexFloat `json:"closeFees"`
	} `json:"realisedPnlBreakdown"`
}

// ParseTradePosition разбирает одну закрытую позицию из истории.
// createdTime приходит в миллисекундах; от него считаются недельный
// эпох и его номер. Позиции без id отбрасываются (ok=false).
func ParseTradePosition(account models.AccountIdentity, raw json.RawMessage) (models.TradePosition, bool) {
	var rp rawPosition
	if err := fastjson.Unmarshal(raw, &rp); err != nil || rp.ID == 0 {
		return models.TradePosition{}, false
	}

	createdAt := time.UnixMilli(rp.CreatedTime).UTC()

	return models.TradePosition{
		ID:              rp.ID,
		AccountID:       account.ID,
		AccountIndex:    account.Index,
		AccountName:     account.Name,
		Market:          rp.Market,
		Side:            rp.Side,
		Size:            float64(rp.Size),
		MaxPositionSize: float64(rp.MaxPositionSize),
		Leverage:        float64(rp.Leverage),
		OpenPrice:       float64(rp.OpenPrice),
		ExitPrice:       float64(rp.ExitPrice),
		RealisedPnl:     float64(rp.RealisedPnl),
		TradePnl:        float64(rp.Breakdown.TradePnl),
		FundingFees:     float64(rp.Breakdown.FundingFees),
		OpenFees:        float64(rp.Breakdown.OpenFees),
		CloseFees:       float64(rp.Breakdown.CloseFees),
		CreatedTime:     rp.CreatedTime,
		CreatedAt:       createdAt,
		EpochStart:      utils.EpochStart(createdAt),
		EpochNumber:     utils.EpochNumber(createdAt),
	}, true
}

type rawFill struct {
	ID          int64     `json:"id"`
	Market      string    `json:"market"`
	Side        string    `json:"side"`
	Price       flexFloat `json:"price"`
	Qty         flexFloat `json:"qty"`
	Fee         flexFloat `json:"fee"`
	IsMaker     bool      `json:"isMaker"`
	CreatedTime int64     `json:"createdTime"`
}

// ParseTradeFill разбирает одно исполнение ордера из истории
func ParseTradeFill(account models.AccountIdentity, raw json.RawMessage) (models.TradeFill, bool) {
	var rf rawFill
	if err := fastjson.Unmarshal(raw, &rf); err != nil || rf.ID == 0 {
		return models.TradeFill{}, false
	}

	return models.TradeFill{
		ID:           rf.ID,
		AccountID:    account.ID,
		AccountIndex: account.Index,
		Market:       rf.Market,
		Side:         rf.Side,
		Price:        float64(rf.Price),
		Qty:          float64(rf.Qty),
		Fee:          float64(rf.Fee),
		IsMaker:      rf.IsMaker,
		CreatedTime:  rf.CreatedTime,
		CreatedAt:    time.UnixMilli(rf.CreatedTime).UTC(),
	}, true
}
