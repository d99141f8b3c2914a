package exchange

import (
	"encoding/json"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var fastjson = jsoniter.ConfigCompatibleWithStandardLibrary

// Назначение: нормализация ответов API биржи.
//
// Биржа заворачивает полезную нагрузку по-разному в зависимости от
// эндпоинта: иногда это голый объект, иногда {"data": {...}},
// иногда {"data": [...]}. Числа приходят то числами, то строками.
// Функции ниже приводят всё к единому виду, не требуя от остального
// кода знания этих деталей.

// Unwrap снимает конверт {"data": ...} если он есть.
// Для любого другого JSON возвращает вход без изменений.
func Unwrap(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := fastjson.Unmarshal(raw, &envelope); err != nil {
		return raw
	}
	if len(envelope.Data) == 0 {
		return raw
	}
	return envelope.Data
}

// ListItems разбирает raw как JSON массив (после снятия конверта).
// Возвращает nil если это не массив.
func ListItems(raw json.RawMessage) []json.RawMessage {
	var items []json.RawMessage
	if err := fastjson.Unmarshal(Unwrap(raw), &items); err != nil {
		return nil
	}
	return items
}

// BalanceSummary - нормализованная сводка баланса аккаунта.
type BalanceSummary struct {
	Equity           float64
	AvailableBalance float64
	UsedMargin       float64
	UnrealisedPnl    float64
	MarginRatio      float64
}

type rawBalance struct {
	Equity           flexFloat `json:"equity"`
	TotalEquity      flexFloat `json:"totalEquity"`
	AvailableBalance flexFloat `json:"availableBalance"`
	Available        flexFloat `json:"available"`
	UsedMargin       flexFloat `json:"usedMargin"`
	InitialMargin    flexFloat `json:"initialMargin"`
	UnrealisedPnl    flexFloat `json:"unrealisedPnl"`
	UnrealizedPnl    flexFloat `json:"unrealizedPnl"`
	MarginRatio      flexFloat `json:"marginRatio"`
}

// ParseBalance разбирает ответ /user/balance в BalanceSummary.
// Принимает объект, конверт {"data": {...}} и список из одного
// элемента. Если marginRatio не пришёл явно, считается как
// usedMargin/equity. Возвращает ok=false если equity извлечь не удалось.
func ParseBalance(raw json.RawMessage) (BalanceSummary, bool) {
	payload := Unwrap(raw)
	if len(payload) == 0 {
		return BalanceSummary{}, false
	}

	// некоторые эндпоинты возвращают список балансов по одному на
	// коллатерал, берём первый
	if items := ListItems(payload); len(items) > 0 {
		payload = items[0]
	}

	var rb rawBalance
	if err := fastjson.Unmarshal(payload, &rb); err != nil {
		return BalanceSummary{}, false
	}

	summary := BalanceSummary{
		Equity:           firstNonZero(float64(rb.Equity), float64(rb.TotalEquity)),
		AvailableBalance: firstNonZero(float64(rb.AvailableBalance), float64(rb.Available)),
		UsedMargin:       firstNonZero(float64(rb.UsedMargin), float64(rb.InitialMargin)),
		UnrealisedPnl:    firstNonZero(float64(rb.UnrealisedPnl), float64(rb.UnrealizedPnl)),
		MarginRatio:      float64(rb.MarginRatio),
	}

	if summary.Equity == 0 {
		return BalanceSummary{}, false
	}

	if summary.MarginRatio == 0 && summary.UsedMargin > 0 {
		summary.MarginRatio = summary.UsedMargin / summary.Equity
	}

	return summary, true
}

func firstNonZero(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

// flexFloat разбирает число, пришедшее числом или строкой ("123.45").
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	s := string(data)
	if s[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		if unquoted == "" {
			*f = 0
			return nil
		}
		s = unquoted
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
