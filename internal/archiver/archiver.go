// Package archiver реализует периодическую полную выгрузку истории
// сделок всех аккаунтов в durable хранилище.
package archiver

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"broadcaster/internal/exchange"
	"broadcaster/internal/models"
)

// Пути API истории
const (
	pathPositionHistory = "/user/positions/history"
	pathFills           = "/user/fills"
)

// Fetcher - один аккаунт с возможностью выполнить запрос.
// Реализуется exchange.Gateway.
type Fetcher interface {
	Account() models.AccountIdentity
	Fetch(ctx context.Context, path string, params url.Values) json.RawMessage
}

// HistoryStore - приёмник записей истории.
// Реализуется repository.HistoryRepository.
type HistoryStore interface {
	UpsertPosition(pos *models.TradePosition) error
	UpsertFill(fill *models.TradeFill) error
	ClearAll() error
}

// Config - настройки архиватора
type Config struct {
	// Interval - период между полными проходами
	Interval time.Duration // default 10m

	// PageSize - размер страницы при листании истории.
	// Страница короче PageSize означает конец истории.
	PageSize int // default 100

	// MaxPages ограничивает число страниц на аккаунт за проход,
	// защита от бесконечного листания при сломанной пагинации биржи
	MaxPages int // default 50
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
}

// Archiver листает историю закрытых позиций и исполнений каждого
// аккаунта и сохраняет записи upsert'ом по id биржи. Повторный
// проход по уже сохранённой истории безопасен: записи уточняются,
// дубликаты не появляются.
//
// Ошибки одного аккаунта логируются и не прерывают проход.
type Archiver struct {
	cfg      Config
	fetchers []Fetcher
	store    HistoryStore
	logger   *zap.Logger
}

// New создаёт архиватор
func New(cfg Config, fetchers []Fetcher, store HistoryStore, logger *zap.Logger) *Archiver {
	cfg.applyDefaults()
	return &Archiver{
		cfg:      cfg,
		fetchers: fetchers,
		store:    store,
		logger:   logger,
	}
}

// Run выполняет проход сразу при старте и далее по таймеру
// до отмены контекста. Запускается в отдельной горутине.
func (a *Archiver) Run(ctx context.Context) {
	a.RunOnce(ctx)

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce выполняет один полный проход по всем аккаунтам
func (a *Archiver) RunOnce(ctx context.Context) {
	start := time.Now()
	var totalPositions, totalFills int

	for _, f := range a.fetchers {
		if ctx.Err() != nil {
			return
		}

		acc := f.Account()
		positions, fills, err := a.archiveAccount(ctx, f)
		if err != nil {
			archiveErrors.WithLabelValues(acc.ID).Inc()
			a.logger.Warn("history archive failed for account",
				zap.String("account", acc.Name),
				zap.Error(err))
			continue
		}
		totalPositions += positions
		totalFills += fills
	}

	archiveRuns.Inc()
	a.logger.Info("history archive pass finished",
		zap.Int("positions", totalPositions),
		zap.Int("fills", totalFills),
		zap.Duration("took", time.Since(start)))
}

// FullRefresh очищает таблицы истории и выполняет полный проход.
// Ручной режим для починки расхождений.
func (a *Archiver) FullRefresh(ctx context.Context) error {
	if err := a.store.ClearAll(); err != nil {
		return err
	}
	a.logger.Info("history tables cleared, refetching")
	a.RunOnce(ctx)
	return nil
}

// archiveAccount листает обе истории одного аккаунта
func (a *Archiver) archiveAccount(ctx context.Context, f Fetcher) (positions, fills int, err error) {
	acc := f.Account()

	positions, err = a.pageThrough(ctx, f, pathPositionHistory, func(item json.RawMessage) error {
		pos, ok := exchange.ParseTradePosition(acc, item)
		if !ok {
			return nil
		}
		return a.store.UpsertPosition(&pos)
	})
	if err != nil {
		return positions, 0, err
	}

	fills, err = a.pageThrough(ctx, f, pathFills, func(item json.RawMessage) error {
		fill, ok := exchange.ParseTradeFill(acc, item)
		if !ok {
			return nil
		}
		return a.store.UpsertFill(&fill)
	})
	return positions, fills, err
}

// pageThrough листает эндпоинт страницами фиксированного размера,
// останавливаясь на неполной странице
func (a *Archiver) pageThrough(ctx context.Context, f Fetcher, path string, save func(json.RawMessage) error) (int, error) {
	saved := 0

	for page := 0; page < a.cfg.MaxPages; page++ {
		params := url.Values{
			"limit":  {strconv.Itoa(a.cfg.PageSize)},
			"offset": {strconv.Itoa(page * a.cfg.PageSize)},
		}

		raw := f.Fetch(ctx, path, params)
		if raw == nil {
			// сетевой сбой середины листания: сохранённое остаётся,
			// следующий проход дочитает
			return saved, nil
		}

		items := exchange.ListItems(raw)
		for _, item := range items {
			if err := save(item); err != nil {
				return saved, err
			}
			saved++
		}

		if len(items) < a.cfg.PageSize {
			break
		}
	}
	return saved, nil
}
