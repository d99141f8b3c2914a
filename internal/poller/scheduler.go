// Package poller реализует планировщик опроса API биржи с тремя
// каденциями и публикацией изменений в hub и хранилище.
package poller

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"broadcaster/internal/alerts"
	"broadcaster/internal/cache"
	"broadcaster/internal/exchange"
	"broadcaster/internal/models"
)

// Пути API биржи, опрашиваемые планировщиком
const (
	pathPositions       = "/user/positions"
	pathBalance         = "/user/balance"
	pathOrders          = "/user/orders"
	pathPositionHistory = "/user/positions/history"
	pathPoints          = "/user/points"
)

// Fetcher - один аккаунт с возможностью выполнить запрос.
// Реализуется exchange.Gateway; в тестах подставляется stub.
type Fetcher interface {
	Account() models.AccountIdentity
	Fetch(ctx context.Context, path string, params url.Values) json.RawMessage
}

// Hub - потребитель broadcast событий
type Hub interface {
	BroadcastAccountUpdate(account models.AccountIdentity, fields map[string]json.RawMessage)
	BroadcastOrdersUpdate(account models.AccountIdentity, orders json.RawMessage)
	BroadcastTradesUpdate(account models.AccountIdentity, trades json.RawMessage)
	BroadcastPointsUpdate(accountID string, points json.RawMessage)
}

// Store - персистентность изменившихся данных.
// Вызовы идут из одного фонового воркера, не из polling цикла.
type Store interface {
	SaveSnapshot(accountID string, balance json.RawMessage) error
	SavePositions(accountID string, positions json.RawMessage) error
	SaveOrders(accountID string, orders json.RawMessage) error
	SaveTrade(accountID string, trade json.RawMessage) error
}

// RiskMonitor проверяет маржу аккаунта. Реализуется alerts.Manager.
type RiskMonitor interface {
	CheckAndAlert(ctx context.Context, accountID, accountName string, marginRatio, equity float64) alerts.Result
}

// Config - настройки каденций планировщика
type Config struct {
	// FastInterval - период быстрого цикла (positions/balance/orders)
	FastInterval time.Duration // default 250ms

	// TradesEvery - каждый N-й быстрый тик опрашивает историю сделок
	TradesEvery int // default 4 (~1s)

	// RiskEvery - каждый N-й быстрый тик запускает risk monitor
	RiskEvery int // default 20 (~5s)

	// ErrorBackoff - пауза после паники внутри тика
	ErrorBackoff time.Duration // default 500ms

	// HistoryPageSize - размер страницы истории сделок
	HistoryPageSize int // default 50

	// PersistQueueSize - ёмкость очереди записи в хранилище
	PersistQueueSize int // default 1024
}

func (c *Config) applyDefaults() {
	if c.FastInterval <= 0 {
		c.FastInterval = 250 * time.Millisecond
	}
	if c.TradesEvery <= 0 {
		c.TradesEvery = 4
	}
	if c.RiskEvery <= 0 {
		c.RiskEvery = 20
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 500 * time.Millisecond
	}
	if c.HistoryPageSize <= 0 {
		c.HistoryPageSize = 50
	}
	if c.PersistQueueSize <= 0 {
		c.PersistQueueSize = 1024
	}
}

// persistJob - одна отложенная запись в хранилище
type persistJob struct {
	kind      string // snapshot | positions | orders | trade
	accountID string
	payload   json.RawMessage
}

// Scheduler - три цикла опроса в одном wall-clock темпе.
//
// Быстрый цикл (каждый тик): для каждого аккаунта параллельно
// positions и balance, затем orders; изменившиеся поля атомарно
// пишутся в кэш, уходят событием в hub и ставятся в очередь записи.
// Средний цикл (каждый 4-й тик): страница истории закрытых позиций.
// Медленный цикл (каждый 20-й тик): risk monitor по кэшированному
// балансу и опрос баллов.
//
// Изоляция отказов: сетевые ошибки гасятся gateway'ем (nil вместо
// данных), паника тика логируется и гасится коротким backoff -
// планировщик не умирает от одного плохого тика. Темп задаётся
// сном после работы: медленный тик сдвигает расписание, а не
// порождает параллельные тики.
type Scheduler struct {
	cfg      Config
	fetchers []Fetcher
	caches   *cache.Registry
	hub      Hub
	store    Store
	risk     RiskMonitor
	logger   *zap.Logger

	persistCh chan persistJob
}

// NewScheduler создаёт планировщик
func NewScheduler(cfg Config, fetchers []Fetcher, caches *cache.Registry, hub Hub, store Store, risk RiskMonitor, logger *zap.Logger) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		cfg:       cfg,
		fetchers:  fetchers,
		caches:    caches,
		hub:       hub,
		store:     store,
		risk:      risk,
		logger:    logger,
		persistCh: make(chan persistJob, cfg.PersistQueueSize),
	}
}

// Run крутит циклы опроса до отмены контекста.
// Запускается в отдельной горутине: go scheduler.Run(ctx)
func (s *Scheduler) Run(ctx context.Context) {
	go s.persistWorker(ctx)

	s.logger.Info("polling scheduler started",
		zap.Int("accounts", len(s.fetchers)),
		zap.Duration("fast_interval", s.cfg.FastInterval))

	tick := 0
	for {
		if ctx.Err() != nil {
			return
		}
		tick++

		if backoff := s.runTick(ctx, tick); backoff {
			select {
			case <-time.After(s.cfg.ErrorBackoff):
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-time.After(s.cfg.FastInterval):
		case <-ctx.Done():
			return
		}
	}
}

// runTick выполняет один тик всех назревших каденций.
// Возвращает true, если тик упал и нужен backoff.
func (s *Scheduler) runTick(ctx context.Context, tick int) (failed bool) {
	defer func() {
		if r := recover(); r != nil {
			tickPanics.Inc()
			s.logger.Error("polling tick panicked", zap.Any("panic", r))
			failed = true
		}
	}()

	s.fastTick(ctx)
	if tick%s.cfg.TradesEvery == 0 {
		s.mediumTick(ctx)
	}
	if tick%s.cfg.RiskEvery == 0 {
		s.slowTick(ctx)
	}
	return false
}

// forEachAccount запускает fn для каждого аккаунта параллельно
// с изоляцией паник: отказ одного аккаунта не трогает соседей
func (s *Scheduler) forEachAccount(fn func(f Fetcher)) {
	var wg sync.WaitGroup
	for _, f := range s.fetchers {
		wg.Add(1)
		go func(f Fetcher) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("account poll panicked",
						zap.String("account", f.Account().Name),
						zap.Any("panic", r))
				}
			}()
			fn(f)
		}(f)
	}
	wg.Wait()
}

// fastTick опрашивает positions/balance/orders всех аккаунтов
func (s *Scheduler) fastTick(ctx context.Context) {
	ticks.WithLabelValues("fast").Inc()

	s.forEachAccount(func(f Fetcher) {
		acc := f.Account()
		c := s.caches.Account(acc.ID)
		if c == nil {
			return
		}

		// positions и balance параллельно, orders после - две
		// одновременные выборки на аккаунт ограничивают burst
		var positions, balance json.RawMessage
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			positions = f.Fetch(ctx, pathPositions, nil)
		}()
		go func() {
			defer wg.Done()
			balance = f.Fetch(ctx, pathBalance, nil)
		}()
		wg.Wait()

		orders := f.Fetch(ctx, pathOrders, url.Values{"status": {"ACTIVE"}})

		now := time.Now().UTC()
		changed := make(map[string]json.RawMessage, 2)

		if c.UpdateIfChanged(cache.FieldPositions, positions, now) {
			changed[string(cache.FieldPositions)] = positions
			fieldChanges.WithLabelValues(acc.ID, "positions").Inc()
			s.enqueuePersist(persistJob{kind: "positions", accountID: acc.ID, payload: positions})
		}
		if c.UpdateIfChanged(cache.FieldBalance, balance, now) {
			changed[string(cache.FieldBalance)] = balance
			fieldChanges.WithLabelValues(acc.ID, "balance").Inc()
			s.enqueuePersist(persistJob{kind: "snapshot", accountID: acc.ID, payload: balance})
		}

		if len(changed) > 0 {
			s.hub.BroadcastAccountUpdate(acc, changed)
		}

		if c.UpdateIfChanged(cache.FieldOrders, orders, now) {
			fieldChanges.WithLabelValues(acc.ID, "orders").Inc()
			s.hub.BroadcastOrdersUpdate(acc, orders)
			s.enqueuePersist(persistJob{kind: "orders", accountID: acc.ID, payload: orders})
		}
	})
}

// mediumTick опрашивает одну страницу истории закрытых позиций
func (s *Scheduler) mediumTick(ctx context.Context) {
	ticks.WithLabelValues("medium").Inc()

	s.forEachAccount(func(f Fetcher) {
		acc := f.Account()
		c := s.caches.Account(acc.ID)
		if c == nil {
			return
		}

		params := url.Values{"limit": {strconv.Itoa(s.cfg.HistoryPageSize)}}
		trades := f.Fetch(ctx, pathPositionHistory, params)

		if !c.UpdateIfChanged(cache.FieldTrades, trades, time.Now().UTC()) {
			return
		}

		fieldChanges.WithLabelValues(acc.ID, "trades").Inc()
		s.hub.BroadcastTradesUpdate(acc, trades)

		for _, trade := range exchange.ListItems(trades) {
			s.enqueuePersist(persistJob{kind: "trade", accountID: acc.ID, payload: trade})
		}
	})
}

// slowTick запускает risk monitor по кэшу и опрашивает баллы
func (s *Scheduler) slowTick(ctx context.Context) {
	ticks.WithLabelValues("slow").Inc()

	s.forEachAccount(func(f Fetcher) {
		acc := f.Account()
		c := s.caches.Account(acc.ID)
		if c == nil {
			return
		}

		// маржа считается из кэшированного баланса - медленный цикл
		// не делает лишний сетевой запрос
		if balance, _, ok := c.Get(cache.FieldBalance); ok {
			if summary, ok := exchange.ParseBalance(balance); ok && s.risk != nil {
				s.risk.CheckAndAlert(ctx, acc.ID, acc.Name, summary.MarginRatio, summary.Equity)
			}
		}

		points := f.Fetch(ctx, pathPoints, nil)
		if c.UpdateIfChanged(cache.FieldPoints, points, time.Now().UTC()) {
			fieldChanges.WithLabelValues(acc.ID, "points").Inc()
			s.hub.BroadcastPointsUpdate(acc.ID, points)
		}
	})
}

// enqueuePersist ставит запись в очередь без блокировки.
// Полная очередь - признак мёртвой БД; свежесть кэша важнее
// durability, задание отбрасывается со счётчиком.
func (s *Scheduler) enqueuePersist(job persistJob) {
	if s.store == nil {
		return
	}
	select {
	case s.persistCh <- job:
	default:
		persistDropped.Inc()
	}
}

// persistWorker пишет задания очереди в хранилище
func (s *Scheduler) persistWorker(ctx context.Context) {
	for {
		select {
		case job := <-s.persistCh:
			var err error
			switch job.kind {
			case "snapshot":
				err = s.store.SaveSnapshot(job.accountID, job.payload)
			case "positions":
				err = s.store.SavePositions(job.accountID, job.payload)
			case "orders":
				err = s.store.SaveOrders(job.accountID, job.payload)
			case "trade":
				err = s.store.SaveTrade(job.accountID, job.payload)
			}
			if err != nil {
				persistErrors.WithLabelValues(job.kind).Inc()
				s.logger.Warn("persist failed",
					zap.String("kind", job.kind),
					zap.String("account", job.accountID),
					zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
