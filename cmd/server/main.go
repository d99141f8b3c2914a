package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"broadcaster/internal/alerts"
	"broadcaster/internal/api"
	"broadcaster/internal/archiver"
	"broadcaster/internal/cache"
	"broadcaster/internal/config"
	"broadcaster/internal/exchange"
	"broadcaster/internal/poller"
	"broadcaster/internal/repository"
	"broadcaster/internal/stream"
	"broadcaster/internal/websocket"
	"broadcaster/pkg/utils"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Лимит REST запросов на аккаунт: быстрый цикл делает 3 запроса
// за 250ms, т.е. ~12 rps в худшем случае
const (
	requestsPerSecond = 15
	requestBurst      = 30
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting broadcaster",
		zap.Int("accounts", len(cfg.Accounts)),
		zap.String("db", cfg.Database.DSNWithoutPassword()))

	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Репозитории
	historyRepo := repository.NewHistoryRepository(db)
	streamRepo := repository.NewStreamRepository(db, historyRepo, cfg.Accounts)
	statsRepo := repository.NewStatsRepository(db)

	// In-memory состояние
	accountIDs := make([]string, 0, len(cfg.Accounts))
	for _, acc := range cfg.Accounts {
		accountIDs = append(accountIDs, acc.ID)
	}
	caches := cache.NewRegistry(accountIDs)
	orderBooks := cache.NewOrderBookRegistry()

	// Broadcast hub
	hub := websocket.NewHub(cfg.Accounts, caches, orderBooks, logger)
	go hub.Run()

	// Шлюзы биржи, по одному на аккаунт (свой API ключ и прокси)
	gateways := make([]*exchange.Gateway, 0, len(cfg.Accounts))
	for _, acc := range cfg.Accounts {
		gw, err := exchange.NewGateway(acc, exchange.DefaultHTTPClientConfig(), requestsPerSecond, requestBurst, logger)
		if err != nil {
			logger.Fatal("failed to create gateway",
				zap.String("account", acc.Name),
				zap.Error(err))
		}
		gateways = append(gateways, gw)
	}

	// Маржинальные алерты
	alertManager := alerts.NewManager(
		cfg.Alerts.Cooldown,
		alerts.DefaultChannels(
			cfg.Alerts.TelegramBotToken,
			cfg.Alerts.TelegramChatID,
			cfg.Alerts.PushoverAppToken,
			cfg.Alerts.PushoverUserKey,
			cfg.Alerts.Twilio,
		),
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Поллер: быстрый/средний/медленный циклы
	pollerFetchers := make([]poller.Fetcher, len(gateways))
	for i, gw := range gateways {
		pollerFetchers[i] = gw
	}
	scheduler := poller.NewScheduler(
		poller.Config{
			FastInterval:    cfg.Poller.FastInterval,
			TradesEvery:     cfg.Poller.TradesEvery,
			RiskEvery:       cfg.Poller.RiskEvery,
			ErrorBackoff:    cfg.Poller.ErrorBackoff,
			HistoryPageSize: cfg.Poller.HistoryPageSize,
		},
		pollerFetchers, caches, hub, streamRepo, alertManager, logger,
	)
	go scheduler.Run(ctx)

	// Архиватор полной истории
	archiveFetchers := make([]archiver.Fetcher, len(gateways))
	for i, gw := range gateways {
		archiveFetchers[i] = gw
	}
	archive := archiver.New(
		archiver.Config{
			Interval: cfg.Archiver.Interval,
			PageSize: cfg.Archiver.PageSize,
			MaxPages: cfg.Archiver.MaxPages,
		},
		archiveFetchers, historyRepo, logger,
	)
	go archive.Run(ctx)

	// WebSocket стрим стакана (опционален)
	if cfg.Stream.URL != "" {
		bookStream := stream.NewClient(
			stream.Config{
				URL:           cfg.Stream.URL,
				Markets:       cfg.Stream.Markets,
				Depth:         cfg.Stream.Depth,
				ProxyURL:      cfg.Stream.ProxyURL,
				ReconnectBase: cfg.Stream.ReconnectBase,
				ReconnectMax:  cfg.Stream.ReconnectMax,
			},
			orderBooks, hub, logger,
		)
		go bookStream.Run(ctx)
	} else {
		logger.Info("order book stream disabled (STREAM_WS_URL is empty)")
	}

	// HTTP API
	router := api.SetupRoutes(&api.Dependencies{
		Accounts:  cfg.Accounts,
		Caches:    caches,
		Hub:       hub,
		Snapshots: streamRepo,
		History:   historyRepo,
		Stats:     statsRepo,
		Alerts:    alertManager,
		Refresher: archive,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Останавливаем фоновые циклы, потом HTTP, потом hub
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	hub.Stop()
	logger.Info("shutdown complete")
}

// initDatabase открывает пул соединений и проверяет доступность БД
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}
