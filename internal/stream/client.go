// Package stream реализует клиента push-потока стаканов биржи
// с автоматическим переподключением.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"broadcaster/internal/cache"
	"broadcaster/internal/models"
)

var streamJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// ConnState - состояние соединения клиента
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateSubscribed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// Config - настройки stream клиента
type Config struct {
	// URL websocket эндпоинта биржи
	URL string

	// Markets - фиксированный список рынков для подписки
	Markets []string

	// Depth - максимальное число уровней стакана с каждой стороны.
	// Более глубокие сообщения усекаются.
	Depth int

	// ProxyURL - опциональный прокси, отдельный от прокси аккаунтов
	ProxyURL string

	// Параметры backoff переподключения
	ReconnectBase time.Duration // default 5s
	ReconnectMax  time.Duration // default 300s

	// Таймаут установки соединения
	ConnectTimeout time.Duration // default 10s
}

func (c *Config) applyDefaults() {
	if c.Depth <= 0 {
		c.Depth = 10
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = 5 * time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 300 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// BookBroadcaster - потребитель обновлений стакана (hub)
type BookBroadcaster interface {
	BroadcastOrderBook(snap models.OrderBookSnapshot)
}

// Client - долгоживущий клиент потока стаканов.
//
// Машина состояний:
//
//	DISCONNECTED -> CONNECTING -> SUBSCRIBED -> (цикл сообщений) -> DISCONNECTED
//
// На каждое depth сообщение снимок рынка заменяется целиком в
// реестре и уходит broadcast'ом в hub. При обрыве - переподключение
// с экспоненциальным backoff и jitter; счётчик попыток сбрасывается
// после успешной подписки.
type Client struct {
	cfg    Config
	books  *cache.OrderBookRegistry
	hub    BookBroadcaster
	logger *zap.Logger
}

// NewClient создаёт stream клиента
func NewClient(cfg Config, books *cache.OrderBookRegistry, hub BookBroadcaster, logger *zap.Logger) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:    cfg,
		books:  books,
		hub:    hub,
		logger: logger,
	}
}

// Run держит соединение открытым до отмены контекста.
// Запускается в отдельной горутине: go client.Run(ctx)
func (c *Client) Run(ctx context.Context) {
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		attempt++
		subscribed, err := c.connectAndStream(ctx)
		if ctx.Err() != nil {
			return
		}

		if subscribed {
			// соединение жило после успешной подписки -
			// следующий обрыв начинает отсчёт заново
			attempt = 1
		}

		reconnects.Inc()
		delay := jitter(reconnectDelay(attempt, c.cfg.ReconnectBase, c.cfg.ReconnectMax))
		c.logger.Warn("stream disconnected, reconnecting",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// connectAndStream выполняет один проход машины состояний.
// Возвращает subscribed=true, если подписка успела подтвердиться
// (т.е. соединение было рабочим, а не отвергнутым на рукопожатии).
func (c *Client) connectAndStream(ctx context.Context) (subscribed bool, err error) {
	connState.Set(float64(StateConnecting))

	dialer := websocket.Dialer{
		HandshakeTimeout:  c.cfg.ConnectTimeout,
		EnableCompression: true,
	}
	if c.cfg.ProxyURL != "" {
		proxyURL, perr := url.Parse(c.cfg.ProxyURL)
		if perr != nil {
			return false, fmt.Errorf("invalid stream proxy url: %w", perr)
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		connState.Set(float64(StateDisconnected))
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// закрываем соединение при отмене контекста, чтобы ReadMessage
	// не завис навсегда
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := c.subscribe(conn); err != nil {
		connState.Set(float64(StateDisconnected))
		return false, fmt.Errorf("subscribe: %w", err)
	}

	connState.Set(float64(StateSubscribed))
	c.logger.Info("stream subscribed",
		zap.String("url", c.cfg.URL),
		zap.Strings("markets", c.cfg.Markets))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			connState.Set(float64(StateDisconnected))
			return true, err
		}
		c.handleMessage(data)
	}
}

// subscribe отправляет одно subscribe сообщение со списком рынков
func (c *Client) subscribe(conn *websocket.Conn) error {
	msg := map[string]interface{}{
		"op":      "subscribe",
		"channel": "orderbook",
		"markets": c.cfg.Markets,
		"depth":   c.cfg.Depth,
	}

	data, err := streamJSON.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// depthMessage - входящее сообщение стакана.
// Уровни приходят либо парами [price, qty] (числа или строки), либо
// объектами {"price": ..., "size": ...} - parseLevel терпит оба вида.
type depthMessage struct {
	Channel  string            `json:"channel"`
	Market   string            `json:"market"`
	Sequence int64             `json:"seq"`
	Bids     []json.RawMessage `json:"bids"`
	Asks     []json.RawMessage `json:"asks"`
}

// handleMessage обрабатывает одно входящее сообщение
func (c *Client) handleMessage(data []byte) {
	var msg depthMessage
	if err := streamJSON.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("unparseable stream message", zap.Error(err))
		return
	}

	// сообщения без рынка (подтверждения подписки, служебные)
	// отбрасываются
	if msg.Market == "" {
		return
	}

	messagesReceived.WithLabelValues(msg.Market).Inc()

	snap := models.OrderBookSnapshot{
		Market:    msg.Market,
		Bids:      parseLevels(msg.Bids, c.cfg.Depth),
		Asks:      parseLevels(msg.Asks, c.cfg.Depth),
		Sequence:  msg.Sequence,
		Timestamp: time.Now().UTC(),
	}

	c.books.Replace(snap)
	c.hub.BroadcastOrderBook(snap)
}

// parseLevels разбирает уровни стакана, усекая до maxDepth
func parseLevels(raw []json.RawMessage, maxDepth int) []models.PriceLevel {
	if len(raw) > maxDepth {
		raw = raw[:maxDepth]
	}

	levels := make([]models.PriceLevel, 0, len(raw))
	for _, item := range raw {
		level, ok := parseLevel(item)
		if !ok {
			continue
		}
		levels = append(levels, level)
	}
	return levels
}

// parseLevel терпит два формата уровня:
// - массив [price, qty], элементы числами или строками
// - объект {"price": ..., "size": ...}
func parseLevel(raw json.RawMessage) (models.PriceLevel, bool) {
	var pair []interface{}
	if err := streamJSON.Unmarshal(raw, &pair); err == nil {
		if len(pair) < 2 {
			return models.PriceLevel{}, false
		}
		price, ok1 := toFloat(pair[0])
		size, ok2 := toFloat(pair[1])
		if !ok1 || !ok2 {
			return models.PriceLevel{}, false
		}
		return models.PriceLevel{Price: price, Size: size}, true
	}

	var obj struct {
		Price interface{} `json:"price"`
		Size  interface{} `json:"size"`
	}
	if err := streamJSON.Unmarshal(raw, &obj); err != nil {
		return models.PriceLevel{}, false
	}
	price, ok1 := toFloat(obj.Price)
	size, ok2 := toFloat(obj.Size)
	if !ok1 || !ok2 {
		return models.PriceLevel{}, false
	}
	return models.PriceLevel{Price: price, Size: size}, true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
