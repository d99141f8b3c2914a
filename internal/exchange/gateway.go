package exchange

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"broadcaster/internal/models"
	"broadcaster/pkg/ratelimit"
)

const userAgent = "perp-broadcaster/1.0"

// Gateway выполняет аутентифицированные запросы к API биржи от имени
// одного аккаунта.
//
// Контракт: Fetch возвращает тело ответа как json.RawMessage либо nil.
// Любая ошибка транспорта (таймаут, connection reset, сбой прокси) и
// любой не-2xx ответ нормализуются в nil с логированием - ошибка никогда
// не поднимается к вызывающему. При N аккаунтах, опрашиваемых
// параллельно, сетевой сбой одного аккаунта структурно не может
// повлиять на свежесть данных остальных.
type Gateway struct {
	account models.AccountIdentity
	client  *http.Client
	limiter *ratelimit.RateLimiter
	logger  *zap.Logger
}

// NewGateway создаёт gateway для аккаунта.
//
// rate/burst задают token-bucket лимит на исходящие запросы этого
// аккаунта (запросы аккаунтов с прокси не делят лимит между собой).
func NewGateway(account models.AccountIdentity, cfg HTTPClientConfig, rate, burst float64, logger *zap.Logger) (*Gateway, error) {
	client, err := newHTTPClient(cfg, account.ProxyURL)
	if err != nil {
		return nil, err
	}

	return &Gateway{
		account: account,
		client:  client,
		limiter: ratelimit.NewRateLimiter(rate, burst),
		logger:  logger.With(zap.String("account", account.Name)),
	}, nil
}

// Account возвращает identity аккаунта этого gateway
func (g *Gateway) Account() models.AccountIdentity {
	return g.account
}

// Fetch выполняет GET запрос к path (например "/user/positions") с
// опциональными query параметрами. Возвращает тело ответа или nil.
func (g *Gateway) Fetch(ctx context.Context, path string, params url.Values) json.RawMessage {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil
	}

	reqURL := g.account.BaseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		g.logger.Error("failed to build request", zap.String("path", path), zap.Error(err))
		return nil
	}

	req.Header.Set("X-Api-Key", g.account.APIKey)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		fetchFailures.WithLabelValues(g.account.ID, path).Inc()
		g.logger.Warn("fetch failed",
			zap.String("path", path),
			zap.Bool("proxy", g.account.HasProxy()),
			zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	fetchDuration.WithLabelValues(g.account.ID, path).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fetchFailures.WithLabelValues(g.account.ID, path).Inc()
		g.logger.Warn("fetch returned non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Bool("proxy", g.account.HasProxy()))
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fetchFailures.WithLabelValues(g.account.ID, path).Inc()
		g.logger.Warn("failed to read response body", zap.String("path", path), zap.Error(err))
		return nil
	}

	return json.RawMessage(body)
}
