package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"broadcaster/internal/models"
)

func newTestGateway(t *testing.T, baseURL string) *Gateway {
	t.Helper()

	account := models.AccountIdentity{
		ID:      "acc-1",
		Index:   1,
		Name:    "main",
		APIKey:  "test-key",
		BaseURL: baseURL,
	}

	gw, err := NewGateway(account, DefaultHTTPClientConfig(), 100, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}
	return gw
}

func TestGatewayFetchSuccess(t *testing.T) {
	var gotKey, gotAgent string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(`{"equity": 100}`))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	body := gw.Fetch(context.Background(), "/user/balance", nil)
	if string(body) != `{"equity": 100}` {
		t.Errorf("unexpected body: %s", body)
	}
	if gotKey != "test-key" {
		t.Errorf("X-Api-Key = %q, expected test-key", gotKey)
	}
	if gotAgent != userAgent {
		t.Errorf("User-Agent = %q, expected %q", gotAgent, userAgent)
	}
}

func TestGatewayFetchQueryParams(t *testing.T) {
	var gotQuery string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	params := map[string][]string{"status": {"ACTIVE"}}
	gw.Fetch(context.Background(), "/user/orders", params)

	if gotQuery != "status=ACTIVE" {
		t.Errorf("query = %q, expected status=ACTIVE", gotQuery)
	}
}

func TestGatewayFetchNon2xxReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	if body := gw.Fetch(context.Background(), "/user/positions", nil); body != nil {
		t.Errorf("expected nil for 429 response, got %s", body)
	}
}

func TestGatewayFetchTransportErrorReturnsNil(t *testing.T) {
	// сервер сразу закрыт, порт не слушается
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	gw := newTestGateway(t, server.URL)

	if body := gw.Fetch(context.Background(), "/user/balance", nil); body != nil {
		t.Errorf("expected nil for transport error, got %s", body)
	}
}

func TestGatewayFetchCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if body := gw.Fetch(ctx, "/user/balance", nil); body != nil {
		t.Errorf("expected nil for cancelled context, got %s", body)
	}
}
