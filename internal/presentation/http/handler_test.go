package httppresentation_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Zhima-Mochi/gameshop/internal/application/materialize"
	apppurchase "github.com/Zhima-Mochi/gameshop/internal/application/purchase"
	"github.com/Zhima-Mochi/gameshop/internal/application/storefront"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/asset"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/catalog"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/id"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/payment"
	"github.com/Zhima-Mochi/gameshop/internal/observability"
	httppresentation "github.com/Zhima-Mochi/gameshop/internal/presentation/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type server struct {
	*httptest.Server
	coord *apppurchase.Coordinator
}

func newServer(t *testing.T, delay time.Duration, limiter *httppresentation.IPRateLimiter) *server {
	t.Helper()
	tel := observability.Nop()
	cat, err := catalog.Default()
	require.NoError(t, err)

	sessions := memory.NewSessionRepository(2000, 14)
	gateway := payment.NewSimulator(tel, payment.WithDelay(delay), payment.WithDeclineRate(0))
	coord := apppurchase.NewCoordinator(cat, sessions, memory.NewTransactionRepository(), gateway, nil, id.NewUUIDGenerator(), tel)
	refresh := materialize.NewRefreshInventoryUseCase(sessions, asset.NewLogMaterializer(nil), tel)

	h := httppresentation.NewHandler(coord, storefront.NewQueries(cat, sessions, tel), refresh, limiter, tel)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = coord.Shutdown(ctx)
	})
	return &server{Server: srv, coord: coord}
}

func (s *server) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestCatalogAndHealth(t *testing.T) {
	s := newServer(t, 0, nil)

	resp, body := s.do(t, http.MethodGet, "/catalog", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["items"].([]any)
	require.Len(t, items, 6)
	first := items[0].(map[string]any)
	assert.Equal(t, "axe", first["key"])
	assert.Equal(t, float64(250), first["price"])

	resp, _ = s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestPurchaseLifecycleOverHTTP(t *testing.T) {
	s := newServer(t, 0, nil)

	resp, body := s.do(t, http.MethodPost, "/purchases", `{"player_id":"p1","item_key":"axe"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	txID := body["transaction_id"].(string)
	require.NotEmpty(t, txID)
	assert.Equal(t, "/purchases/"+txID, resp.Header.Get("Location"))

	require.Eventually(t, func() bool {
		_, tx := s.do(t, http.MethodGet, "/purchases/"+txID, "")
		return tx["result"] == "committed"
	}, 2*time.Second, 10*time.Millisecond)

	_, tx := s.do(t, http.MethodGet, "/purchases/"+txID, "")
	assert.Equal(t, float64(0), tx["slot_index"])
	assert.Equal(t, "Purchased War Axe!", tx["message"])

	_, wallet := s.do(t, http.MethodGet, "/players/p1/wallet", "")
	assert.Equal(t, float64(1750), wallet["balance"])

	_, afford := s.do(t, http.MethodGet, "/players/p1/wallet/can-afford?amount=1750", "")
	assert.Equal(t, true, afford["can_afford"])
	_, afford = s.do(t, http.MethodGet, "/players/p1/wallet/can-afford?amount=1751", "")
	assert.Equal(t, false, afford["can_afford"])

	_, inv := s.do(t, http.MethodGet, "/players/p1/inventory", "")
	assert.Equal(t, float64(14), inv["capacity"])
	assert.Equal(t, float64(1), inv["occupied"])
	slots := inv["slots"].([]any)
	require.Len(t, slots, 1)
	assert.Equal(t, "Axe2H_Epic", slots[0].(map[string]any)["asset_ref"])

	resp, refreshed := s.do(t, http.MethodPost, "/players/p1/inventory/refresh", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), refreshed["refreshed"])

	resp, _ = s.do(t, http.MethodPost, "/purchases/"+txID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestInProgressAndCancelOverHTTP(t *testing.T) {
	s := newServer(t, time.Minute, nil)

	resp, body := s.do(t, http.MethodPost, "/purchases", `{"player_id":"p1","item_key":"bow"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "awaiting_payment", body["phase"])
	txID := body["transaction_id"].(string)

	resp, body = s.do(t, http.MethodPost, "/purchases", `{"player_id":"p1","item_key":"spear"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "in progress")
	assert.Equal(t, "transaction_in_progress", body["reason"])
	assert.Equal(t, "Another purchase is still being processed.", body["message"])

	resp, body = s.do(t, http.MethodPost, "/purchases/"+txID+"/cancel", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rejected", body["result"])
	assert.Equal(t, "cancelled", body["reason"])

	_, wallet := s.do(t, http.MethodGet, "/players/p1/wallet", "")
	assert.Equal(t, float64(2000), wallet["balance"])
}

func TestRequestErrorsOverHTTP(t *testing.T) {
	s := newServer(t, 0, nil)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown item", http.MethodPost, "/purchases", `{"player_id":"p1","item_key":"dragon"}`, http.StatusNotFound},
		{"missing player", http.MethodPost, "/purchases", `{"item_key":"axe"}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/purchases", `{"player_id":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/purchases", `{"player_id":"p1","item_key":"axe","qty":2}`, http.StatusBadRequest},
		{"unknown transaction", http.MethodGet, "/purchases/nope", "", http.StatusNotFound},
		{"cancel unknown", http.MethodPost, "/purchases/nope/cancel", "", http.StatusNotFound},
		{"bad amount", http.MethodGet, "/players/p1/wallet/can-afford?amount=lots", "", http.StatusBadRequest},
		{"negative amount", http.MethodGet, "/players/p1/wallet/can-afford?amount=-1", "", http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/purchases/nope/cancel", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := s.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestInvalidCardIsDeclined(t *testing.T) {
	s := newServer(t, 0, nil)

	resp, body := s.do(t, http.MethodPost, "/purchases",
		`{"player_id":"p1","item_key":"axe","card":{"number":"12","holder":"Ada","expiry":"01/99","cvv":"123"}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	txID := body["transaction_id"].(string)

	require.Eventually(t, func() bool {
		_, tx := s.do(t, http.MethodGet, "/purchases/"+txID, "")
		return tx["result"] == "failed" && tx["decline_reason"] == "invalid_card"
	}, 2*time.Second, 10*time.Millisecond)

	_, tx := s.do(t, http.MethodGet, "/purchases/"+txID, "")
	assert.Equal(t, "enter a valid card number (16 digits)", tx["message"])
}

func TestPurchaseRateLimit(t *testing.T) {
	s := newServer(t, 0, httppresentation.NewIPRateLimiter(0.001, 1))

	resp, _ := s.do(t, http.MethodPost, "/purchases", `{"player_id":"p1","item_key":"dragon"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/purchases", `{"player_id":"p1","item_key":"dragon"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	// only the purchase endpoint is limited
	resp, _ = s.do(t, http.MethodGet, "/catalog", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newServer(t, 0, nil)
	req, err := http.NewRequest(http.MethodGet, s.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}
