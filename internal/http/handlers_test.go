package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fairyhunter13/lowest-price-service/internal/cache"
	"github.com/fairyhunter13/lowest-price-service/internal/config"
	"github.com/fairyhunter13/lowest-price-service/internal/mirror"
	"github.com/fairyhunter13/lowest-price-service/internal/pricing"
	"github.com/fairyhunter13/lowest-price-service/internal/storage"
)

type testEnv struct {
	app    *App
	router http.Handler
	feed   *mirror.Feed
	cancel context.CancelFunc
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Config{
		ReadBudget: 20 * time.Millisecond,
		CacheTTL:   30 * time.Second,
		Regions:    []string{"local"},
	}
	engine := storage.NewMemoryEngine()
	region := mirror.NewMemoryRegion("local", cfg.CacheTTL)
	feed := mirror.NewFeed(region)
	ctx, cancel := context.WithCancel(context.Background())
	feed.Start(ctx)

	local := cache.NewMemory(cfg.CacheTTL)
	coord := pricing.NewCoordinator(engine, local, feed)
	reader := pricing.NewReader(region.Cache, region.Replica, cfg.ReadBudget)
	app := NewApp(cfg, coord, reader, feed, engine, local)
	t.Cleanup(cancel)
	return &testEnv{app: app, router: NewRouter(app), feed: feed, cancel: cancel}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !e.feed.DrainUntil(ctx) {
		t.Fatalf("mirror feed did not drain")
	}
}

func TestReceiveThenFindPrice(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/receive",
		`{"sku":"ABC-1","retailer":"ShopA","price":"19.99","url":"http://a/abc-1"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("receive status = %d, body %s", rec.Code, rec.Body.String())
	}
	env.drain(t)

	rec = env.do(t, http.MethodGet, "/find-price/abc-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("find-price status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got struct {
		SKU      string `json:"sku"`
		Retailer string `json:"retailer"`
		Price    string `json:"price"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.SKU != "abc-1" || got.Retailer != "shopa" || got.Price != "19.99" {
		t.Fatalf("unexpected response: %+v", got)
	}
	if id := rec.Header().Get("X-Request-Id"); id == "" {
		t.Fatalf("missing X-Request-Id header")
	}
}

func TestFindPriceCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPut, "/receive",
		`{"sku":"abc-2","retailer":"shopa","price":"5"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("receive status = %d", rec.Code)
	}
	env.drain(t)
	rec = env.do(t, http.MethodGet, "/find-price/ABC-2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("find-price status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestFindPriceUnknownSKU(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/find-price/nothing-here", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if e.Error != "not_found" {
		t.Fatalf("error code = %q", e.Error)
	}
}

func TestReceiveValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		body string
	}{
		{"missing sku", `{"retailer":"shopa","price":"1"}`},
		{"blank sku", `{"sku":"   ","retailer":"shopa","price":"1"}`},
		{"missing retailer", `{"sku":"abc","price":"1"}`},
		{"missing price", `{"sku":"abc","retailer":"shopa"}`},
		{"negative price", `{"sku":"abc","retailer":"shopa","price":"-1"}`},
		{"unknown field", `{"sku":"abc","retailer":"shopa","price":"1","bogus":true}`},
		{"malformed json", `{"sku":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, "/receive", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestReceiveWrongMethod(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/receive", `{"sku":"a","retailer":"b","price":"1"}`)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestReceiveRequiresJSONContentType(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPut, "/receive", strings.NewReader(`{"sku":"a","retailer":"b","price":"1"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
}

func TestReceiveRejectedDuringShutdown(t *testing.T) {
	env := newTestEnv(t)
	env.app.StartShutdown()
	rec := env.do(t, http.MethodPut, "/receive", `{"sku":"a","retailer":"b","price":"1"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestShutdownRacingInFlightReceives(t *testing.T) {
	// StartShutdown may overlap handler goroutines; the intake flag is an
	// atomic on the feed, so every request gets a clean 204 or 503.
	env := newTestEnv(t)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i == 8 {
				env.app.StartShutdown()
				return
			}
			rec := env.do(t, http.MethodPut, "/receive",
				`{"sku":"race-1","retailer":"shopa","price":"1"}`)
			if rec.Code != http.StatusNoContent && rec.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want 204 or 503", rec.Code)
			}
		}(i)
	}
	wg.Wait()
	rec := env.do(t, http.MethodPut, "/receive", `{"sku":"race-1","retailer":"shopa","price":"1"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status after shutdown = %d, want 503", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestDebugEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPut, "/receive", `{"sku":"dbg-1","retailer":"shopa","price":"3"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("receive status = %d", rec.Code)
	}
	env.drain(t)

	rec = env.do(t, http.MethodGet, "/debug", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode debug body: %v", err)
	}
	if _, ok := out["storage"]; !ok {
		t.Fatalf("debug output missing storage section: %v", out)
	}
	if _, ok := out["mirror"]; !ok {
		t.Fatalf("debug output missing mirror section: %v", out)
	}
}

func TestOpenAPIServed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/openapi.yaml", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "openapi:") {
		t.Fatalf("body does not look like an openapi document")
	}
	rec = env.do(t, http.MethodGet, "/docs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("docs status = %d", rec.Code)
	}
}

func TestDatedObservationDoesNotServe(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPut, "/receive",
		`{"sku":"dated-1","retailer":"shopa","price":"9","from_date":"2026-09-01T00:00:00Z"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("receive status = %d, body %s", rec.Code, rec.Body.String())
	}
	env.drain(t)
	rec = env.do(t, http.MethodGet, "/find-price/dated-1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for dated-only observation", rec.Code)
	}
}
