package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/docledger/internal/inventory"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("loyalty:expire").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, `docledger_jobs_total{job="loyalty:expire",status="success"} 1`) {
		t.Fatalf("expected job run in metrics, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestStockMovementEventsAreCounted(t *testing.T) {
	metrics := NewMetrics()
	var handler inventory.EventHandler = metrics
	ctx := context.Background()

	_ = handler.HandleStockMovement(ctx, inventory.MovementEvent{Type: inventory.MovementOut, Delta: decimal.NewFromInt(-5)})
	_ = handler.HandleStockMovement(ctx, inventory.MovementEvent{Type: inventory.MovementAdjustment, Delta: decimal.NewFromInt(5), Reversal: true})

	body := scrape(t, metrics)
	if !strings.Contains(body, `docledger_stock_movements_total{reversal="false",type="OUT"} 1`) {
		t.Fatalf("expected OUT movement counted, got: %s", body)
	}
	if !strings.Contains(body, `docledger_stock_movements_total{reversal="true",type="ADJUSTMENT"} 1`) {
		t.Fatalf("expected reversal counted, got: %s", body)
	}
}

func TestMetricsServerExposesWorkerMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.Jobs().AddStockDrift(4, 2)
	_ = metrics.Jobs().Track("inventory:verify").End(errors.New("boom"))

	srv := metrics.Server(":0")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `docledger_stock_drift_items_total{company="4"} 2`) {
		t.Fatalf("expected stock drift in metrics, got: %s", body)
	}
	if !strings.Contains(body, `docledger_jobs_failures_total{job="inventory:verify"} 1`) {
		t.Fatalf("expected job failure in metrics, got: %s", body)
	}

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/documents", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected only /metrics to be served, got %d", rr.Code)
	}
}
