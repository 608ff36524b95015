package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"microlend/ledger"
	"microlend/messaging"
	"microlend/repository"
	"microlend/service"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

type testServer struct {
	router  *mux.Router
	metrics *HTTPMetrics
}

func newTestServer(t *testing.T, limiter *RateLimiter, checks map[string]Pinger) testServer {
	t.Helper()

	repo := repository.NewLoanRepositoryMemory()
	store := repository.NewMemoryStore()
	t.Cleanup(store.Stop)
	submitter := ledger.NewSimulator(0, nil)
	publisher := messaging.NoopPublisher{}

	loans := service.NewLoanService(repo, store)
	httpMetrics := NewHTTPMetrics("test")
	if err := httpMetrics.Register(prometheus.NewRegistry()); err != nil {
		t.Fatalf("register metrics: %v", err)
	}

	router := NewRouter(RouterConfig{
		Loans:        loans,
		Terms:        service.NewTermRecommendationService(loans),
		Payoff:       service.NewPayoffPlanner(),
		Requests:     service.NewLoanRequestService(loans, repo, store, submitter, publisher),
		Funding:      service.NewFundingService(repo, submitter, publisher, "solana"),
		Repayments:   service.NewRepaymentService(repo, submitter, publisher, "solana"),
		Limiter:      limiter,
		Metrics:      httpMetrics,
		HealthChecks: checks,
	})
	return testServer{router: router, metrics: httpMetrics}
}

func (s testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestCalculateLoanHandler_OK(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := srv.do(t, http.MethodPost, "/loan/calculate", `{
		"principal": 1000,
		"annual_rate_percent": 12,
		"term_months": 12
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}

	var quote quoteView
	decodeBody(t, w, &quote)
	if !quote.Summary.MonthlyPayment.Equal(decimal.RequireFromString("88.85")) {
		t.Errorf("expected monthly payment 88.85, got %s", quote.Summary.MonthlyPayment)
	}
	if !quote.Summary.TotalInterest.Equal(decimal.RequireFromString("66.19")) {
		t.Errorf("expected total interest 66.19, got %s", quote.Summary.TotalInterest)
	}
	if len(quote.Schedule) != 12 || quote.Schedule[11].RemainingBalance.Sign() != 0 {
		t.Errorf("expected 12 lines ending at zero, got %+v", quote.Schedule)
	}
	if quote.Cached {
		t.Errorf("first quote should not be cached")
	}

	w = srv.do(t, http.MethodPost, "/loan/calculate", `{"principal": 1000, "annual_rate_percent": 12, "term_months": 12}`)
	decodeBody(t, w, &quote)
	if !quote.Cached {
		t.Errorf("expected second quote to be cached")
	}
}

func TestCalculateLoanHandler_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := srv.do(t, http.MethodGet, "/loan/calculate", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestCalculateLoanHandler_BadRequest(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"invalid json", `{invalid-json}`, ""},
		{"unknown field", `{"monto": 1000, "annual_rate_percent": 12, "term_months": 12}`, ""},
		{"zero principal", `{"principal": 0, "annual_rate_percent": 12, "term_months": 12}`, "principal"},
		{"negative rate", `{"principal": 1000, "annual_rate_percent": -1, "term_months": 12}`, "annual_rate_percent"},
		{"zero term", `{"principal": 1000, "annual_rate_percent": 12, "term_months": 0}`, "term_months"},
		{"term too long", `{"principal": 1000, "annual_rate_percent": 12, "term_months": 601}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(t, http.MethodPost, "/loan/calculate", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body)
			}
			var resp errorResponse
			decodeBody(t, w, &resp)
			if tt.field != "" {
				if _, ok := resp.Fields[tt.field]; !ok {
					t.Errorf("expected error on %q, got %+v", tt.field, resp)
				}
			}
		})
	}
}

func TestCalculateLoanHandler_UnsupportedMediaType(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/loan/calculate", strings.NewReader(`principal=1000`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", w.Code)
	}
}

func TestRecommendTermHandler(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := srv.do(t, http.MethodPost, "/loan/recommend-term", `{
		"principal": 10000,
		"annual_rate_percent": 12.5,
		"min_term_months": 3,
		"max_term_months": 24,
		"preference": "minimize_payment"
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var result termRecommendationView
	decodeBody(t, w, &result)
	if result.RecommendedTerm != 24 {
		t.Errorf("expected 24 months, got %d", result.RecommendedTerm)
	}

	w = srv.do(t, http.MethodPost, "/loan/recommend-term", `{
		"principal": 10000,
		"annual_rate_percent": 12.5,
		"min_term_months": 3,
		"max_term_months": 24,
		"preference": "cheapest"
	}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown preference, got %d", w.Code)
	}

	w = srv.do(t, http.MethodPost, "/loan/recommend-term", `{
		"principal": 10000,
		"annual_rate_percent": 12.5,
		"min_term_months": 3,
		"max_term_months": 24,
		"max_monthly_payment": 5,
		"preference": "balanced"
	}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 when no term fits, got %d", w.Code)
	}
}

func TestPayoffPlanHandler(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := srv.do(t, http.MethodPost, "/loan/payoff-plan", `{
		"loans": [
			{"loan_id": "LOAN-A", "balance": 500, "annual_rate_percent": 5, "minimum_payment": 25},
			{"loan_id": "LOAN-B", "balance": 2000, "annual_rate_percent": 20, "minimum_payment": 50}
		],
		"monthly_budget": 200,
		"strategy": "compare"
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var plan payoffPlanView
	decodeBody(t, w, &plan)
	if plan.Strategy != "avalanche" || plan.Comparison == nil {
		t.Errorf("expected avalanche with comparison, got %s", plan.Strategy)
	}
	if plan.MonthsToPayoff != len(plan.Months) {
		t.Errorf("months to payoff %d does not match %d plan months", plan.MonthsToPayoff, len(plan.Months))
	}

	w = srv.do(t, http.MethodPost, "/loan/payoff-plan", `{"loans": [], "monthly_budget": 200, "strategy": "snowball"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty loans, got %d", w.Code)
	}
}

func TestNetworkFees(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := srv.do(t, http.MethodGet, "/networks/ethereum/fees", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var fees feeEstimateView
	decodeBody(t, w, &fees)
	if fees.GasToken != "ETH" || !fees.NetworkFeeUSD.Equal(decimal.RequireFromString("12.5")) || len(fees.Actions) != 3 {
		t.Errorf("unexpected fees %+v", fees)
	}

	if w := srv.do(t, http.MethodGet, "/networks/dogecoin/fees", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	ok := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	srv := newTestServer(t, nil, map[string]Pinger{"redis": ok})
	if w := srv.do(t, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	srv = newTestServer(t, nil, map[string]Pinger{"redis": ok, "sqlite": down})
	w := srv.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var resp healthResponse
	decodeBody(t, w, &resp)
	if resp.Status != "degraded" || resp.Checks["sqlite"] != "connection refused" {
		t.Errorf("unexpected health response %+v", resp)
	}
}

func TestRateLimit(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	defer limiter.Stop()
	srv := newTestServer(t, limiter, nil)

	body := `{"principal": 1000, "annual_rate_percent": 12, "term_months": 12}`
	for i := 0; i < 2; i++ {
		if w := srv.do(t, http.MethodPost, "/loan/calculate", body); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	w := srv.do(t, http.MethodPost, "/loan/calculate", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Errorf("expected Retry-After header")
	}

	if w := srv.do(t, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health should not be rate limited, got %d", w.Code)
	}
}

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	srv.do(t, http.MethodGet, "/loans/LOAN-1", "")
	srv.do(t, http.MethodGet, "/loans/LOAN-2", "")

	got := testutil.ToFloat64(srv.metrics.requests.WithLabelValues(http.MethodGet, "/loans/{id}", "404"))
	if got != 2 {
		t.Errorf("expected 2 requests recorded for /loans/{id}, got %v", got)
	}
}
