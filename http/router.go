package http

import (
	"net/http"
	"net/netip"

	"microlend/service"

	"github.com/gorilla/mux"
)

// RouterConfig holds what NewRouter wires. Limiter, Metrics and
// MetricsHandler are optional. TrustedProxies lists the peers whose
// X-Forwarded-For the limiter honors.
type RouterConfig struct {
	Loans      *service.LoanService
	Terms      *service.TermRecommendationService
	Payoff     *service.PayoffPlanner
	Requests   *service.LoanRequestService
	Funding    *service.FundingService
	Repayments *service.RepaymentService

	Limiter        *RateLimiter
	TrustedProxies []netip.Prefix
	Metrics        *HTTPMetrics
	MetricsHandler http.Handler
	HealthChecks   map[string]Pinger
}

func NewRouter(cfg RouterConfig) *mux.Router {
	loanHandler := NewLoanHandler(cfg.Loans)
	termHandler := NewTermRecommendationHandler(cfg.Terms)
	payoffHandler := NewPayoffHandler(cfg.Payoff)
	draftHandler := NewDraftHandler(cfg.Requests, cfg.Loans)
	requestHandler := NewLoanRequestHandler(cfg.Requests)
	fundingHandler := NewFundingHandler(cfg.Funding)
	repaymentHandler := NewRepaymentHandler(cfg.Repayments)

	r := mux.NewRouter()
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}

	r.HandleFunc("/health", HealthCheck(cfg.HealthChecks)).Methods(http.MethodGet)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler).Methods(http.MethodGet)
	}

	// Everything except health and metrics is rate limited.
	api := &limitedRoutes{router: r}
	if cfg.Limiter != nil {
		api.limit = RateLimitMiddleware(cfg.Limiter, cfg.TrustedProxies)
	}

	api.HandleFunc("/loan/calculate", loanHandler.CalculateLoan).Methods(http.MethodPost)
	api.HandleFunc("/loan/recommend-term", termHandler.RecommendTerm).Methods(http.MethodPost)
	api.HandleFunc("/loan/payoff-plan", payoffHandler.PayoffPlan).Methods(http.MethodPost)

	api.HandleFunc("/drafts/{owner}", draftHandler.GetDraft).Methods(http.MethodGet)
	api.HandleFunc("/drafts/{owner}", draftHandler.SaveDraft).Methods(http.MethodPut)
	api.HandleFunc("/drafts/{owner}", draftHandler.DeleteDraft).Methods(http.MethodDelete)

	api.HandleFunc("/loans", requestHandler.Submit).Methods(http.MethodPost)
	api.HandleFunc("/loans", requestHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/loans/{id}", requestHandler.Get).Methods(http.MethodGet)

	api.HandleFunc("/loans/{id}/funding-preview", fundingHandler.Preview).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id}/fund", fundingHandler.Fund).Methods(http.MethodPost)

	api.HandleFunc("/loans/{id}/repayments", repaymentHandler.Installments).Methods(http.MethodGet)
	api.HandleFunc("/loans/{id}/repayments/{month:[0-9]+}/quote", repaymentHandler.Quote).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id}/repayments/{month:[0-9]+}/pay", repaymentHandler.Pay).Methods(http.MethodPost)

	api.HandleFunc("/networks/{network}/fees", NetworkFees).Methods(http.MethodGet)

	return r
}

type limitedRoutes struct {
	router *mux.Router
	limit  mux.MiddlewareFunc
}

func (l *limitedRoutes) HandleFunc(path string, f http.HandlerFunc) *mux.Route {
	var h http.Handler = f
	if l.limit != nil {
		h = l.limit(h)
	}
	return l.router.Handle(path, h)
}
