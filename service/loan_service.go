package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"microlend/domain"
	"microlend/logging"
	"microlend/metrics"
	"microlend/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type LoanService struct {
	repo       repository.LoanRepository
	store      repository.KeyValueStore
	quoteTTL   time.Duration
	marketRate float64
	metrics    metrics.Collector
	logger     *logging.Logger

	// Concurrent misses for the same terms compute the schedule once.
	sf singleflight.Group
}

type LoanServiceOption func(*LoanService)

func WithQuoteTTL(ttl time.Duration) LoanServiceOption {
	return func(s *LoanService) { s.quoteTTL = ttl }
}

func WithMarketplaceRate(rate float64) LoanServiceOption {
	return func(s *LoanService) { s.marketRate = rate }
}

func WithMetrics(c metrics.Collector) LoanServiceOption {
	return func(s *LoanService) { s.metrics = c }
}

// NewLoanService creates a LoanService that caches quotes in store and keeps
// a history of them in repo.
func NewLoanService(
	repo repository.LoanRepository,
	store repository.KeyValueStore,
	opts ...LoanServiceOption,
) *LoanService {
	s := &LoanService{
		repo:       repo,
		store:      store,
		quoteTTL:   10 * time.Minute,
		marketRate: DefaultMarketplaceRate,
		metrics:    metrics.NoOpCollector{},
		logger:     logging.L().Named("loan"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MarketplaceRate is the APR applied to new loan requests.
func (s *LoanService) MarketplaceRate() float64 {
	return s.marketRate
}

func validateTerms(terms domain.LoanTerms) error {
	if !(terms.Principal > 0) || math.IsInf(terms.Principal, 0) {
		return fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	if terms.Principal > MaxLoanAmount {
		return fmt.Errorf("%w: exceeds the maximum of %.2f", ErrInvalidAmount, MaxLoanAmount)
	}
	if !(terms.AnnualRatePercent >= 0) {
		return fmt.Errorf("%w: must not be negative", ErrInvalidRate)
	}
	if terms.AnnualRatePercent > MaxInterestRate {
		return fmt.Errorf("%w: exceeds the maximum of %.2f%%", ErrInvalidRate, MaxInterestRate)
	}
	if terms.TermMonths < MinTermMonths {
		return fmt.Errorf("%w: must be at least %d month", ErrInvalidTerm, MinTermMonths)
	}
	if terms.TermMonths > MaxTermMonths {
		return fmt.Errorf("%w: exceeds the maximum of %d months", ErrInvalidTerm, MaxTermMonths)
	}
	return nil
}

func quoteKey(terms domain.LoanTerms) string {
	return "quote:" +
		strconv.FormatFloat(terms.Principal, 'g', -1, 64) + ":" +
		strconv.FormatFloat(terms.AnnualRatePercent, 'g', -1, 64) + ":" +
		strconv.Itoa(terms.TermMonths)
}

// CalculateLoan validates terms and returns their repayment schedule.
// Quotes are cached; a cached quote is returned with Cached set.
func (s *LoanService) CalculateLoan(ctx context.Context, terms domain.LoanTerms) (domain.LoanQuote, error) {
	if err := validateTerms(terms); err != nil {
		return domain.LoanQuote{}, err
	}

	key := quoteKey(terms)
	if quote, ok := s.cachedQuote(ctx, key); ok {
		return quote, nil
	}

	v, _, _ := s.sf.Do(key, func() (any, error) {
		return s.computeQuote(ctx, key, terms), nil
	})
	return v.(domain.LoanQuote), nil
}

// computeQuote builds the schedule for terms and stores it for later calls.
func (s *LoanService) computeQuote(ctx context.Context, key string, terms domain.LoanTerms) domain.LoanQuote {
	start := time.Now()
	schedule, summary := ComputeSchedule(terms)
	s.metrics.RecordCalculation("schedule", time.Since(start))

	quote := domain.LoanQuote{Terms: terms, Schedule: schedule, Summary: summary}

	if raw, err := json.Marshal(quote); err == nil {
		if err := s.store.Set(ctx, key, string(raw), s.quoteTTL); err != nil {
			s.logger.Warn("failed to cache quote", zap.String("key", key), zap.Error(err))
		}
	}

	// Non-critical.
	if err := s.repo.SaveQuote(ctx, terms, summary); err != nil {
		s.logger.Warn("failed to save quote", zap.Error(err))
	}

	return quote
}

func (s *LoanService) cachedQuote(ctx context.Context, key string) (domain.LoanQuote, bool) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("quote cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		return domain.LoanQuote{}, false
	}

	var quote domain.LoanQuote
	if err := json.Unmarshal([]byte(raw), &quote); err != nil {
		s.logger.Warn("discarding unreadable cached quote", zap.String("key", key), zap.Error(err))
		return domain.LoanQuote{}, false
	}
	quote.Cached = true
	return quote, true
}

// Preview summarises a loan at the marketplace rate. Incomplete input yields
// a zero summary rather than an error, so forms can preview while editing.
func (s *LoanService) Preview(principal float64, termMonths int) domain.ScheduleSummary {
	start := time.Now()
	_, summary := ComputeSchedule(domain.LoanTerms{
		Principal:         principal,
		AnnualRatePercent: s.marketRate,
		TermMonths:        termMonths,
	})
	s.metrics.RecordCalculation("preview", time.Since(start))
	return summary
}
