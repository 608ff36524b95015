package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"microlend/domain"
	"microlend/logging"

	"go.uber.org/zap"
)

type TermRecommendationService struct {
	loanService *LoanService
	logger      *logging.Logger
}

func NewTermRecommendationService(loanService *LoanService) *TermRecommendationService {
	return &TermRecommendationService{
		loanService: loanService,
		logger:      logging.L().Named("term_recommendation"),
	}
}

var preferenceWeights = map[domain.TermPreference]struct{ interest, payment, term float64 }{
	domain.PreferMinimizeInterest: {0.7, 0.1, 0.2},
	domain.PreferMinimizePayment:  {0.1, 0.9, 0},
	domain.PreferBalanced:         {0.4, 0.4, 0.2},
}

var preferenceReasons = map[domain.TermPreference]string{
	domain.PreferMinimizeInterest: "Shortest affordable term, keeping total interest low",
	domain.PreferMinimizePayment:  "Longer term, keeping the monthly payment low",
	domain.PreferBalanced:         "Balances the monthly payment against total interest",
}

// RecommendTerm scores every offered term in the requested range and returns
// them best first.
func (s *TermRecommendationService) RecommendTerm(
	ctx context.Context,
	input domain.TermRecommendationInput,
) (domain.TermRecommendationResult, error) {
	weights, ok := preferenceWeights[input.Preference]
	if !ok {
		return domain.TermRecommendationResult{}, fmt.Errorf("%w: %q", ErrInvalidPreference, input.Preference)
	}
	if input.MinTermMonths < MinTermMonths || input.MaxTermMonths < input.MinTermMonths {
		return domain.TermRecommendationResult{}, fmt.Errorf("%w: range %d-%d", ErrInvalidTerm, input.MinTermMonths, input.MaxTermMonths)
	}
	if input.MaxMonthlyPayment < 0 {
		return domain.TermRecommendationResult{}, fmt.Errorf("%w: maximum monthly payment must not be negative", ErrInvalidAmount)
	}

	var candidates []domain.TermRecommendation
	for _, term := range OfferedTerms {
		if term < input.MinTermMonths || term > input.MaxTermMonths {
			continue
		}

		quote, err := s.loanService.CalculateLoan(ctx, domain.LoanTerms{
			Principal:         input.Principal,
			AnnualRatePercent: input.AnnualRatePercent,
			TermMonths:        term,
		})
		if err != nil {
			return domain.TermRecommendationResult{}, err
		}

		if input.MaxMonthlyPayment > 0 && quote.Summary.MonthlyPayment > input.MaxMonthlyPayment {
			s.logger.Debug("term exceeds payment limit",
				zap.Int("term", term),
				zap.Float64("monthly_payment", quote.Summary.MonthlyPayment),
			)
			continue
		}

		candidates = append(candidates, domain.TermRecommendation{
			TermMonths:     term,
			MonthlyPayment: quote.Summary.MonthlyPayment,
			TotalInterest:  quote.Summary.TotalInterest,
			Reason:         preferenceReasons[input.Preference],
		})
	}

	if len(candidates) == 0 {
		return domain.TermRecommendationResult{}, ErrNoViableTerm
	}

	score(candidates, weights.interest, weights.payment, weights.term)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return domain.TermRecommendationResult{
		RecommendedTerm: candidates[0].TermMonths,
		Recommendations: candidates,
	}, nil
}

// score rates each candidate 0-10 against the others. Lower interest, lower
// payment and shorter term each score higher.
func score(candidates []domain.TermRecommendation, wInterest, wPayment, wTerm float64) {
	minI, maxI := math.Inf(1), math.Inf(-1)
	minP, maxP := math.Inf(1), math.Inf(-1)
	minT, maxT := math.MaxInt, math.MinInt
	for _, c := range candidates {
		minI, maxI = math.Min(minI, c.TotalInterest), math.Max(maxI, c.TotalInterest)
		minP, maxP = math.Min(minP, c.MonthlyPayment), math.Max(maxP, c.MonthlyPayment)
		minT, maxT = min(minT, c.TermMonths), max(maxT, c.TermMonths)
	}

	normalize := func(v, lo, hi float64) float64 {
		if hi-lo <= 0 {
			return 10
		}
		return 10 * (1 - (v-lo)/(hi-lo))
	}

	for i := range candidates {
		c := &candidates[i]
		interest := normalize(c.TotalInterest, minI, maxI)
		payment := normalize(c.MonthlyPayment, minP, maxP)
		term := normalize(float64(c.TermMonths), float64(minT), float64(maxT))
		c.Score = math.Round((wInterest*interest+wPayment*payment+wTerm*term)*100) / 100
	}
}
