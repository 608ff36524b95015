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

// PayoffPlanner spreads a fixed monthly budget across a borrower's active
// loans.
type PayoffPlanner struct {
	logger *logging.Logger
}

func NewPayoffPlanner() *PayoffPlanner {
	return &PayoffPlanner{logger: logging.L().Named("payoff")}
}

// Plan simulates paying off input.Loans with the requested strategy.
// The compare strategy runs both and returns the cheaper one together with
// the comparison.
func (p *PayoffPlanner) Plan(ctx context.Context, input domain.PayoffInput) (domain.PayoffPlan, error) {
	if err := validatePayoffInput(input); err != nil {
		return domain.PayoffPlan{}, err
	}

	if input.Strategy != domain.StrategyCompare {
		return p.simulate(ctx, input, input.Strategy)
	}

	snowball, err := p.simulate(ctx, input, domain.StrategySnowball)
	if err != nil {
		return domain.PayoffPlan{}, err
	}
	avalanche, err := p.simulate(ctx, input, domain.StrategyAvalanche)
	if err != nil {
		return domain.PayoffPlan{}, err
	}

	plan := snowball
	if avalanche.TotalInterestPaid < snowball.TotalInterestPaid {
		plan = avalanche
	}
	plan.Comparison = &domain.PayoffComparison{
		Snowball: domain.StrategyOutcome{
			TotalInterestPaid: snowball.TotalInterestPaid,
			MonthsToPayoff:    snowball.MonthsToPayoff,
		},
		Avalanche: domain.StrategyOutcome{
			TotalInterestPaid: avalanche.TotalInterestPaid,
			MonthsToPayoff:    avalanche.MonthsToPayoff,
		},
		InterestSaved: roundTo2(math.Max(0, snowball.TotalInterestPaid-avalanche.TotalInterestPaid)),
		MonthsSaved:   snowball.MonthsToPayoff - avalanche.MonthsToPayoff,
	}
	return plan, nil
}

func validatePayoffInput(input domain.PayoffInput) error {
	switch input.Strategy {
	case domain.StrategySnowball, domain.StrategyAvalanche, domain.StrategyCompare:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStrategy, input.Strategy)
	}
	if len(input.Loans) == 0 {
		return fmt.Errorf("%w: no loans given", ErrInvalidPlan)
	}
	if len(input.Loans) > MaxLoansPerPlan {
		return fmt.Errorf("%w: more than %d loans", ErrInvalidPlan, MaxLoansPerPlan)
	}
	if !(input.MonthlyBudget > 0) {
		return fmt.Errorf("%w: monthly budget must be positive", ErrInvalidAmount)
	}

	seen := make(map[string]bool, len(input.Loans))
	minimums := 0.0
	for _, loan := range input.Loans {
		if loan.LoanID == "" {
			return fmt.Errorf("%w: loan id is required", ErrInvalidPlan)
		}
		if seen[loan.LoanID] {
			return fmt.Errorf("%w: duplicate loan %s", ErrInvalidPlan, loan.LoanID)
		}
		seen[loan.LoanID] = true

		if !(loan.Balance > 0) || loan.Balance > MaxLoanAmount {
			return fmt.Errorf("%w: balance of %s", ErrInvalidAmount, loan.LoanID)
		}
		if !(loan.AnnualRatePercent >= 0) || loan.AnnualRatePercent > MaxInterestRate {
			return fmt.Errorf("%w: rate of %s", ErrInvalidRate, loan.LoanID)
		}
		if !(loan.MinimumPayment > 0) {
			return fmt.Errorf("%w: minimum payment of %s", ErrInvalidAmount, loan.LoanID)
		}
		// A minimum that does not cover interest never pays the loan down.
		interest := loan.Balance * monthlyRate(loan.AnnualRatePercent)
		if loan.MinimumPayment < interest {
			return fmt.Errorf("%w: minimum payment of %s (%.2f) is below its monthly interest (%.2f)",
				ErrInvalidPlan, loan.LoanID, loan.MinimumPayment, interest)
		}
		minimums += loan.MinimumPayment
	}

	if minimums > input.MonthlyBudget {
		return fmt.Errorf("%w: budget %.2f does not cover minimum payments of %.2f",
			ErrInvalidPlan, input.MonthlyBudget, minimums)
	}
	return nil
}

func (p *PayoffPlanner) simulate(
	ctx context.Context,
	input domain.PayoffInput,
	strategy domain.PayoffStrategy,
) (domain.PayoffPlan, error) {
	loans := make([]domain.ActiveLoan, len(input.Loans))
	copy(loans, input.Loans)

	if strategy == domain.StrategySnowball {
		sort.SliceStable(loans, func(i, j int) bool {
			return loans[i].Balance < loans[j].Balance
		})
	} else {
		sort.SliceStable(loans, func(i, j int) bool {
			return loans[i].AnnualRatePercent > loans[j].AnnualRatePercent
		})
	}

	balances := make([]float64, len(loans))
	totalBalance := 0.0
	for i, loan := range loans {
		balances[i] = loan.Balance
		totalBalance += loan.Balance
	}

	var months []domain.PayoffMonth
	totalInterest := 0.0
	month := 0

	for {
		if err := ctx.Err(); err != nil {
			return domain.PayoffPlan{}, err
		}
		month++
		available := input.MonthlyBudget
		totalPaid := 0.0
		payments := make([]domain.LoanPayment, 0, len(loans))
		paymentIndex := make([]int, len(loans))

		// Minimums first.
		for i, loan := range loans {
			paymentIndex[i] = -1
			if balances[i] <= 0 {
				continue
			}

			interest := balances[i] * monthlyRate(loan.AnnualRatePercent)
			totalInterest += interest

			payment := math.Min(math.Max(loan.MinimumPayment, interest), balances[i]+interest)
			payment = math.Min(payment, available)
			if payment <= 0 {
				continue
			}

			balances[i] = math.Max(0, balances[i]-math.Max(0, payment-interest))
			available -= payment
			totalPaid += payment

			paymentIndex[i] = len(payments)
			payments = append(payments, domain.LoanPayment{
				LoanID:           loan.LoanID,
				Payment:          payment,
				RemainingBalance: balances[i],
			})
		}

		// The surplus goes to the first open loan in strategy order.
		for i := range loans {
			if available <= 0 {
				break
			}
			if balances[i] <= 0 || paymentIndex[i] < 0 {
				continue
			}
			extra := math.Min(available, balances[i])
			balances[i] = math.Max(0, balances[i]-extra)
			available -= extra
			totalPaid += extra

			pay := &payments[paymentIndex[i]]
			pay.Payment += extra
			pay.RemainingBalance = balances[i]
			break
		}

		for i := range payments {
			payments[i].Payment = roundTo2(payments[i].Payment)
			payments[i].RemainingBalance = roundTo2(payments[i].RemainingBalance)
		}
		months = append(months, domain.PayoffMonth{
			Month:     month,
			Payments:  payments,
			TotalPaid: roundTo2(totalPaid),
		})

		if allBelow(balances, BalanceTolerance) {
			break
		}
		if month >= MaxPayoffMonths {
			p.logger.Warn("payoff simulation hit the month limit",
				zap.String("strategy", string(strategy)),
				zap.Int("months", MaxPayoffMonths),
			)
			break
		}
	}

	return domain.PayoffPlan{
		Strategy:          strategy,
		TotalBalance:      roundTo2(totalBalance),
		TotalInterestPaid: roundTo2(totalInterest),
		MonthsToPayoff:    month,
		Months:            months,
	}, nil
}

func allBelow(values []float64, limit float64) bool {
	for _, v := range values {
		if v > limit {
			return false
		}
	}
	return true
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
