package service

import (
	"math"

	"microlend/domain"
)

// monthlyRate converts an annual percentage into a monthly decimal rate.
func monthlyRate(annualRatePercent float64) float64 {
	return annualRatePercent / 100 / 12
}

// maxScheduleMonths bounds the number of lines a schedule can hold.
const maxScheduleMonths = 12 * 1000

func validSchedule(terms domain.LoanTerms) bool {
	if !(terms.Principal > 0) || math.IsInf(terms.Principal, 0) {
		return false
	}
	if terms.TermMonths < 1 || terms.TermMonths > maxScheduleMonths {
		return false
	}
	rate := terms.AnnualRatePercent
	return rate >= 0 && !math.IsInf(rate, 0)
}

// ComputeSchedule builds the equal-installment (annuity) repayment schedule
// for terms and its aggregate summary.
//
// It is total: invalid terms (non-positive principal, term under one month
// or beyond maxScheduleMonths, negative or non-finite rate) produce an empty
// schedule and a zero summary. Values keep full float64 precision; callers
// round for display.
func ComputeSchedule(terms domain.LoanTerms) ([]domain.PaymentLine, domain.ScheduleSummary) {
	if !validSchedule(terms) {
		return []domain.PaymentLine{}, domain.ScheduleSummary{}
	}

	r := monthlyRate(terms.AnnualRatePercent)
	n := terms.TermMonths

	payment := annuityPayment(terms.Principal, r, n)
	if math.IsInf(payment, 0) || math.IsNaN(payment) {
		return []domain.PaymentLine{}, domain.ScheduleSummary{}
	}

	schedule := make([]domain.PaymentLine, 0, n)
	balance := terms.Principal
	var totalRepayment float64

	for month := 1; month <= n; month++ {
		interest := balance * r
		principal := payment - interest
		balance = math.Max(0, balance-principal)

		schedule = append(schedule, domain.PaymentLine{
			Month:              month,
			Payment:            payment,
			PrincipalComponent: principal,
			InterestComponent:  interest,
			RemainingBalance:   balance,
		})
		totalRepayment += payment
	}

	return schedule, domain.ScheduleSummary{
		MonthlyPayment: payment,
		TotalRepayment: totalRepayment,
		TotalInterest:  totalRepayment - terms.Principal,
	}
}

// annuityPayment is P*r*(1+r)^n / ((1+r)^n - 1), written as
// P*r / (1 - (1+r)^-n) with log1p/expm1 so it stays exact for tiny rates and
// tends to P*r instead of overflowing for huge ones.
func annuityPayment(principal, r float64, n int) float64 {
	if r == 0 {
		return principal / float64(n)
	}
	return principal * r / -math.Expm1(-float64(n)*math.Log1p(r))
}

// ComputeLenderReturn projects a lender's return with simple, non-amortizing
// interest over the loan term. This deliberately differs from the borrower
// schedule of ComputeSchedule.
func ComputeLenderReturn(fundedAmount, annualRatePercent float64, termMonths int) domain.LenderReturn {
	if !(fundedAmount > 0) || math.IsInf(fundedAmount, 0) || termMonths < 1 {
		return domain.LenderReturn{}
	}
	if !(annualRatePercent >= 0) || math.IsInf(annualRatePercent, 0) {
		return domain.LenderReturn{}
	}

	totalInterest := fundedAmount * (annualRatePercent / 100) * (float64(termMonths) / 12)
	totalReturn := fundedAmount + totalInterest

	return domain.LenderReturn{
		TotalInterest: totalInterest,
		TotalReturn:   totalReturn,
		MonthlyReturn: totalReturn / float64(termMonths),
		ROI:           totalInterest / fundedAmount * 100,
	}
}
