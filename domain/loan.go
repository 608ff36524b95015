package domain

// LoanTerms are the inputs of an amortization schedule.
type LoanTerms struct {
	Principal         float64
	AnnualRatePercent float64
	TermMonths        int
}

// PaymentLine is one month of an amortization schedule.
type PaymentLine struct {
	Month              int
	Payment            float64
	PrincipalComponent float64
	InterestComponent  float64
	RemainingBalance   float64
}

type ScheduleSummary struct {
	MonthlyPayment float64
	TotalRepayment float64
	TotalInterest  float64
}

// LenderReturn is the simple-interest projection shown to lenders before funding.
type LenderReturn struct {
	TotalInterest float64
	TotalReturn   float64
	MonthlyReturn float64
	ROI           float64
}

type LoanQuote struct {
	Terms    LoanTerms
	Schedule []PaymentLine
	Summary  ScheduleSummary
	Cached   bool
}
