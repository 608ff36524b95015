package domain

type PayoffStrategy string

const (
	StrategySnowball  PayoffStrategy = "snowball"
	StrategyAvalanche PayoffStrategy = "avalanche"
	StrategyCompare   PayoffStrategy = "compare"
)

// ActiveLoan is an outstanding balance a borrower is still repaying.
type ActiveLoan struct {
	LoanID            string
	Balance           float64
	AnnualRatePercent float64
	MinimumPayment    float64
}

type PayoffInput struct {
	Loans         []ActiveLoan
	MonthlyBudget float64
	Strategy      PayoffStrategy
}

type LoanPayment struct {
	LoanID           string
	Payment          float64
	RemainingBalance float64
}

type PayoffMonth struct {
	Month     int
	Payments  []LoanPayment
	TotalPaid float64
}

type StrategyOutcome struct {
	TotalInterestPaid float64
	MonthsToPayoff    int
}

type PayoffComparison struct {
	Snowball      StrategyOutcome
	Avalanche     StrategyOutcome
	InterestSaved float64
	MonthsSaved   int
}

type PayoffPlan struct {
	Strategy          PayoffStrategy
	TotalBalance      float64
	TotalInterestPaid float64
	MonthsToPayoff    int
	Months            []PayoffMonth
	Comparison        *PayoffComparison `json:",omitempty"`
}
