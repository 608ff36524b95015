package domain

type TermPreference string

const (
	PreferMinimizeInterest TermPreference = "minimize_interest"
	PreferMinimizePayment  TermPreference = "minimize_payment"
	PreferBalanced         TermPreference = "balanced"
)

type TermRecommendationInput struct {
	Principal         float64
	AnnualRatePercent float64
	MinTermMonths     int
	MaxTermMonths     int
	MaxMonthlyPayment float64 // 0 means no limit
	Preference        TermPreference
}

type TermRecommendation struct {
	TermMonths     int
	MonthlyPayment float64
	TotalInterest  float64
	Score          float64
	Reason         string
}

type TermRecommendationResult struct {
	RecommendedTerm int
	Recommendations []TermRecommendation
}
