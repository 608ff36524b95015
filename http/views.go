package http

import (
	"time"

	"microlend/domain"
	"microlend/ledger"
	"microlend/service"

	"github.com/shopspring/decimal"
)

// money rounds an amount to cents for display.
func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

type summaryView struct {
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	TotalRepayment decimal.Decimal `json:"total_repayment"`
	TotalInterest  decimal.Decimal `json:"total_interest"`
}

func newSummaryView(s domain.ScheduleSummary) summaryView {
	return summaryView{
		MonthlyPayment: money(s.MonthlyPayment),
		TotalRepayment: money(s.TotalRepayment),
		TotalInterest:  money(s.TotalInterest),
	}
}

type paymentLineView struct {
	Month              int             `json:"month"`
	Payment            decimal.Decimal `json:"payment"`
	PrincipalComponent decimal.Decimal `json:"principal"`
	InterestComponent  decimal.Decimal `json:"interest"`
	RemainingBalance   decimal.Decimal `json:"remaining_balance"`
}

type quoteView struct {
	Principal         decimal.Decimal   `json:"principal"`
	AnnualRatePercent float64           `json:"annual_rate_percent"`
	TermMonths        int               `json:"term_months"`
	Summary           summaryView       `json:"summary"`
	Schedule          []paymentLineView `json:"schedule"`
	Cached            bool              `json:"cached"`
}

func newQuoteView(q domain.LoanQuote) quoteView {
	lines := make([]paymentLineView, 0, len(q.Schedule))
	for _, l := range q.Schedule {
		lines = append(lines, paymentLineView{
			Month:              l.Month,
			Payment:            money(l.Payment),
			PrincipalComponent: money(l.PrincipalComponent),
			InterestComponent:  money(l.InterestComponent),
			RemainingBalance:   money(l.RemainingBalance),
		})
	}
	return quoteView{
		Principal:         money(q.Terms.Principal),
		AnnualRatePercent: q.Terms.AnnualRatePercent,
		TermMonths:        q.Terms.TermMonths,
		Summary:           newSummaryView(q.Summary),
		Schedule:          lines,
		Cached:            q.Cached,
	}
}

type termView struct {
	TermMonths     int             `json:"term_months"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	TotalInterest  decimal.Decimal `json:"total_interest"`
	Score          float64         `json:"score"`
	Reason         string          `json:"reason"`
}

type termRecommendationView struct {
	RecommendedTerm int        `json:"recommended_term"`
	Recommendations []termView `json:"recommendations"`
}

func newTermRecommendationView(r domain.TermRecommendationResult) termRecommendationView {
	terms := make([]termView, 0, len(r.Recommendations))
	for _, t := range r.Recommendations {
		terms = append(terms, termView{
			TermMonths:     t.TermMonths,
			MonthlyPayment: money(t.MonthlyPayment),
			TotalInterest:  money(t.TotalInterest),
			Score:          t.Score,
			Reason:         t.Reason,
		})
	}
	return termRecommendationView{RecommendedTerm: r.RecommendedTerm, Recommendations: terms}
}

type loanPaymentView struct {
	LoanID           string          `json:"loan_id"`
	Payment          decimal.Decimal `json:"payment"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

type payoffMonthView struct {
	Month     int               `json:"month"`
	Payments  []loanPaymentView `json:"payments"`
	TotalPaid decimal.Decimal   `json:"total_paid"`
}

type strategyOutcomeView struct {
	TotalInterestPaid decimal.Decimal `json:"total_interest_paid"`
	MonthsToPayoff    int             `json:"months_to_payoff"`
}

type payoffComparisonView struct {
	Snowball      strategyOutcomeView `json:"snowball"`
	Avalanche     strategyOutcomeView `json:"avalanche"`
	InterestSaved decimal.Decimal     `json:"interest_saved"`
	MonthsSaved   int                 `json:"months_saved"`
}

type payoffPlanView struct {
	Strategy          domain.PayoffStrategy `json:"strategy"`
	TotalBalance      decimal.Decimal       `json:"total_balance"`
	TotalInterestPaid decimal.Decimal       `json:"total_interest_paid"`
	MonthsToPayoff    int                   `json:"months_to_payoff"`
	Months            []payoffMonthView     `json:"months"`
	Comparison        *payoffComparisonView `json:"comparison,omitempty"`
}

func newPayoffPlanView(p domain.PayoffPlan) payoffPlanView {
	months := make([]payoffMonthView, 0, len(p.Months))
	for _, m := range p.Months {
		payments := make([]loanPaymentView, 0, len(m.Payments))
		for _, pay := range m.Payments {
			payments = append(payments, loanPaymentView{
				LoanID:           pay.LoanID,
				Payment:          money(pay.Payment),
				RemainingBalance: money(pay.RemainingBalance),
			})
		}
		months = append(months, payoffMonthView{Month: m.Month, Payments: payments, TotalPaid: money(m.TotalPaid)})
	}

	view := payoffPlanView{
		Strategy:          p.Strategy,
		TotalBalance:      money(p.TotalBalance),
		TotalInterestPaid: money(p.TotalInterestPaid),
		MonthsToPayoff:    p.MonthsToPayoff,
		Months:            months,
	}
	if c := p.Comparison; c != nil {
		view.Comparison = &payoffComparisonView{
			Snowball:      strategyOutcomeView{money(c.Snowball.TotalInterestPaid), c.Snowball.MonthsToPayoff},
			Avalanche:     strategyOutcomeView{money(c.Avalanche.TotalInterestPaid), c.Avalanche.MonthsToPayoff},
			InterestSaved: money(c.InterestSaved),
			MonthsSaved:   c.MonthsSaved,
		}
	}
	return view
}

type loanView struct {
	ID                string            `json:"id"`
	Borrower          string            `json:"borrower"`
	Amount            decimal.Decimal   `json:"amount"`
	Purpose           string            `json:"purpose"`
	TermMonths        int               `json:"term_months"`
	AnnualRatePercent float64           `json:"annual_rate_percent"`
	BusinessName      string            `json:"business_name"`
	Risk              domain.RiskLevel  `json:"risk"`
	Summary           summaryView       `json:"summary"`
	FundedAmount      decimal.Decimal   `json:"funded_amount"`
	FundingProgress   int               `json:"funding_progress"`
	Status            domain.LoanStatus `json:"status"`
	Network           string            `json:"network"`
	TxHash            string            `json:"tx_hash"`
	CreatedAt         time.Time         `json:"created_at"`
	FundedAt          *time.Time        `json:"funded_at,omitempty"`
}

func newLoanView(l domain.LoanRequest) loanView {
	return loanView{
		ID:                l.ID,
		Borrower:          l.Borrower,
		Amount:            money(l.Amount),
		Purpose:           l.Purpose,
		TermMonths:        l.TermMonths,
		AnnualRatePercent: l.AnnualRatePercent,
		BusinessName:      l.BusinessName,
		Risk:              l.Risk,
		Summary:           newSummaryView(l.Summary),
		FundedAmount:      money(l.FundedAmount),
		FundingProgress:   service.Progress(l),
		Status:            l.Status,
		Network:           l.Network,
		TxHash:            l.TxHash,
		CreatedAt:         l.CreatedAt,
		FundedAt:          l.FundedAt,
	}
}

type lenderReturnView struct {
	Amount        decimal.Decimal `json:"amount"`
	TotalInterest decimal.Decimal `json:"total_interest"`
	TotalReturn   decimal.Decimal `json:"total_return"`
	MonthlyReturn decimal.Decimal `json:"monthly_return"`
	ROI           decimal.Decimal `json:"roi"`
}

func newLenderReturnView(amount float64, r domain.LenderReturn) lenderReturnView {
	return lenderReturnView{
		Amount:        money(amount),
		TotalInterest: money(r.TotalInterest),
		TotalReturn:   money(r.TotalReturn),
		MonthlyReturn: money(r.MonthlyReturn),
		ROI:           money(r.ROI),
	}
}

type fundingView struct {
	ID             string          `json:"id"`
	LoanID         string          `json:"loan_id"`
	Lender         string          `json:"lender"`
	Amount         decimal.Decimal `json:"amount"`
	ExpectedReturn decimal.Decimal `json:"expected_return"`
	Network        string          `json:"network"`
	TxHash         string          `json:"tx_hash"`
	CreatedAt      time.Time       `json:"created_at"`
}

type fundResponse struct {
	Funding fundingView `json:"funding"`
	Loan    loanView    `json:"loan"`
}

func newFundResponse(f domain.Funding, l domain.LoanRequest) fundResponse {
	return fundResponse{
		Funding: fundingView{
			ID:             f.ID,
			LoanID:         f.LoanID,
			Lender:         f.Lender,
			Amount:         money(f.Amount),
			ExpectedReturn: money(f.ExpectedReturn),
			Network:        f.Network,
			TxHash:         f.TxHash,
			CreatedAt:      f.CreatedAt,
		},
		Loan: newLoanView(l),
	}
}

type installmentView struct {
	Month     int                      `json:"month"`
	DueDate   time.Time                `json:"due_date"`
	Amount    decimal.Decimal          `json:"amount"`
	Principal decimal.Decimal          `json:"principal"`
	Interest  decimal.Decimal          `json:"interest"`
	Status    domain.InstallmentStatus `json:"status"`
	PaidAt    *time.Time               `json:"paid_at,omitempty"`
	TxHash    string                   `json:"tx_hash,omitempty"`
}

func newInstallmentView(i domain.Installment) installmentView {
	return installmentView{
		Month:     i.Month,
		DueDate:   i.DueDate,
		Amount:    money(i.Amount),
		Principal: money(i.PrincipalComponent),
		Interest:  money(i.InterestComponent),
		Status:    i.Status,
		PaidAt:    i.PaidAt,
		TxHash:    i.TxHash,
	}
}

type statsView struct {
	TotalPaid        decimal.Decimal `json:"total_paid"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	NextPayment      decimal.Decimal `json:"next_payment"`
	NextPaymentDate  *time.Time      `json:"next_payment_date,omitempty"`
	OverdueAmount    decimal.Decimal `json:"overdue_amount"`
	PaidCount        int             `json:"paid_count"`
	RemainingCount   int             `json:"remaining_count"`
	OverdueCount     int             `json:"overdue_count"`
	ProgressPercent  int             `json:"progress_percent"`
}

type repaymentsView struct {
	LoanID       string            `json:"loan_id"`
	Installments []installmentView `json:"installments"`
	Stats        statsView         `json:"stats"`
}

func newRepaymentsView(loanID string, installments []domain.Installment) repaymentsView {
	views := make([]installmentView, 0, len(installments))
	for _, i := range installments {
		views = append(views, newInstallmentView(i))
	}
	s := service.Stats(installments)
	return repaymentsView{
		LoanID:       loanID,
		Installments: views,
		Stats: statsView{
			TotalPaid:        money(s.TotalPaid),
			RemainingBalance: money(s.RemainingBalance),
			NextPayment:      money(s.NextPayment),
			NextPaymentDate:  s.NextPaymentDate,
			OverdueAmount:    money(s.OverdueAmount),
			PaidCount:        s.PaidCount,
			RemainingCount:   s.RemainingCount,
			OverdueCount:     s.OverdueCount,
			ProgressPercent:  s.ProgressPercent,
		},
	}
}

type paymentQuoteView struct {
	LoanID      string          `json:"loan_id"`
	Month       int             `json:"month"`
	Amount      decimal.Decimal `json:"amount"`
	LateFee     decimal.Decimal `json:"late_fee"`
	FinalAmount decimal.Decimal `json:"final_amount"`
	GasEstimate float64         `json:"gas_estimate"`
	GasToken    string          `json:"gas_token"`
}

func newPaymentQuoteView(q domain.PaymentQuote) paymentQuoteView {
	return paymentQuoteView{
		LoanID:      q.LoanID,
		Month:       q.Month,
		Amount:      money(q.Amount),
		LateFee:     money(q.LateFee),
		FinalAmount: money(q.FinalAmount),
		GasEstimate: q.GasEstimate,
		GasToken:    q.GasToken,
	}
}

type payResponse struct {
	Installment installmentView  `json:"installment"`
	Quote       paymentQuoteView `json:"quote"`
}

type actionFeeView struct {
	Action ledger.Action `json:"action"`
	Gas    int           `json:"gas"`
}

type feeEstimateView struct {
	Network       string          `json:"network"`
	GasToken      string          `json:"gas_token"`
	GasPerTx      float64         `json:"gas_per_tx"`
	NetworkFeeUSD decimal.Decimal `json:"network_fee_usd"`
	GasUnit       string          `json:"gas_unit"`
	Actions       []actionFeeView `json:"actions"`
}

func newFeeEstimateView(e ledger.FeeEstimate) feeEstimateView {
	actions := make([]actionFeeView, 0, len(e.Actions))
	for _, a := range e.Actions {
		actions = append(actions, actionFeeView{Action: a.Action, Gas: a.Gas})
	}
	return feeEstimateView{
		Network:       e.Network,
		GasToken:      e.GasToken,
		GasPerTx:      e.GasPerTx,
		NetworkFeeUSD: money(e.NetworkFeeUSD),
		GasUnit:       e.GasUnit,
		Actions:       actions,
	}
}
