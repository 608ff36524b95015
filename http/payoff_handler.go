package http

import (
	"net/http"

	"microlend/domain"
	"microlend/service"
)

type PayoffHandler struct {
	planner *service.PayoffPlanner
}

func NewPayoffHandler(planner *service.PayoffPlanner) *PayoffHandler {
	return &PayoffHandler{planner: planner}
}

type activeLoanRequest struct {
	LoanID            string  `json:"loan_id" validate:"required,notblank"`
	Balance           float64 `json:"balance" validate:"gt=0"`
	AnnualRatePercent float64 `json:"annual_rate_percent" validate:"gte=0"`
	MinimumPayment    float64 `json:"minimum_payment" validate:"gt=0"`
}

type payoffRequest struct {
	Loans         []activeLoanRequest `json:"loans" validate:"required,min=1,max=50,dive"`
	MonthlyBudget float64             `json:"monthly_budget" validate:"gt=0"`
	Strategy      string              `json:"strategy" validate:"required,oneof=snowball avalanche compare"`
}

func (h *PayoffHandler) PayoffPlan(w http.ResponseWriter, r *http.Request) {
	var req payoffRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	loans := make([]domain.ActiveLoan, 0, len(req.Loans))
	for _, l := range req.Loans {
		loans = append(loans, domain.ActiveLoan{
			LoanID:            l.LoanID,
			Balance:           l.Balance,
			AnnualRatePercent: l.AnnualRatePercent,
			MinimumPayment:    l.MinimumPayment,
		})
	}

	plan, err := h.planner.Plan(r.Context(), domain.PayoffInput{
		Loans:         loans,
		MonthlyBudget: req.MonthlyBudget,
		Strategy:      domain.PayoffStrategy(req.Strategy),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPayoffPlanView(plan))
}
