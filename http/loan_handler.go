package http

import (
	"net/http"

	"microlend/domain"
	"microlend/service"
)

type LoanHandler struct {
	service *service.LoanService
}

func NewLoanHandler(service *service.LoanService) *LoanHandler {
	return &LoanHandler{service: service}
}

type calculateRequest struct {
	Principal         float64 `json:"principal" validate:"gt=0"`
	AnnualRatePercent float64 `json:"annual_rate_percent" validate:"gte=0"`
	TermMonths        int     `json:"term_months" validate:"gte=1"`
}

func (h *LoanHandler) CalculateLoan(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	quote, err := h.service.CalculateLoan(r.Context(), domain.LoanTerms{
		Principal:         req.Principal,
		AnnualRatePercent: req.AnnualRatePercent,
		TermMonths:        req.TermMonths,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newQuoteView(quote))
}
