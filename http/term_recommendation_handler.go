package http

import (
	"net/http"

	"microlend/domain"
	"microlend/service"
)

type TermRecommendationHandler struct {
	service *service.TermRecommendationService
}

func NewTermRecommendationHandler(service *service.TermRecommendationService) *TermRecommendationHandler {
	return &TermRecommendationHandler{service: service}
}

type recommendTermRequest struct {
	Principal         float64 `json:"principal" validate:"gt=0"`
	AnnualRatePercent float64 `json:"annual_rate_percent" validate:"gte=0"`
	MinTermMonths     int     `json:"min_term_months" validate:"gte=1"`
	MaxTermMonths     int     `json:"max_term_months" validate:"gtefield=MinTermMonths"`
	MaxMonthlyPayment float64 `json:"max_monthly_payment" validate:"gte=0"`
	Preference        string  `json:"preference" validate:"required,oneof=minimize_interest minimize_payment balanced"`
}

func (h *TermRecommendationHandler) RecommendTerm(w http.ResponseWriter, r *http.Request) {
	var req recommendTermRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.RecommendTerm(r.Context(), domain.TermRecommendationInput{
		Principal:         req.Principal,
		AnnualRatePercent: req.AnnualRatePercent,
		MinTermMonths:     req.MinTermMonths,
		MaxTermMonths:     req.MaxTermMonths,
		MaxMonthlyPayment: req.MaxMonthlyPayment,
		Preference:        domain.TermPreference(req.Preference),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newTermRecommendationView(result))
}
