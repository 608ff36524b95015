package http

import (
	"net/http"

	"microlend/service"

	"github.com/gorilla/mux"
)

type FundingHandler struct {
	service *service.FundingService
}

func NewFundingHandler(service *service.FundingService) *FundingHandler {
	return &FundingHandler{service: service}
}

type fundingPreviewRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

type fundRequest struct {
	Lender  string  `json:"lender" validate:"required,notblank"`
	Amount  float64 `json:"amount" validate:"gt=0"`
	Network string  `json:"network" validate:"omitempty,oneof=solana ethereum"`
}

func (h *FundingHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req fundingPreviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ret, err := h.service.Preview(r.Context(), mux.Vars(r)["id"], req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLenderReturnView(req.Amount, ret))
}

func (h *FundingHandler) Fund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	funding, loan, err := h.service.Fund(r.Context(), mux.Vars(r)["id"], req.Lender, req.Amount, req.Network)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newFundResponse(funding, loan))
}
