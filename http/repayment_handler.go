package http

import (
	"net/http"
	"strconv"
	"time"

	"microlend/service"

	"github.com/gorilla/mux"
)

type RepaymentHandler struct {
	service *service.RepaymentService
	now     func() time.Time
}

func NewRepaymentHandler(service *service.RepaymentService) *RepaymentHandler {
	return &RepaymentHandler{service: service, now: time.Now}
}

type paymentQuoteRequest struct {
	Network string `json:"network" validate:"omitempty,oneof=solana ethereum"`
}

type payRequest struct {
	Network       string  `json:"network" validate:"omitempty,oneof=solana ethereum"`
	WalletBalance float64 `json:"wallet_balance" validate:"gte=0"`
}

func monthVar(r *http.Request) (int, bool) {
	month, err := strconv.Atoi(mux.Vars(r)["month"])
	return month, err == nil && month >= 1
}

func (h *RepaymentHandler) Installments(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["id"]

	installments, err := h.service.Installments(r.Context(), loanID, h.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRepaymentsView(loanID, installments))
}

func (h *RepaymentHandler) Quote(w http.ResponseWriter, r *http.Request) {
	month, ok := monthVar(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "month must be a positive integer"})
		return
	}
	var req paymentQuoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	quote, err := h.service.Quote(r.Context(), mux.Vars(r)["id"], month, req.Network, h.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaymentQuoteView(quote))
}

func (h *RepaymentHandler) Pay(w http.ResponseWriter, r *http.Request) {
	month, ok := monthVar(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "month must be a positive integer"})
		return
	}
	var req payRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inst, quote, err := h.service.Pay(r.Context(), mux.Vars(r)["id"], month, req.Network, req.WalletBalance, h.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payResponse{
		Installment: newInstallmentView(inst),
		Quote:       newPaymentQuoteView(quote),
	})
}
