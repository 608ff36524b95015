package http

import (
	"net/http"

	"microlend/domain"
	"microlend/service"

	"github.com/gorilla/mux"
)

type LoanRequestHandler struct {
	service *service.LoanRequestService
}

func NewLoanRequestHandler(service *service.LoanRequestService) *LoanRequestHandler {
	return &LoanRequestHandler{service: service}
}

// submitRequest submits Draft when given, otherwise the borrower's saved
// draft.
type submitRequest struct {
	Borrower string        `json:"borrower" validate:"required,notblank"`
	Network  string        `json:"network" validate:"omitempty,oneof=solana ethereum"`
	Draft    *draftPayload `json:"draft,omitempty"`
}

func (h *LoanRequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var draft domain.Draft
	if req.Draft != nil {
		draft = req.Draft.toDomain()
	} else {
		saved, err := h.service.LoadDraft(r.Context(), req.Borrower)
		if err != nil {
			writeError(w, r, err)
			return
		}
		draft = saved
	}

	loan, err := h.service.Submit(r.Context(), req.Borrower, draft, req.Network)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/loans/"+loan.ID)
	writeJSON(w, http.StatusCreated, newLoanView(loan))
}

func (h *LoanRequestHandler) List(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := r.URL.Query().Get("status")
	views := make([]loanView, 0, len(loans))
	for _, l := range loans {
		if status != "" && string(l.Status) != status {
			continue
		}
		views = append(views, newLoanView(l))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *LoanRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	loan, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanView(loan))
}
