package http

import (
	"net/http"
	"time"

	"microlend/domain"
	"microlend/service"

	"github.com/gorilla/mux"
)

type DraftHandler struct {
	requests *service.LoanRequestService
	loans    *service.LoanService
}

func NewDraftHandler(requests *service.LoanRequestService, loans *service.LoanService) *DraftHandler {
	return &DraftHandler{requests: requests, loans: loans}
}

type documentPayload struct {
	Name        string `json:"name" validate:"required,notblank"`
	ContentHash string `json:"content_hash" validate:"required"`
	SizeBytes   int64  `json:"size_bytes" validate:"gte=0"`
}

// draftPayload is the wizard state as sent by clients. Every field is
// optional until the request is submitted.
type draftPayload struct {
	Amount                float64           `json:"amount" validate:"gte=0"`
	Purpose               string            `json:"purpose"`
	TermMonths            int               `json:"term_months" validate:"gte=0"`
	BusinessName          string            `json:"business_name"`
	BusinessType          string            `json:"business_type"`
	Industry              string            `json:"industry"`
	EmployeeCount         string            `json:"employee_count"`
	YearsInBusiness       *float64          `json:"years_in_business,omitempty"`
	MonthlyRevenue        *float64          `json:"monthly_revenue,omitempty"`
	BusinessDescription   string            `json:"business_description"`
	HasLicenses           bool              `json:"has_licenses"`
	HasBankAccount        bool              `json:"has_bank_account"`
	HasLoanExperience     bool              `json:"has_loan_experience"`
	ConsentToVerification bool              `json:"consent_to_verification"`
	Documents             []documentPayload `json:"documents" validate:"dive"`
}

func (p draftPayload) toDomain() domain.Draft {
	docs := make([]domain.Document, 0, len(p.Documents))
	for _, d := range p.Documents {
		docs = append(docs, domain.Document{Name: d.Name, ContentHash: d.ContentHash, SizeBytes: d.SizeBytes})
	}
	return domain.Draft{
		Amount:                p.Amount,
		Purpose:               p.Purpose,
		TermMonths:            p.TermMonths,
		BusinessName:          p.BusinessName,
		BusinessType:          p.BusinessType,
		Industry:              p.Industry,
		EmployeeCount:         p.EmployeeCount,
		YearsInBusiness:       p.YearsInBusiness,
		MonthlyRevenue:        p.MonthlyRevenue,
		BusinessDescription:   p.BusinessDescription,
		HasLicenses:           p.HasLicenses,
		HasBankAccount:        p.HasBankAccount,
		HasLoanExperience:     p.HasLoanExperience,
		ConsentToVerification: p.ConsentToVerification,
		Documents:             docs,
	}
}

func newDraftPayload(d domain.Draft) draftPayload {
	docs := make([]documentPayload, 0, len(d.Documents))
	for _, doc := range d.Documents {
		docs = append(docs, documentPayload{Name: doc.Name, ContentHash: doc.ContentHash, SizeBytes: doc.SizeBytes})
	}
	return draftPayload{
		Amount:                d.Amount,
		Purpose:               d.Purpose,
		TermMonths:            d.TermMonths,
		BusinessName:          d.BusinessName,
		BusinessType:          d.BusinessType,
		Industry:              d.Industry,
		EmployeeCount:         d.EmployeeCount,
		YearsInBusiness:       d.YearsInBusiness,
		MonthlyRevenue:        d.MonthlyRevenue,
		BusinessDescription:   d.BusinessDescription,
		HasLicenses:           d.HasLicenses,
		HasBankAccount:        d.HasBankAccount,
		HasLoanExperience:     d.HasLoanExperience,
		ConsentToVerification: d.ConsentToVerification,
		Documents:             docs,
	}
}

type stepView struct {
	Step     int                 `json:"step"`
	Complete bool                `json:"complete"`
	Errors   service.FieldErrors `json:"errors,omitempty"`
}

type draftView struct {
	Owner      string           `json:"owner"`
	Draft      draftPayload     `json:"draft"`
	UpdatedAt  time.Time        `json:"updated_at"`
	Completion int              `json:"completion"`
	Risk       domain.RiskLevel `json:"risk"`
	Preview    summaryView      `json:"preview"`
	Steps      []stepView       `json:"steps"`
}

func (h *DraftHandler) view(owner string, d domain.Draft) draftView {
	steps := make([]stepView, 0, 3)
	for _, step := range []int{service.StepLoanDetails, service.StepBusinessInfo, service.StepDocuments} {
		errs := service.ValidateStep(d, step)
		steps = append(steps, stepView{Step: step, Complete: len(errs) == 0, Errors: errs})
	}
	return draftView{
		Owner:      owner,
		Draft:      newDraftPayload(d),
		UpdatedAt:  d.UpdatedAt,
		Completion: service.Completion(d),
		Risk:       service.AssessRisk(d),
		Preview:    newSummaryView(h.loans.Preview(d.Amount, d.TermMonths)),
		Steps:      steps,
	}
}

func (h *DraftHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]

	draft, err := h.requests.LoadDraft(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.view(owner, draft))
}

func (h *DraftHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]

	var req draftPayload
	if !decodeJSON(w, r, &req) {
		return
	}

	draft, err := h.requests.SaveDraft(r.Context(), owner, req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.view(owner, draft))
}

func (h *DraftHandler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.requests.ClearDraft(r.Context(), mux.Vars(r)["owner"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
