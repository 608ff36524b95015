package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"microlend/domain"
	"microlend/ledger"
	"microlend/logging"
	"microlend/messaging"
	"microlend/repository"

	"go.uber.org/zap"
)

// Wizard steps of a loan request.
const (
	StepLoanDetails = iota
	StepBusinessInfo
	StepDocuments
)

// FieldErrors maps a draft field to what is wrong with it.
type FieldErrors map[string]string

// IncompleteRequestError reports the first wizard step that does not
// validate. It matches ErrIncompleteRequest.
type IncompleteRequestError struct {
	Step   int
	Fields FieldErrors
}

func (e *IncompleteRequestError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s: step %d: %s", ErrIncompleteRequest, e.Step, strings.Join(names, ", "))
}

func (e *IncompleteRequestError) Is(target error) bool {
	return target == ErrIncompleteRequest
}

type LoanRequestService struct {
	idMu sync.Mutex

	loans          *LoanService
	repo           repository.LoanRepository
	store          repository.KeyValueStore
	ledger         ledger.Submitter
	publisher      messaging.Publisher
	draftTTL       time.Duration
	defaultNetwork string
	now            func() time.Time
	logger         *logging.Logger
}

type LoanRequestOption func(*LoanRequestService)

func WithDraftTTL(ttl time.Duration) LoanRequestOption {
	return func(s *LoanRequestService) { s.draftTTL = ttl }
}

func WithDefaultNetwork(network string) LoanRequestOption {
	return func(s *LoanRequestService) { s.defaultNetwork = network }
}

func NewLoanRequestService(
	loans *LoanService,
	repo repository.LoanRepository,
	store repository.KeyValueStore,
	submitter ledger.Submitter,
	publisher messaging.Publisher,
	opts ...LoanRequestOption,
) *LoanRequestService {
	s := &LoanRequestService{
		loans:          loans,
		repo:           repo,
		store:          store,
		ledger:         submitter,
		publisher:      publisher,
		draftTTL:       30 * 24 * time.Hour,
		defaultNetwork: "solana",
		now:            time.Now,
		logger:         logging.L().Named("loan_request"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func draftKey(owner string) string {
	return "draft:" + owner
}

// SaveDraft stores the wizard state of owner, replacing any previous draft.
func (s *LoanRequestService) SaveDraft(ctx context.Context, owner string, draft domain.Draft) (domain.Draft, error) {
	if strings.TrimSpace(owner) == "" {
		return domain.Draft{}, ErrMissingAccount
	}
	draft.UpdatedAt = s.now().UTC()

	raw, err := json.Marshal(draft)
	if err != nil {
		return domain.Draft{}, fmt.Errorf("encode draft: %w", err)
	}
	if err := s.store.Set(ctx, draftKey(owner), string(raw), s.draftTTL); err != nil {
		return domain.Draft{}, fmt.Errorf("save draft: %w", err)
	}
	return draft, nil
}

// LoadDraft returns ErrNotFound when owner has no saved draft.
func (s *LoanRequestService) LoadDraft(ctx context.Context, owner string) (domain.Draft, error) {
	if strings.TrimSpace(owner) == "" {
		return domain.Draft{}, ErrMissingAccount
	}
	raw, err := s.store.Get(ctx, draftKey(owner))
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Draft{}, fmt.Errorf("draft of %s: %w", owner, ErrNotFound)
	}
	if err != nil {
		return domain.Draft{}, fmt.Errorf("load draft: %w", err)
	}

	var draft domain.Draft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return domain.Draft{}, fmt.Errorf("decode draft: %w", err)
	}
	return draft, nil
}

func (s *LoanRequestService) ClearDraft(ctx context.Context, owner string) error {
	if strings.TrimSpace(owner) == "" {
		return ErrMissingAccount
	}
	if err := s.store.Delete(ctx, draftKey(owner)); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

// ValidateStep checks the fields of one wizard step. An empty result means
// the step is complete.
func ValidateStep(draft domain.Draft, step int) FieldErrors {
	errs := FieldErrors{}

	switch step {
	case StepLoanDetails:
		if !(draft.Amount >= MinLoanAmount) {
			errs["amount"] = fmt.Sprintf("Amount must be at least $%.0f", MinLoanAmount)
		} else if draft.Amount > MaxLoanAmount {
			errs["amount"] = fmt.Sprintf("Amount must not exceed $%.0f", MaxLoanAmount)
		}
		if !isLoanPurpose(draft.Purpose) {
			errs["purpose"] = "Please select a loan purpose"
		}
		if !isOfferedTerm(draft.TermMonths) {
			errs["term_months"] = "Please select a term length"
		}

	case StepBusinessInfo:
		if strings.TrimSpace(draft.BusinessName) == "" {
			errs["business_name"] = "Business name is required"
		}
		if draft.BusinessType == "" {
			errs["business_type"] = "Please select business type"
		}
		if draft.Industry == "" {
			errs["industry"] = "Please select an industry"
		}
		if draft.EmployeeCount == "" {
			errs["employee_count"] = "Please select employee count"
		}
		if draft.YearsInBusiness == nil || !(*draft.YearsInBusiness >= 0) {
			errs["years_in_business"] = "Years in business is required"
		}
		if draft.MonthlyRevenue == nil || !(*draft.MonthlyRevenue >= 0) {
			errs["monthly_revenue"] = "Monthly revenue is required"
		}
		if len(strings.TrimSpace(draft.BusinessDescription)) < MinDescriptionLen {
			errs["business_description"] = fmt.Sprintf("Business description must be at least %d characters", MinDescriptionLen)
		}
		if !draft.ConsentToVerification {
			errs["consent_to_verification"] = "Verification consent is required"
		}

	case StepDocuments:
		if len(draft.Documents) < MinDocuments {
			errs["documents"] = fmt.Sprintf("Please upload at least %d required documents", MinDocuments)
		}

	default:
		errs["step"] = fmt.Sprintf("Unknown step %d", step)
	}

	return errs
}

// Completion is the share of required fields filled in, as a whole
// percentage. Having any document counts as one field.
func Completion(draft domain.Draft) int {
	filled := []bool{
		draft.Amount > 0,
		draft.Purpose != "",
		draft.TermMonths > 0,
		strings.TrimSpace(draft.BusinessName) != "",
		draft.BusinessType != "",
		draft.Industry != "",
		draft.EmployeeCount != "",
		draft.YearsInBusiness != nil,
		draft.MonthlyRevenue != nil,
		strings.TrimSpace(draft.BusinessDescription) != "",
		len(draft.Documents) > 0,
	}

	done := 0
	for _, ok := range filled {
		if ok {
			done++
		}
	}
	return int(math.Round(float64(done) / float64(len(filled)) * 100))
}

// AssessRisk grades a request by its size against monthly revenue and the
// age of the business. Missing figures count as zero.
func AssessRisk(draft domain.Draft) domain.RiskLevel {
	var revenue, years float64
	if draft.MonthlyRevenue != nil {
		revenue = *draft.MonthlyRevenue
	}
	if draft.YearsInBusiness != nil {
		years = *draft.YearsInBusiness
	}

	switch {
	case draft.Amount > revenue*3 || years < 1:
		return domain.RiskHigh
	case draft.Amount > revenue*1.5 || years < 2:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

func resolveNetwork(network, fallback string) (string, error) {
	if network == "" {
		network = fallback
	}
	if _, err := ledger.LookupNetwork(network); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidNetwork, network)
	}
	return network, nil
}

// Submit turns a complete draft into an open loan request recorded on
// network. The owner's saved draft is cleared afterwards.
func (s *LoanRequestService) Submit(
	ctx context.Context,
	owner string,
	draft domain.Draft,
	network string,
) (domain.LoanRequest, error) {
	if strings.TrimSpace(owner) == "" {
		return domain.LoanRequest{}, ErrMissingAccount
	}
	for _, step := range []int{StepLoanDetails, StepBusinessInfo, StepDocuments} {
		if errs := ValidateStep(draft, step); len(errs) > 0 {
			return domain.LoanRequest{}, &IncompleteRequestError{Step: step, Fields: errs}
		}
	}
	network, err := resolveNetwork(network, s.defaultNetwork)
	if err != nil {
		return domain.LoanRequest{}, err
	}

	receipt, err := s.ledger.Submit(ctx, network, ledger.ActionCreateLoanRequest)
	if err != nil {
		return domain.LoanRequest{}, fmt.Errorf("submit loan request: %w", err)
	}

	req := domain.LoanRequest{
		Borrower:          owner,
		Amount:            draft.Amount,
		Purpose:           draft.Purpose,
		TermMonths:        draft.TermMonths,
		AnnualRatePercent: s.loans.MarketplaceRate(),
		BusinessName:      strings.TrimSpace(draft.BusinessName),
		Risk:              AssessRisk(draft),
		Summary:           s.loans.Preview(draft.Amount, draft.TermMonths),
		Status:            domain.LoanOpen,
		Network:           network,
		TxHash:            receipt.TxHash,
		CreatedAt:         s.now().UTC(),
	}
	req, err = s.create(ctx, req)
	if err != nil {
		return domain.LoanRequest{}, err
	}

	if err := s.store.Delete(ctx, draftKey(owner)); err != nil {
		s.logger.Warn("failed to clear draft", zap.String("owner", owner), zap.Error(err))
	}

	s.publish(ctx, messaging.Event{
		Type:       messaging.EventLoanRequested,
		LoanID:     req.ID,
		Amount:     req.Amount,
		TxHash:     req.TxHash,
		OccurredAt: req.CreatedAt,
		Attributes: map[string]any{
			"borrower":    req.Borrower,
			"term_months": req.TermMonths,
			"risk":        string(req.Risk),
			"network":     req.Network,
		},
	})

	s.logger.Info("loan request submitted",
		zap.String("loan_id", req.ID),
		zap.Float64("amount", req.Amount),
		zap.String("risk", string(req.Risk)),
	)
	return req, nil
}

// create assigns req an id derived from the current time in milliseconds
// and stores it, moving forward past ids already taken. Allocation and
// insert happen under idMu; a conflict reported by the repository (another
// process won the id) moves on to the next millisecond.
func (s *LoanRequestService) create(ctx context.Context, req domain.LoanRequest) (domain.LoanRequest, error) {
	s.idMu.Lock()
	defer s.idMu.Unlock()

	millis := s.now().UnixMilli()
	for {
		req.ID = fmt.Sprintf("LOAN-%d", millis)
		millis++

		_, err := s.repo.GetRequest(ctx, req.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.LoanRequest{}, fmt.Errorf("allocate loan id: %w", err)
		}

		err = s.repo.CreateRequest(ctx, req)
		if errors.Is(err, repository.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return domain.LoanRequest{}, fmt.Errorf("store loan request: %w", err)
		}
		return req, nil
	}
}

func (s *LoanRequestService) publish(ctx context.Context, event messaging.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("type", string(event.Type)),
			zap.String("loan_id", event.LoanID),
			zap.Error(err),
		)
	}
}

func (s *LoanRequestService) Get(ctx context.Context, id string) (domain.LoanRequest, error) {
	return getRequest(ctx, s.repo, id)
}

// List returns every loan request, newest first.
func (s *LoanRequestService) List(ctx context.Context) ([]domain.LoanRequest, error) {
	reqs, err := s.repo.ListRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("list loan requests: %w", err)
	}
	return reqs, nil
}

func getRequest(ctx context.Context, repo repository.LoanRepository, id string) (domain.LoanRequest, error) {
	req, err := repo.GetRequest(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.LoanRequest{}, fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.LoanRequest{}, fmt.Errorf("load loan %s: %w", id, err)
	}
	return req, nil
}
