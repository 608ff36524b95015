package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"microlend/domain"
	"microlend/ledger"
	"microlend/logging"
	"microlend/messaging"
	"microlend/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FundingService lets lenders fund open loan requests.
type FundingService struct {
	repo           repository.LoanRepository
	ledger         ledger.Submitter
	publisher      messaging.Publisher
	defaultNetwork string
	now            func() time.Time
	logger         *logging.Logger

	// Serialises the read-modify-write of a loan's funded amount.
	mu sync.Mutex
}

func NewFundingService(
	repo repository.LoanRepository,
	submitter ledger.Submitter,
	publisher messaging.Publisher,
	defaultNetwork string,
) *FundingService {
	return &FundingService{
		repo:           repo,
		ledger:         submitter,
		publisher:      publisher,
		defaultNetwork: defaultNetwork,
		now:            time.Now,
		logger:         logging.L().Named("funding"),
	}
}

// Preview is what a lender earns by funding amount of the loan.
func (s *FundingService) Preview(ctx context.Context, loanID string, amount float64) (domain.LenderReturn, error) {
	if !(amount > 0) || math.IsInf(amount, 0) {
		return domain.LenderReturn{}, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	loan, err := getRequest(ctx, s.repo, loanID)
	if err != nil {
		return domain.LenderReturn{}, err
	}
	return ComputeLenderReturn(amount, loan.AnnualRatePercent, loan.TermMonths), nil
}

// Progress is the funded share of the loan target as a whole percentage,
// capped at 100.
func Progress(loan domain.LoanRequest) int {
	if !(loan.Amount > 0) {
		return 0
	}
	return int(math.Min(100, math.Round(loan.FundedAmount/loan.Amount*100)))
}

func remaining(loan domain.LoanRequest) float64 {
	return math.Max(0, loan.Amount-loan.FundedAmount)
}

// Fund records a lender's contribution. The loan becomes funded, and its
// installments are scheduled, once the target is reached.
func (s *FundingService) Fund(
	ctx context.Context,
	loanID string,
	lender string,
	amount float64,
	network string,
) (domain.Funding, domain.LoanRequest, error) {
	if strings.TrimSpace(lender) == "" {
		return domain.Funding{}, domain.LoanRequest{}, ErrMissingAccount
	}
	if !(amount > 0) || math.IsInf(amount, 0) {
		return domain.Funding{}, domain.LoanRequest{}, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	network, err := resolveNetwork(network, s.defaultNetwork)
	if err != nil {
		return domain.Funding{}, domain.LoanRequest{}, err
	}

	loan, err := getRequest(ctx, s.repo, loanID)
	if err != nil {
		return domain.Funding{}, domain.LoanRequest{}, err
	}
	if err := checkFundable(loan, amount); err != nil {
		return domain.Funding{}, domain.LoanRequest{}, err
	}

	receipt, err := s.ledger.Submit(ctx, network, ledger.ActionFundLoan)
	if err != nil {
		return domain.Funding{}, domain.LoanRequest{}, fmt.Errorf("submit funding: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another lender may have funded while the transaction confirmed.
	loan, err = getRequest(ctx, s.repo, loanID)
	if err != nil {
		return domain.Funding{}, domain.LoanRequest{}, err
	}
	if err := checkFundable(loan, amount); err != nil {
		return domain.Funding{}, domain.LoanRequest{}, err
	}

	now := s.now().UTC()
	funding := domain.Funding{
		ID:             uuid.NewString(),
		LoanID:         loan.ID,
		Lender:         lender,
		Amount:         amount,
		ExpectedReturn: ComputeLenderReturn(amount, loan.AnnualRatePercent, loan.TermMonths).TotalReturn,
		Network:        network,
		TxHash:         receipt.TxHash,
		CreatedAt:      now,
	}
	if err := s.repo.AddFunding(ctx, funding); err != nil {
		return domain.Funding{}, domain.LoanRequest{}, fmt.Errorf("store funding: %w", err)
	}

	loan.FundedAmount += amount
	if remaining(loan) <= BalanceTolerance {
		loan.FundedAmount = loan.Amount
		loan.Status = domain.LoanFunded
		loan.FundedAt = &now

		if err := s.repo.SaveInstallments(ctx, scheduleInstallments(loan, now)); err != nil {
			return domain.Funding{}, domain.LoanRequest{}, fmt.Errorf("store installments: %w", err)
		}
	}
	if err := s.repo.UpdateRequest(ctx, loan); err != nil {
		return domain.Funding{}, domain.LoanRequest{}, fmt.Errorf("update loan: %w", err)
	}

	if err := s.publisher.Publish(ctx, messaging.Event{
		Type:       messaging.EventLoanFunded,
		LoanID:     loan.ID,
		Amount:     amount,
		TxHash:     receipt.TxHash,
		OccurredAt: now,
		Attributes: map[string]any{
			"lender":   lender,
			"progress": Progress(loan),
			"status":   string(loan.Status),
		},
	}); err != nil {
		s.logger.Warn("failed to publish event", zap.String("loan_id", loan.ID), zap.Error(err))
	}

	s.logger.Info("loan funded",
		zap.String("loan_id", loan.ID),
		zap.String("lender", lender),
		zap.Float64("amount", amount),
		zap.Int("progress", Progress(loan)),
	)
	return funding, loan, nil
}

func checkFundable(loan domain.LoanRequest, amount float64) error {
	if loan.Status != domain.LoanOpen {
		return fmt.Errorf("%w: %s is %s", ErrLoanNotOpen, loan.ID, loan.Status)
	}
	if left := remaining(loan); amount > left+BalanceTolerance {
		return fmt.Errorf("%w: %.2f left to fund", ErrOverFunded, left)
	}
	return nil
}

// scheduleInstallments turns the loan's amortization schedule into
// installments due monthly from fundedAt.
func scheduleInstallments(loan domain.LoanRequest, fundedAt time.Time) []domain.Installment {
	schedule, _ := ComputeSchedule(domain.LoanTerms{
		Principal:         loan.Amount,
		AnnualRatePercent: loan.AnnualRatePercent,
		TermMonths:        loan.TermMonths,
	})

	installments := make([]domain.Installment, 0, len(schedule))
	for _, line := range schedule {
		installments = append(installments, domain.Installment{
			LoanID:             loan.ID,
			Month:              line.Month,
			DueDate:            fundedAt.AddDate(0, line.Month, 0),
			Amount:             line.Payment,
			PrincipalComponent: line.PrincipalComponent,
			InterestComponent:  line.InterestComponent,
			Status:             domain.InstallmentUpcoming,
		})
	}
	return installments
}
