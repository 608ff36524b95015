package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"microlend/domain"
	"microlend/ledger"
	"microlend/logging"
	"microlend/messaging"
	"microlend/repository"

	"go.uber.org/zap"
)

type RepaymentService struct {
	repo           repository.LoanRepository
	ledger         ledger.Submitter
	publisher      messaging.Publisher
	defaultNetwork string
	logger         *logging.Logger

	mu sync.Mutex
}

func NewRepaymentService(
	repo repository.LoanRepository,
	submitter ledger.Submitter,
	publisher messaging.Publisher,
	defaultNetwork string,
) *RepaymentService {
	return &RepaymentService{
		repo:           repo,
		ledger:         submitter,
		publisher:      publisher,
		defaultNetwork: defaultNetwork,
		logger:         logging.L().Named("repayment"),
	}
}

// installmentStatus derives the status of an installment at now.
func installmentStatus(inst domain.Installment, now time.Time) domain.InstallmentStatus {
	switch {
	case inst.PaidAt != nil:
		return domain.InstallmentPaid
	case inst.DueDate.Before(now):
		return domain.InstallmentOverdue
	default:
		return domain.InstallmentUpcoming
	}
}

// Installments returns the loan's installments in month order with their
// status as of now.
func (s *RepaymentService) Installments(ctx context.Context, loanID string, now time.Time) ([]domain.Installment, error) {
	loan, err := getRequest(ctx, s.repo, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status == domain.LoanOpen {
		return nil, fmt.Errorf("%w: %s", ErrLoanNotFunded, loan.ID)
	}

	installments, err := s.repo.ListInstallments(ctx, loan.ID)
	if err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	for i := range installments {
		installments[i].Status = installmentStatus(installments[i], now)
	}
	return installments, nil
}

// Stats summarises installments whose status is already derived.
func Stats(installments []domain.Installment) domain.RepaymentStats {
	var stats domain.RepaymentStats
	for i := range installments {
		inst := installments[i]
		switch inst.Status {
		case domain.InstallmentPaid:
			stats.TotalPaid += inst.Amount
			stats.PaidCount++
			continue
		case domain.InstallmentOverdue:
			stats.OverdueAmount += inst.Amount
			stats.OverdueCount++
		case domain.InstallmentUpcoming:
			if stats.NextPaymentDate == nil {
				due := inst.DueDate
				stats.NextPayment = inst.Amount
				stats.NextPaymentDate = &due
			}
		}
		stats.RemainingBalance += inst.Amount
		stats.RemainingCount++
	}

	if total := stats.TotalPaid + stats.RemainingBalance; total > 0 {
		stats.ProgressPercent = int(math.Round(stats.TotalPaid / total * 100))
	}
	return stats
}

func (s *RepaymentService) installment(
	ctx context.Context,
	loanID string,
	month int,
	now time.Time,
) (domain.LoanRequest, domain.Installment, []domain.Installment, error) {
	loan, err := getRequest(ctx, s.repo, loanID)
	if err != nil {
		return domain.LoanRequest{}, domain.Installment{}, nil, err
	}
	installments, err := s.Installments(ctx, loanID, now)
	if err != nil {
		return domain.LoanRequest{}, domain.Installment{}, nil, err
	}
	for _, inst := range installments {
		if inst.Month == month {
			return loan, inst, installments, nil
		}
	}
	return domain.LoanRequest{}, domain.Installment{}, nil,
		fmt.Errorf("installment %d of %s: %w", month, loanID, ErrNotFound)
}

func quoteFor(inst domain.Installment, network ledger.Network) domain.PaymentQuote {
	q := domain.PaymentQuote{
		LoanID:      inst.LoanID,
		Month:       inst.Month,
		Amount:      inst.Amount,
		GasEstimate: network.GasPerTx,
		GasToken:    network.GasToken,
	}
	if inst.Status == domain.InstallmentOverdue {
		q.LateFee = inst.Amount * LateFeeRate
	}
	q.FinalAmount = q.Amount + q.LateFee
	return q
}

// Quote prices paying one installment on network. Gas is quoted in the
// network token and is not part of FinalAmount.
func (s *RepaymentService) Quote(
	ctx context.Context,
	loanID string,
	month int,
	networkID string,
	now time.Time,
) (domain.PaymentQuote, error) {
	network, err := s.lookupNetwork(networkID)
	if err != nil {
		return domain.PaymentQuote{}, err
	}
	_, inst, _, err := s.installment(ctx, loanID, month, now)
	if err != nil {
		return domain.PaymentQuote{}, err
	}
	if inst.Status == domain.InstallmentPaid {
		return domain.PaymentQuote{}, fmt.Errorf("%w: month %d", ErrAlreadyPaid, month)
	}
	return quoteFor(inst, network), nil
}

// Pay settles one installment from a wallet holding walletBalance. Once
// every installment is paid the loan is marked repaid.
func (s *RepaymentService) Pay(
	ctx context.Context,
	loanID string,
	month int,
	networkID string,
	walletBalance float64,
	now time.Time,
) (domain.Installment, domain.PaymentQuote, error) {
	network, err := s.lookupNetwork(networkID)
	if err != nil {
		return domain.Installment{}, domain.PaymentQuote{}, err
	}

	if _, _, _, _, err := s.payable(ctx, loanID, month, network, walletBalance, now); err != nil {
		return domain.Installment{}, domain.PaymentQuote{}, err
	}

	receipt, err := s.ledger.Submit(ctx, network.ID, ledger.ActionRepayInstallment)
	if err != nil {
		return domain.Installment{}, domain.PaymentQuote{}, fmt.Errorf("submit repayment: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A concurrent payment may have settled the installment while the
	// transaction confirmed.
	loan, inst, installments, quote, err := s.payable(ctx, loanID, month, network, walletBalance, now)
	if err != nil {
		return domain.Installment{}, domain.PaymentQuote{}, err
	}

	paidAt := receipt.ConfirmedAt
	inst.PaidAt = &paidAt
	inst.TxHash = receipt.TxHash
	inst.Status = domain.InstallmentPaid
	if err := s.repo.UpdateInstallment(ctx, inst); err != nil {
		return domain.Installment{}, domain.PaymentQuote{}, fmt.Errorf("update installment: %w", err)
	}

	allPaid := true
	for _, other := range installments {
		if other.Month != inst.Month && other.Status != domain.InstallmentPaid {
			allPaid = false
			break
		}
	}
	if allPaid {
		loan.Status = domain.LoanRepaid
		if err := s.repo.UpdateRequest(ctx, loan); err != nil {
			return domain.Installment{}, domain.PaymentQuote{}, fmt.Errorf("update loan: %w", err)
		}
	}

	if err := s.publisher.Publish(ctx, messaging.Event{
		Type:       messaging.EventLoanRepaid,
		LoanID:     loan.ID,
		Amount:     quote.FinalAmount,
		TxHash:     receipt.TxHash,
		OccurredAt: paidAt,
		Attributes: map[string]any{
			"month":    inst.Month,
			"late_fee": quote.LateFee,
			"repaid":   allPaid,
		},
	}); err != nil {
		s.logger.Warn("failed to publish event", zap.String("loan_id", loan.ID), zap.Error(err))
	}

	s.logger.Info("installment paid",
		zap.String("loan_id", loan.ID),
		zap.Int("month", inst.Month),
		zap.Float64("amount", quote.FinalAmount),
		zap.Bool("loan_repaid", allPaid),
	)
	return inst, quote, nil
}

// payable checks that month of loanID is unpaid and that walletBalance
// covers its quote on network.
func (s *RepaymentService) payable(
	ctx context.Context,
	loanID string,
	month int,
	network ledger.Network,
	walletBalance float64,
	now time.Time,
) (domain.LoanRequest, domain.Installment, []domain.Installment, domain.PaymentQuote, error) {
	loan, inst, installments, err := s.installment(ctx, loanID, month, now)
	if err != nil {
		return domain.LoanRequest{}, domain.Installment{}, nil, domain.PaymentQuote{}, err
	}
	if inst.Status == domain.InstallmentPaid {
		return domain.LoanRequest{}, domain.Installment{}, nil, domain.PaymentQuote{},
			fmt.Errorf("%w: month %d", ErrAlreadyPaid, month)
	}

	quote := quoteFor(inst, network)
	if walletBalance < quote.FinalAmount {
		return domain.LoanRequest{}, domain.Installment{}, nil, domain.PaymentQuote{},
			fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientBalance, quote.FinalAmount, walletBalance)
	}
	return loan, inst, installments, quote, nil
}

func (s *RepaymentService) lookupNetwork(networkID string) (ledger.Network, error) {
	id, err := resolveNetwork(networkID, s.defaultNetwork)
	if err != nil {
		return ledger.Network{}, err
	}
	return ledger.LookupNetwork(id)
}
