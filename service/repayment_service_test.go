package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"microlend/domain"
	"microlend/ledger"
	"microlend/messaging"
)

// Between the first due date (April 15) and the second (May 15).
var afterFirstDue = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func TestInstallments_DerivedStatus(t *testing.T) {
	f := newMarketplaceFixture()
	loan := f.fundedLoan(t)

	installments, err := f.repayment.Installments(context.Background(), loan.ID, afterFirstDue)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if installments[0].Status != domain.InstallmentOverdue {
		t.Errorf("expected month 1 overdue, got %s", installments[0].Status)
	}
	for _, inst := range installments[1:] {
		if inst.Status != domain.InstallmentUpcoming {
			t.Errorf("expected month %d upcoming, got %s", inst.Month, inst.Status)
		}
	}
}

func TestInstallments_OpenLoan(t *testing.T) {
	f := newMarketplaceFixture()
	loan := f.openLoan(t)

	if _, err := f.repayment.Installments(context.Background(), loan.ID, afterFirstDue); !errors.Is(err, ErrLoanNotFunded) {
		t.Errorf("expected ErrLoanNotFunded, got %v", err)
	}
}

func TestStats(t *testing.T) {
	may := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)
	paidAt := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	installments := []domain.Installment{
		{Month: 1, Amount: 100, Status: domain.InstallmentPaid, PaidAt: &paidAt},
		{Month: 2, Amount: 100, Status: domain.InstallmentOverdue},
		{Month: 3, Amount: 100, Status: domain.InstallmentUpcoming, DueDate: may},
		{Month: 4, Amount: 100, Status: domain.InstallmentUpcoming, DueDate: may.AddDate(0, 1, 0)},
	}

	stats := Stats(installments)

	if stats.TotalPaid != 100 || stats.PaidCount != 1 {
		t.Errorf("unexpected paid figures: %+v", stats)
	}
	if stats.RemainingBalance != 300 || stats.RemainingCount != 3 {
		t.Errorf("unexpected remaining figures: %+v", stats)
	}
	if stats.OverdueAmount != 100 || stats.OverdueCount != 1 {
		t.Errorf("unexpected overdue figures: %+v", stats)
	}
	if stats.NextPayment != 100 || stats.NextPaymentDate == nil || !stats.NextPaymentDate.Equal(may) {
		t.Errorf("unexpected next payment: %+v", stats)
	}
	if stats.ProgressPercent != 25 {
		t.Errorf("expected 25%%, got %d", stats.ProgressPercent)
	}

	if empty := Stats(nil); empty != (domain.RepaymentStats{}) {
		t.Errorf("expected zero stats, got %+v", empty)
	}
}

func TestQuote_LateFee(t *testing.T) {
	f := newMarketplaceFixture()
	ctx := context.Background()
	loan := f.fundedLoan(t)

	overdue, err := f.repayment.Quote(ctx, loan.ID, 1, "solana", afterFirstDue)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantFee := loan.Summary.MonthlyPayment * LateFeeRate
	if math.Abs(overdue.LateFee-wantFee) > 1e-9 {
		t.Errorf("expected late fee %.4f, got %.4f", wantFee, overdue.LateFee)
	}
	if math.Abs(overdue.FinalAmount-(overdue.Amount+overdue.LateFee)) > 1e-9 {
		t.Errorf("final amount %.4f does not add up", overdue.FinalAmount)
	}
	if overdue.GasToken != "SOL" || overdue.GasEstimate != 0.0001 {
		t.Errorf("unexpected gas quote %s %.4f", overdue.GasToken, overdue.GasEstimate)
	}

	upcoming, err := f.repayment.Quote(ctx, loan.ID, 2, "ethereum", afterFirstDue)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upcoming.LateFee != 0 || upcoming.FinalAmount != upcoming.Amount {
		t.Errorf("expected no late fee, got %+v", upcoming)
	}
	if upcoming.GasToken != "ETH" {
		t.Errorf("expected ETH gas, got %s", upcoming.GasToken)
	}

	if _, err := f.repayment.Quote(ctx, loan.ID, 99, "solana", afterFirstDue); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.repayment.Quote(ctx, loan.ID, 1, "tron", afterFirstDue); !errors.Is(err, ErrInvalidNetwork) {
		t.Errorf("expected ErrInvalidNetwork, got %v", err)
	}
}

func TestPay(t *testing.T) {
	f := newMarketplaceFixture()
	ctx := context.Background()
	loan := f.fundedLoan(t)
	due := loan.Summary.MonthlyPayment * (1 + LateFeeRate)

	// Enough for the installment but not the late fee.
	_, _, err := f.repayment.Pay(ctx, loan.ID, 1, "solana", loan.Summary.MonthlyPayment, afterFirstDue)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	inst, quote, err := f.repayment.Pay(ctx, loan.ID, 1, "solana", due+1, afterFirstDue)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.Status != domain.InstallmentPaid || inst.PaidAt == nil || inst.TxHash == "" {
		t.Errorf("expected paid installment with receipt, got %+v", inst)
	}
	if quote.LateFee == 0 {
		t.Errorf("expected late fee on overdue installment")
	}

	_, _, err = f.repayment.Pay(ctx, loan.ID, 1, "solana", due+1, afterFirstDue)
	if !errors.Is(err, ErrAlreadyPaid) || !IsConflict(err) {
		t.Errorf("expected ErrAlreadyPaid conflict, got %v", err)
	}

	installments, err := f.repayment.Installments(ctx, loan.ID, afterFirstDue)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats := Stats(installments)
	if stats.PaidCount != 1 || stats.OverdueCount != 0 {
		t.Errorf("unexpected stats after payment: %+v", stats)
	}
}

func TestPay_LastInstallmentRepaysLoan(t *testing.T) {
	f := newMarketplaceFixture()
	ctx := context.Background()
	loan := f.fundedLoan(t)

	for month := 1; month <= loan.TermMonths; month++ {
		if _, _, err := f.repayment.Pay(ctx, loan.ID, month, "solana", 1e6, fixedNow); err != nil {
			t.Fatalf("month %d: unexpected error: %v", month, err)
		}
		stored, err := f.service.Get(ctx, loan.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		wantStatus := domain.LoanFunded
		if month == loan.TermMonths {
			wantStatus = domain.LoanRepaid
		}
		if stored.Status != wantStatus {
			t.Fatalf("month %d: expected %s, got %s", month, wantStatus, stored.Status)
		}
	}

	installments, err := f.repayment.Installments(ctx, loan.ID, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats := Stats(installments)
	if stats.ProgressPercent != 100 || stats.RemainingCount != 0 {
		t.Errorf("expected fully repaid stats, got %+v", stats)
	}

	types := f.publisher.types()
	if last := types[len(types)-1]; last != messaging.EventLoanRepaid {
		t.Errorf("expected loan.repaid last, got %s", last)
	}
}

// gatedSubmitter blocks every submission until release is closed, reporting
// each arrival on entered.
type gatedSubmitter struct {
	entered chan struct{}
	release chan struct{}
	count   atomic.Int64
}

func newGatedSubmitter() *gatedSubmitter {
	return &gatedSubmitter{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gatedSubmitter) Submit(ctx context.Context, networkID string, action ledger.Action) (ledger.Receipt, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return ledger.Receipt{}, ctx.Err()
	}
	return ledger.Receipt{
		TxHash:      fmt.Sprintf("0x%d", g.count.Add(1)),
		Network:     networkID,
		Action:      action,
		ConfirmedAt: fixedNow,
	}, nil
}

func (g *gatedSubmitter) waitEntered(t *testing.T, n int) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-g.entered:
		case <-timeout:
			t.Fatalf("only %d of %d submissions reached the ledger", i, n)
		}
	}
}

func TestPay_LedgerSubmissionsOverlap(t *testing.T) {
	f := newMarketplaceFixture()
	first, second := f.fundedLoan(t), f.fundedLoan(t)

	gate := newGatedSubmitter()
	f.repayment.ledger = gate

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, _, errs[i] = f.repayment.Pay(context.Background(), id, 1, "solana", 1e6, fixedNow)
		}(i, id)
	}

	gate.waitEntered(t, 2)
	close(gate.release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("payment %d: unexpected error: %v", i, err)
		}
	}
}

func TestPay_ConcurrentSameInstallment(t *testing.T) {
	f := newMarketplaceFixture()
	loan := f.fundedLoan(t)

	gate := newGatedSubmitter()
	f.repayment.ledger = gate

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = f.repayment.Pay(context.Background(), loan.ID, 1, "solana", 1e6, fixedNow)
		}(i)
	}

	gate.waitEntered(t, 2)
	close(gate.release)
	wg.Wait()

	var paid, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			paid++
		case errors.Is(err, ErrAlreadyPaid):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if paid != 1 || conflicts != 1 {
		t.Errorf("expected one payment and one conflict, got %d and %d", paid, conflicts)
	}

	installments, err := f.repayment.Installments(context.Background(), loan.ID, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats := Stats(installments); stats.PaidCount != 1 {
		t.Errorf("expected exactly one paid installment, got %d", stats.PaidCount)
	}
}
