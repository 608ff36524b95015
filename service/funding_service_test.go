package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"microlend/domain"
	"microlend/ledger"
)

type marketplaceFixture struct {
	requestFixture
	funding   *FundingService
	repayment *RepaymentService
}

func newMarketplaceFixture() marketplaceFixture {
	f := newRequestFixture()
	submitter := ledger.NewSimulator(0, nil)

	funding := NewFundingService(f.repo, submitter, f.publisher, "solana")
	funding.now = func() time.Time { return fixedNow }

	return marketplaceFixture{
		requestFixture: f,
		funding:        funding,
		repayment:      NewRepaymentService(f.repo, submitter, f.publisher, "solana"),
	}
}

func (f marketplaceFixture) openLoan(t *testing.T) domain.LoanRequest {
	t.Helper()
	req, err := f.service.Submit(context.Background(), "alice", completeDraft(), "solana")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return req
}

func (f marketplaceFixture) fundedLoan(t *testing.T) domain.LoanRequest {
	t.Helper()
	req := f.openLoan(t)
	_, loan, err := f.funding.Fund(context.Background(), req.ID, "lender-1", req.Amount, "solana")
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	return loan
}

func TestFundingPreview(t *testing.T) {
	f := newMarketplaceFixture()
	loan := f.openLoan(t)

	got, err := f.funding.Preview(context.Background(), loan.ID, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ComputeLenderReturn(1000, loan.AnnualRatePercent, loan.TermMonths)
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}

	if _, err := f.funding.Preview(context.Background(), loan.ID, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := f.funding.Preview(context.Background(), "LOAN-0", 100); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFund_PartialThenFull(t *testing.T) {
	f := newMarketplaceFixture()
	ctx := context.Background()
	loan := f.openLoan(t)

	funding, loan, err := f.funding.Fund(ctx, loan.ID, "lender-1", 2000, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if funding.ID == "" || funding.TxHash == "" || funding.Network != "solana" {
		t.Errorf("incomplete funding record: %+v", funding)
	}
	if funding.ExpectedReturn != ComputeLenderReturn(2000, loan.AnnualRatePercent, loan.TermMonths).TotalReturn {
		t.Errorf("unexpected expected return %.2f", funding.ExpectedReturn)
	}
	if loan.Status != domain.LoanOpen || Progress(loan) != 40 {
		t.Errorf("expected open loan at 40%%, got %s at %d%%", loan.Status, Progress(loan))
	}
	if list, _ := f.repo.ListInstallments(ctx, loan.ID); len(list) != 0 {
		t.Errorf("expected no installments before full funding, got %d", len(list))
	}

	_, loan, err = f.funding.Fund(ctx, loan.ID, "lender-2", 3000, "ethereum")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loan.Status != domain.LoanFunded || Progress(loan) != 100 {
		t.Errorf("expected funded loan at 100%%, got %s at %d%%", loan.Status, Progress(loan))
	}
	if loan.FundedAt == nil || !loan.FundedAt.Equal(fixedNow) {
		t.Errorf("expected FundedAt %v, got %v", fixedNow, loan.FundedAt)
	}

	fundings, err := f.repo.ListFundings(ctx, loan.ID)
	if err != nil || len(fundings) != 2 {
		t.Fatalf("expected 2 fundings, got %d (%v)", len(fundings), err)
	}

	installments, err := f.repo.ListInstallments(ctx, loan.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(installments) != loan.TermMonths {
		t.Fatalf("expected %d installments, got %d", loan.TermMonths, len(installments))
	}
	if want := fixedNow.AddDate(0, 1, 0); !installments[0].DueDate.Equal(want) {
		t.Errorf("expected first due %v, got %v", want, installments[0].DueDate)
	}
	if installments[0].Amount != loan.Summary.MonthlyPayment {
		t.Errorf("expected installment %.4f, got %.4f", loan.Summary.MonthlyPayment, installments[0].Amount)
	}

	stored, err := f.service.Get(ctx, loan.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != domain.LoanFunded {
		t.Errorf("expected stored loan funded, got %s", stored.Status)
	}
}

func TestFund_Rejections(t *testing.T) {
	f := newMarketplaceFixture()
	ctx := context.Background()
	loan := f.openLoan(t)

	if _, _, err := f.funding.Fund(ctx, loan.ID, "lender-1", loan.Amount+1, "solana"); !errors.Is(err, ErrOverFunded) {
		t.Errorf("expected ErrOverFunded, got %v", err)
	}
	if _, _, err := f.funding.Fund(ctx, loan.ID, "lender-1", -5, "solana"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if _, _, err := f.funding.Fund(ctx, loan.ID, "", 100, "solana"); !errors.Is(err, ErrMissingAccount) {
		t.Errorf("expected ErrMissingAccount, got %v", err)
	}
	if _, _, err := f.funding.Fund(ctx, loan.ID, "lender-1", 100, "bitcoin"); !errors.Is(err, ErrInvalidNetwork) {
		t.Errorf("expected ErrInvalidNetwork, got %v", err)
	}
	if _, _, err := f.funding.Fund(ctx, "LOAN-0", "lender-1", 100, "solana"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, _, err := f.funding.Fund(ctx, loan.ID, "lender-1", loan.Amount, "solana"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, err := f.funding.Fund(ctx, loan.ID, "lender-2", 100, "solana")
	if !errors.Is(err, ErrLoanNotOpen) || !IsConflict(err) {
		t.Errorf("expected ErrLoanNotOpen conflict, got %v", err)
	}
}

func TestFund_CancelledLedgerSubmission(t *testing.T) {
	f := newMarketplaceFixture()
	loan := f.openLoan(t)
	f.funding.ledger = ledger.NewSimulator(time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := f.funding.Fund(ctx, loan.ID, "lender-1", 100, "solana"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	stored, _ := f.service.Get(context.Background(), loan.ID)
	if stored.FundedAmount != 0 {
		t.Errorf("expected nothing funded, got %.2f", stored.FundedAmount)
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		amount, funded float64
		want           int
	}{
		{5000, 0, 0},
		{5000, 1250, 25},
		{3000, 1000, 33},
		{5000, 5000, 100},
		{5000, 6000, 100},
		{0, 100, 0},
	}
	for _, tt := range tests {
		got := Progress(domain.LoanRequest{Amount: tt.amount, FundedAmount: tt.funded})
		if got != tt.want {
			t.Errorf("Progress(%.0f of %.0f) = %d, want %d", tt.funded, tt.amount, got, tt.want)
		}
	}
}
