package domain

import "time"

type InstallmentStatus string

const (
	InstallmentUpcoming InstallmentStatus = "upcoming"
	InstallmentOverdue  InstallmentStatus = "overdue"
	InstallmentPaid     InstallmentStatus = "paid"
)

// Installment is one scheduled repayment of a funded loan.
type Installment struct {
	LoanID             string
	Month              int
	DueDate            time.Time
	Amount             float64
	PrincipalComponent float64
	InterestComponent  float64
	Status             InstallmentStatus
	PaidAt             *time.Time
	TxHash             string
}

type RepaymentStats struct {
	TotalPaid        float64
	RemainingBalance float64
	NextPayment      float64
	NextPaymentDate  *time.Time
	OverdueAmount    float64
	PaidCount        int
	RemainingCount   int
	OverdueCount     int
	ProgressPercent  int
}

type PaymentQuote struct {
	LoanID      string
	Month       int
	Amount      float64
	LateFee     float64
	GasEstimate float64
	GasToken    string
	FinalAmount float64
}
