package domain

import "time"

type LoanStatus string

const (
	LoanOpen   LoanStatus = "open"
	LoanFunded LoanStatus = "funded"
	LoanRepaid LoanStatus = "repaid"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Document is the metadata of an uploaded supporting document. The content
// itself lives in external storage and is referenced by its content hash.
type Document struct {
	Name        string
	ContentHash string
	SizeBytes   int64
}

// Draft is the loan request wizard state as entered so far. Numeric fields
// stay zero until the borrower fills them in.
type Draft struct {
	Amount                float64
	Purpose               string
	TermMonths            int
	BusinessName          string
	BusinessType          string
	Industry              string
	EmployeeCount         string
	YearsInBusiness       *float64
	MonthlyRevenue        *float64
	BusinessDescription   string
	HasLicenses           bool
	HasBankAccount        bool
	HasLoanExperience     bool
	ConsentToVerification bool
	Documents             []Document
	UpdatedAt             time.Time
}

type LoanRequest struct {
	ID                string
	Borrower          string
	Amount            float64
	Purpose           string
	TermMonths        int
	AnnualRatePercent float64
	BusinessName      string
	Risk              RiskLevel
	Summary           ScheduleSummary
	FundedAmount      float64
	Status            LoanStatus
	Network           string
	TxHash            string
	CreatedAt         time.Time
	FundedAt          *time.Time
}

type Funding struct {
	ID             string
	LoanID         string
	Lender         string
	Amount         float64
	ExpectedReturn float64
	Network        string
	TxHash         string
	CreatedAt      time.Time
}
