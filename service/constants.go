package service

const (
	MinLoanAmount   = 100.0
	MaxLoanAmount   = 1_000_000_000.0
	MaxInterestRate = 1000.0 // percent per year
	MaxTermMonths   = 600
	MinTermMonths   = 1

	// DefaultMarketplaceRate is the APR applied to new loan requests.
	DefaultMarketplaceRate = 12.5

	MaxLoansPerPlan   = 50
	MaxPayoffMonths   = 600
	BalanceTolerance  = 0.01
	MinDocuments      = 3
	MinDescriptionLen = 50
	LateFeeRate       = 0.05
)

// OfferedTerms are the repayment terms a borrower can choose from.
var OfferedTerms = []int{3, 6, 12, 18, 24}

// LoanPurposes are the accepted values of a loan request purpose.
var LoanPurposes = []string{
	"inventory",
	"equipment",
	"expansion",
	"working-capital",
	"marketing",
	"technology",
	"other",
}

func isOfferedTerm(term int) bool {
	for _, t := range OfferedTerms {
		if t == term {
			return true
		}
	}
	return false
}

func isLoanPurpose(purpose string) bool {
	for _, p := range LoanPurposes {
		if p == purpose {
			return true
		}
	}
	return false
}
