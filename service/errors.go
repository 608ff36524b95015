package service

import "errors"

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidRate         = errors.New("invalid interest rate")
	ErrInvalidTerm         = errors.New("invalid term")
	ErrInvalidNetwork      = errors.New("unsupported network")
	ErrInvalidPreference   = errors.New("invalid term preference")
	ErrInvalidStrategy     = errors.New("invalid payoff strategy")
	ErrInvalidPlan         = errors.New("invalid payoff plan")
	ErrNoViableTerm        = errors.New("no term satisfies the requested limits")
	ErrIncompleteRequest   = errors.New("loan request is incomplete")
	ErrMissingAccount      = errors.New("account is required")
	ErrNotFound            = errors.New("not found")
	ErrLoanNotOpen         = errors.New("loan is not open for funding")
	ErrLoanNotFunded       = errors.New("loan has no repayment schedule")
	ErrOverFunded          = errors.New("amount exceeds remaining funding target")
	ErrAlreadyPaid         = errors.New("installment already paid")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
)

// IsValidation reports whether err is caused by bad caller input.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrInvalidRate, ErrInvalidTerm, ErrInvalidNetwork,
		ErrInvalidPreference, ErrInvalidStrategy, ErrInvalidPlan,
		ErrNoViableTerm, ErrIncompleteRequest, ErrMissingAccount, ErrInsufficientBalance,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict reports whether err is caused by the current state of a loan.
func IsConflict(err error) bool {
	return errors.Is(err, ErrLoanNotOpen) ||
		errors.Is(err, ErrLoanNotFunded) ||
		errors.Is(err, ErrOverFunded) ||
		errors.Is(err, ErrAlreadyPaid)
}
