package repository

import (
	"context"

	"microlend/domain"
)

type LoanRepository interface {
	// SaveQuote records a computed quote for later analysis.
	SaveQuote(ctx context.Context, terms domain.LoanTerms, summary domain.ScheduleSummary) error

	CreateRequest(ctx context.Context, req domain.LoanRequest) error
	GetRequest(ctx context.Context, id string) (domain.LoanRequest, error)
	ListRequests(ctx context.Context) ([]domain.LoanRequest, error)
	UpdateRequest(ctx context.Context, req domain.LoanRequest) error

	AddFunding(ctx context.Context, funding domain.Funding) error
	ListFundings(ctx context.Context, loanID string) ([]domain.Funding, error)

	SaveInstallments(ctx context.Context, installments []domain.Installment) error
	ListInstallments(ctx context.Context, loanID string) ([]domain.Installment, error)
	UpdateInstallment(ctx context.Context, installment domain.Installment) error
}
