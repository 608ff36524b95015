package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"microlend/domain"
)

type savedQuote struct {
	terms   domain.LoanTerms
	summary domain.ScheduleSummary
}

// LoanRepositoryMemory is an in-memory implementation of LoanRepository.
type LoanRepositoryMemory struct {
	mu           sync.RWMutex
	quotes       []savedQuote
	requests     map[string]domain.LoanRequest
	fundings     map[string][]domain.Funding
	installments map[string][]domain.Installment
}

func NewLoanRepositoryMemory() *LoanRepositoryMemory {
	return &LoanRepositoryMemory{
		requests:     make(map[string]domain.LoanRequest),
		fundings:     make(map[string][]domain.Funding),
		installments: make(map[string][]domain.Installment),
	}
}

func (r *LoanRepositoryMemory) SaveQuote(_ context.Context, terms domain.LoanTerms, summary domain.ScheduleSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes = append(r.quotes, savedQuote{terms: terms, summary: summary})
	return nil
}

// QuoteCount returns the number of saved quotes.
func (r *LoanRepositoryMemory) QuoteCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.quotes)
}

func (r *LoanRepositoryMemory) CreateRequest(_ context.Context, req domain.LoanRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; ok {
		return fmt.Errorf("loan request %s: %w", req.ID, ErrAlreadyExists)
	}
	r.requests[req.ID] = req
	return nil
}

func (r *LoanRepositoryMemory) GetRequest(_ context.Context, id string) (domain.LoanRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return domain.LoanRequest{}, ErrNotFound
	}
	return req, nil
}

// ListRequests returns requests newest first.
func (r *LoanRepositoryMemory) ListRequests(_ context.Context) ([]domain.LoanRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.LoanRequest, 0, len(r.requests))
	for _, req := range r.requests {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *LoanRepositoryMemory) UpdateRequest(_ context.Context, req domain.LoanRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; !ok {
		return ErrNotFound
	}
	r.requests[req.ID] = req
	return nil
}

func (r *LoanRepositoryMemory) AddFunding(_ context.Context, funding domain.Funding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fundings[funding.LoanID] = append(r.fundings[funding.LoanID], funding)
	return nil
}

func (r *LoanRepositoryMemory) ListFundings(_ context.Context, loanID string) ([]domain.Funding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Funding(nil), r.fundings[loanID]...), nil
}

func (r *LoanRepositoryMemory) SaveInstallments(_ context.Context, installments []domain.Installment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range installments {
		r.installments[inst.LoanID] = append(r.installments[inst.LoanID], inst)
	}
	return nil
}

func (r *LoanRepositoryMemory) ListInstallments(_ context.Context, loanID string) ([]domain.Installment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]domain.Installment(nil), r.installments[loanID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (r *LoanRepositoryMemory) UpdateInstallment(_ context.Context, installment domain.Installment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.installments[installment.LoanID]
	for i := range list {
		if list[i].Month == installment.Month {
			list[i] = installment
			return nil
		}
	}
	return ErrNotFound
}
