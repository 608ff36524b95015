package messaging

import (
	"context"
	"time"
)

type EventType string

const (
	EventLoanRequested EventType = "loan.requested"
	EventLoanFunded    EventType = "loan.funded"
	EventLoanRepaid    EventType = "loan.repaid"
)

// Event is a loan lifecycle notification.
type Event struct {
	Type       EventType      `json:"type"`
	LoanID     string         `json:"loan_id"`
	Amount     float64        `json:"amount"`
	TxHash     string         `json:"tx_hash,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
