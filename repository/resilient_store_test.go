package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"microlend/metrics"
)

type failingStore struct {
	err   error
	calls int
}

func (f *failingStore) Get(context.Context, string) (string, error) {
	f.calls++
	return "", f.err
}

func (f *failingStore) Set(context.Context, string, string, time.Duration) error {
	f.calls++
	return f.err
}

func (f *failingStore) Delete(context.Context, string) error {
	f.calls++
	return f.err
}

func testBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Timeout:             time.Hour,
		ConsecutiveFailures: 3,
	}
}

func TestResilientStore_PassesThrough(t *testing.T) {
	ctx := context.Background()
	rs := NewResilientStore("memory", NewMemoryStore(), testBreakerConfig(), nil)

	if err := rs.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := rs.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Fatalf("get = %q, %v", got, err)
	}
	if err := rs.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestResilientStore_NotFoundDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	inner := &failingStore{err: ErrNotFound}
	rs := NewResilientStore("nf", inner, testBreakerConfig(), nil)

	for i := 0; i < 10; i++ {
		if _, err := rs.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("attempt %d: expected ErrNotFound, got %v", i, err)
		}
	}
	if rs.State() != metrics.CircuitClosed {
		t.Fatalf("breaker state = %v, want closed", rs.State())
	}
}

func TestResilientStore_OpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	inner := &failingStore{err: errors.New("connection refused")}
	rs := NewResilientStore("flaky", inner, testBreakerConfig(), nil)

	for i := 0; i < 3; i++ {
		if err := rs.Set(ctx, "k", "v", 0); err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
	}

	if rs.State() != metrics.CircuitOpen {
		t.Fatalf("breaker state = %v, want open", rs.State())
	}

	callsBefore := inner.calls
	if _, err := rs.Get(ctx, "k"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if inner.calls != callsBefore {
		t.Error("open breaker must not reach the inner store")
	}
}
