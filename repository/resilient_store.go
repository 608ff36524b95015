package repository

import (
	"context"
	"errors"
	"time"

	"microlend/logging"
	"microlend/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval clears the closed-state counts; zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpTimeout bounds every store operation; zero disables it.
	OpTimeout time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         3,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		OpTimeout:           time.Second,
	}
}

// ResilientStore guards a KeyValueStore with a circuit breaker and a per
// operation timeout. A missing key counts as success.
type ResilientStore struct {
	name      string
	store     KeyValueStore
	cb        *gobreaker.CircuitBreaker
	opTimeout time.Duration
	metrics   metrics.Collector
	logger    *logging.Logger
}

func NewResilientStore(name string, store KeyValueStore, cfg BreakerConfig, collector metrics.Collector) *ResilientStore {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	rs := &ResilientStore{
		name:      name,
		store:     store,
		opTimeout: cfg.OpTimeout,
		metrics:   collector,
		logger:    logging.L().Named("store").Named(name),
	}

	rs.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			rs.logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			rs.metrics.RecordCircuitState(name, circuitState(to))
		},
	})
	return rs
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

func (rs *ResilientStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if rs.opTimeout > 0 {
		return context.WithTimeout(ctx, rs.opTimeout)
	}
	return ctx, func() {}
}

func (rs *ResilientStore) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrStoreUnavailable
	}
	return err
}

func (rs *ResilientStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := rs.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	result, err := rs.cb.Execute(func() (interface{}, error) {
		return rs.store.Get(ctx, key)
	})
	rs.metrics.RecordStoreLookup(rs.name, err == nil, time.Since(start))

	if err != nil {
		return "", rs.translate(err)
	}
	return result.(string), nil
}

func (rs *ResilientStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := rs.withTimeout(ctx)
	defer cancel()

	_, err := rs.cb.Execute(func() (interface{}, error) {
		return nil, rs.store.Set(ctx, key, value, ttl)
	})
	return rs.translate(err)
}

func (rs *ResilientStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := rs.withTimeout(ctx)
	defer cancel()

	_, err := rs.cb.Execute(func() (interface{}, error) {
		return nil, rs.store.Delete(ctx, key)
	})
	return rs.translate(err)
}

// State reports the current breaker state.
func (rs *ResilientStore) State() metrics.CircuitState {
	return circuitState(rs.cb.State())
}
