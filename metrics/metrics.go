package metrics

import "time"

// Collector records service-level measurements. Implementations export them
// to a backend such as Prometheus.
type Collector interface {
	RecordCalculation(kind string, duration time.Duration)
	RecordStoreLookup(store string, hit bool, duration time.Duration)
	RecordCircuitState(store string, state CircuitState)
	RecordLedgerSubmission(network, action string, success bool, duration time.Duration)
}

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards every measurement.
type NoOpCollector struct{}

func (NoOpCollector) RecordCalculation(string, time.Duration)                    {}
func (NoOpCollector) RecordStoreLookup(string, bool, time.Duration)              {}
func (NoOpCollector) RecordCircuitState(string, CircuitState)                    {}
func (NoOpCollector) RecordLedgerSubmission(string, string, bool, time.Duration) {}
