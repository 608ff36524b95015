package prometheus

import (
	"time"

	"microlend/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements metrics.Collector on top of Prometheus vectors.
type Collector struct {
	calculations       *prometheus.CounterVec
	calculationLatency *prometheus.HistogramVec
	storeHits          *prometheus.CounterVec
	storeMisses        *prometheus.CounterVec
	storeLatency       *prometheus.HistogramVec
	circuitState       *prometheus.GaugeVec
	circuitOpens       *prometheus.CounterVec
	ledgerSubmissions  *prometheus.CounterVec
	ledgerLatency      *prometheus.HistogramVec
}

func NewCollector(namespace string) *Collector {
	return &Collector{
		calculations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calculations_total",
				Help:      "Number of loan calculations by kind",
			},
			[]string{"kind"},
		),
		calculationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "calculation_duration_seconds",
				Help:      "Loan calculation latency by kind",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"kind"},
		),
		storeHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_hits_total",
				Help:      "Key-value store lookups that found a value",
			},
			[]string{"store"},
		),
		storeMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_misses_total",
				Help:      "Key-value store lookups that found nothing or failed",
			},
			[]string{"store"},
		),
		storeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_lookup_duration_seconds",
				Help:      "Key-value store lookup latency",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
			},
			[]string{"store"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "store_circuit_state",
				Help:      "Circuit breaker state per store (0=closed, 1=open, 2=half-open)",
			},
			[]string{"store"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_circuit_opens_total",
				Help:      "Number of times a store circuit breaker opened",
			},
			[]string{"store"},
		),
		ledgerSubmissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_submissions_total",
				Help:      "Simulated ledger submissions by network, action and status",
			},
			[]string{"network", "action", "status"},
		),
		ledgerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_submission_duration_seconds",
				Help:      "Simulated ledger confirmation latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"network", "action"},
		),
	}
}

// Register adds every vector to the registry.
func (c *Collector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.calculations,
		c.calculationLatency,
		c.storeHits,
		c.storeMisses,
		c.storeLatency,
		c.circuitState,
		c.circuitOpens,
		c.ledgerSubmissions,
		c.ledgerLatency,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) RecordCalculation(kind string, duration time.Duration) {
	c.calculations.WithLabelValues(kind).Inc()
	c.calculationLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

func (c *Collector) RecordStoreLookup(store string, hit bool, duration time.Duration) {
	if hit {
		c.storeHits.WithLabelValues(store).Inc()
	} else {
		c.storeMisses.WithLabelValues(store).Inc()
	}
	c.storeLatency.WithLabelValues(store).Observe(duration.Seconds())
}

func (c *Collector) RecordCircuitState(store string, state metrics.CircuitState) {
	c.circuitState.WithLabelValues(store).Set(float64(state))
	if state == metrics.CircuitOpen {
		c.circuitOpens.WithLabelValues(store).Inc()
	}
}

func (c *Collector) RecordLedgerSubmission(network, action string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	c.ledgerSubmissions.WithLabelValues(network, action, status).Inc()
	c.ledgerLatency.WithLabelValues(network, action).Observe(duration.Seconds())
}
