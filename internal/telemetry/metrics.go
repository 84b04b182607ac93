package telemetry

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/storecredit/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "storecredit"
	metricsSubsystem = "ledger"
	kindLabelNone    = "none"
)

// Metrics counts ledger operations and their latency.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewMetrics registers the ledger collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		return nil, fmt.Errorf("metrics: registerer is nil")
	}
	metrics := &Metrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "operations_total",
				Help:      "Ledger mutations by operation, status and error kind.",
			},
			[]string{"operation", "status", "kind"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "operation_duration_seconds",
				Help:      "Time spent in a ledger mutation, lock wait included.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	for _, collector := range []prometheus.Collector{metrics.operationsTotal, metrics.operationDuration} {
		if err := registerer.Register(collector); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}
	return metrics, nil
}

// LogOperation implements ledger.OperationLogger.
func (metrics *Metrics) LogOperation(_ context.Context, entry ledger.OperationLog) {
	kind := string(entry.Kind)
	if entry.Kind == ledger.KindNone {
		kind = kindLabelNone
	}
	metrics.operationsTotal.WithLabelValues(entry.Operation, entry.Status, kind).Inc()
	metrics.operationDuration.WithLabelValues(entry.Operation).Observe(entry.Duration.Seconds())
}
