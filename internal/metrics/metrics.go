// Package metrics provides Prometheus counters and operation timing for the
// supervisor and generator processes.
//
// Each Monitor owns a private registry, so several monitors (one per test, or
// one per process) never collide on metric names.
//
// Example usage:
//
//	monitor := metrics.NewMonitor()
//	monitor.SetLogger(logger.Logger)
//	err := monitor.TrackOperation(ctx, "publish", func() error {
//		return ch.Publish(ctx, edges)
//	})
//	http.Handle("/metrics", monitor.Handler())
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor collects arcset metrics
type Monitor struct {
	logger   *slog.Logger
	registry *prometheus.Registry
	mu       sync.RWMutex

	operations map[string]*OperationMetrics

	CandidatesConsumed  prometheus.Counter
	Improvements        prometheus.Counter
	BestSolutionEdges   prometheus.Gauge
	CandidatesPublished prometheus.Counter
	CandidatesDropped   prometheus.Counter
	OperationDuration   *prometheus.HistogramVec
	OperationErrors     *prometheus.CounterVec
}

// OperationMetrics tracks metrics for specific operations
type OperationMetrics struct {
	Name            string        `json:"name"`
	Count           int64         `json:"count"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	Errors          int64         `json:"errors"`
}

// NewMonitor creates a monitor backed by a fresh registry
func NewMonitor() *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry:   reg,
		operations: make(map[string]*OperationMetrics),

		CandidatesConsumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "arcset_candidates_consumed_total",
			Help: "Total number of candidate solutions taken from the channel",
		}),
		Improvements: factory.NewCounter(prometheus.CounterOpts{
			Name: "arcset_improvements_total",
			Help: "Total number of strict improvements of the best solution",
		}),
		BestSolutionEdges: factory.NewGauge(prometheus.GaugeOpts{
			Name: "arcset_best_solution_edges",
			Help: "Edge count of the best solution seen so far",
		}),
		CandidatesPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "arcset_candidates_published_total",
			Help: "Total number of candidate solutions placed into the channel",
		}),
		CandidatesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "arcset_candidates_dropped_total",
			Help: "Total number of candidates too large for a channel slot",
		}),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arcset_operation_duration_seconds",
				Help:    "Duration of channel and search operations in seconds",
				Buckets: []float64{.00001, .0001, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"operation"},
		),
		OperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arcset_operation_errors_total",
				Help: "Total number of failed operations",
			},
			[]string{"operation"},
		),
	}
}

// SetLogger sets the logger for metrics output
func (m *Monitor) SetLogger(logger *slog.Logger) {
	m.logger = logger.With(slog.String("component", "metrics"))
}

// Registry returns the registry holding this monitor's collectors
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the registry
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TrackOperation tracks the execution of an operation
func (m *Monitor) TrackOperation(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	m.recordOperation(operation, duration, err == nil)

	if m.logger != nil && err != nil {
		m.logger.LogAttrs(ctx, slog.LevelDebug, "Operation failed",
			slog.String("operation", operation),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
	}

	return err
}

// recordOperation records operation metrics
func (m *Monitor) recordOperation(name string, duration time.Duration, success bool) {
	m.OperationDuration.WithLabelValues(name).Observe(duration.Seconds())
	if !success {
		m.OperationErrors.WithLabelValues(name).Inc()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	metrics, exists := m.operations[name]
	if !exists {
		metrics = &OperationMetrics{Name: name}
		m.operations[name] = metrics
	}

	metrics.Count++
	metrics.TotalDuration += duration
	if duration > metrics.MaxDuration {
		metrics.MaxDuration = duration
	}
	metrics.AverageDuration = time.Duration(int64(metrics.TotalDuration) / metrics.Count)
	if !success {
		metrics.Errors++
	}
}

// GetOperationMetrics returns a copy of the metrics for an operation
func (m *Monitor) GetOperationMetrics(operation string) *OperationMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if metrics, exists := m.operations[operation]; exists {
		copy := *metrics
		return &copy
	}
	return nil
}

// LogMetricsSummary logs a summary of all tracked operations
func (m *Monitor) LogMetricsSummary(ctx context.Context) {
	if m.logger == nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, op := range m.operations {
		m.logger.LogAttrs(ctx, slog.LevelInfo, "Operation summary",
			slog.String("operation", name),
			slog.Int64("count", op.Count),
			slog.Int64("errors", op.Errors),
			slog.Duration("average_duration", op.AverageDuration),
			slog.Duration("max_duration", op.MaxDuration),
		)
	}
}
