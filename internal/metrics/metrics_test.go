package metrics

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMonitor tests monitor creation
func TestNewMonitor(t *testing.T) {
	monitor := NewMonitor()
	require.NotNil(t, monitor)
	assert.NotNil(t, monitor.operations)
	assert.NotNil(t, monitor.Registry())

	// Two monitors must not share collectors
	other := NewMonitor()
	monitor.CandidatesConsumed.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(monitor.CandidatesConsumed))
	assert.Equal(t, 0.0, testutil.ToFloat64(other.CandidatesConsumed))
}

// TestTrackOperation tests operation tracking
func TestTrackOperation(t *testing.T) {
	monitor := NewMonitor()

	err := monitor.TrackOperation(context.Background(), "publish", func() error {
		time.Sleep(2 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	metrics := monitor.GetOperationMetrics("publish")
	require.NotNil(t, metrics)
	assert.Equal(t, int64(1), metrics.Count)
	assert.Equal(t, int64(0), metrics.Errors)
	assert.Greater(t, metrics.TotalDuration, time.Duration(0))

	testErr := errors.New("test error")
	err = monitor.TrackOperation(context.Background(), "publish", func() error {
		return testErr
	})
	assert.Equal(t, testErr, err)

	metrics = monitor.GetOperationMetrics("publish")
	assert.Equal(t, int64(2), metrics.Count)
	assert.Equal(t, int64(1), metrics.Errors)
	assert.Equal(t, 1.0, testutil.ToFloat64(monitor.OperationErrors.WithLabelValues("publish")))

	assert.Nil(t, monitor.GetOperationMetrics("unknown"))
}

// TestTrackOperation_LogsFailures tests that failed operations are logged
func TestTrackOperation_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	monitor := NewMonitor()
	monitor.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	_ = monitor.TrackOperation(context.Background(), "consume", func() error {
		return errors.New("interrupted")
	})

	output := buf.String()
	assert.Contains(t, output, "operation=consume")
	assert.Contains(t, output, "component=metrics")
	assert.Contains(t, output, "interrupted")

	buf.Reset()
	monitor.LogMetricsSummary(context.Background())
	assert.Contains(t, buf.String(), "Operation summary")
}

// TestCounters tests the domain counters exposed over HTTP
func TestCounters(t *testing.T) {
	monitor := NewMonitor()

	monitor.CandidatesConsumed.Add(5)
	monitor.Improvements.Add(2)
	monitor.BestSolutionEdges.Set(3)
	monitor.CandidatesPublished.Inc()
	monitor.CandidatesDropped.Inc()

	expected := `
# HELP arcset_best_solution_edges Edge count of the best solution seen so far
# TYPE arcset_best_solution_edges gauge
arcset_best_solution_edges 3
`
	require.NoError(t, testutil.GatherAndCompare(monitor.Registry(), strings.NewReader(expected), "arcset_best_solution_edges"))

	server := httptest.NewServer(monitor.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "arcset_candidates_consumed_total 5")
	assert.Contains(t, string(body), "arcset_improvements_total 2")
	assert.Contains(t, string(body), "arcset_candidates_dropped_total 1")
}
