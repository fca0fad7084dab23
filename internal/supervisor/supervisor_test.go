//go:build unix

package supervisor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/bebsworthy/arcset/internal/channel"
	arcerrors "github.com/bebsworthy/arcset/internal/errors"
	"github.com/bebsworthy/arcset/internal/metrics"
	"github.com/bebsworthy/arcset/internal/protocol"
	"github.com/bebsworthy/arcset/internal/shm"
)

// queueChannel hands out queued solutions, then blocks until ctx is done
type queueChannel struct {
	mu         sync.Mutex
	queue      []protocol.Solution
	consumeErr error

	terminated   bool
	destroyed    bool
	terminateErr error
	destroyErr   error
}

func (q *queueChannel) Consume(ctx context.Context) (protocol.Solution, error) {
	q.mu.Lock()
	if q.consumeErr != nil {
		q.mu.Unlock()
		return protocol.Solution{}, q.consumeErr
	}
	if len(q.queue) > 0 {
		s := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()
		return s, nil
	}
	q.mu.Unlock()

	<-ctx.Done()
	return protocol.Solution{}, ctx.Err()
}

func (q *queueChannel) Terminate() error {
	q.terminated = true
	return q.terminateErr
}

func (q *queueChannel) Destroy() error {
	q.destroyed = true
	return q.destroyErr
}

func solution(pairs ...int32) protocol.Solution {
	edges := make([]protocol.Edge, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		edges = append(edges, protocol.Edge{From: pairs[i], To: pairs[i+1]})
	}
	return protocol.NewSolution(edges)
}

func TestRun_ReportsStrictImprovementsOnly(t *testing.T) {
	ch := &queueChannel{queue: []protocol.Solution{
		solution(1, 2, 2, 3, 3, 1),
		solution(3, 1),
		solution(2, 3, 3, 1),
		solution(1, 2),
	}}

	var out bytes.Buffer
	monitor := metrics.NewMonitor()
	sup := New(ch, Options{Out: &out, Monitor: monitor, History: 4})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	result, err := sup.Run(ctx)
	require.NoError(t, err)

	assert.True(t, result.Interrupted)
	assert.False(t, result.Acyclic)
	assert.Equal(t, uint64(4), result.Consumed)
	assert.Equal(t, uint64(2), result.Improvements)
	assert.Equal(t, uint32(1), result.Best.Count)
	assert.Equal(t, []protocol.Edge{{From: 3, To: 1}}, result.Best.Edges)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"[arcset] Solution with 3 edges: 1-2 2-3 3-1 ",
		"[arcset] Solution with 1 edges: 3-1 ",
	}, lines)

	assert.Equal(t, 4.0, testutil.ToFloat64(monitor.CandidatesConsumed))
	assert.Equal(t, 2.0, testutil.ToFloat64(monitor.Improvements))
	assert.Equal(t, 1.0, testutil.ToFloat64(monitor.BestSolutionEdges))

	history := sup.History().Get(0)
	require.Len(t, history, 2)
	assert.Equal(t, uint32(3), history[0].Solution.Count)
	assert.Equal(t, uint32(1), history[1].Solution.Count)
}

func TestRun_StopsWhenAcyclic(t *testing.T) {
	ch := &queueChannel{queue: []protocol.Solution{
		solution(2, 1),
		protocol.NewSolution(nil),
		solution(1, 2),
	}}

	var out bytes.Buffer
	sup := New(ch, Options{Out: &out})

	result, err := sup.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Acyclic)
	assert.False(t, result.Interrupted)
	assert.Equal(t, uint64(2), result.Consumed)
	assert.Equal(t, uint32(0), result.Best.Count)

	assert.Equal(t,
		"[arcset] Solution with 1 edges: 2-1 \n"+
			"[arcset] Solution with 0 edges: \n"+
			"[arcset] The graph is acyclic!\n",
		out.String())

	// The remaining candidate is never consumed
	assert.Len(t, ch.queue, 1)
}

func TestRun_ProgramPrefix(t *testing.T) {
	ch := &queueChannel{queue: []protocol.Solution{protocol.NewSolution(nil)}}

	var out bytes.Buffer
	_, err := New(ch, Options{Out: &out, Program: "fas"}).Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "[fas] The graph is acyclic!")
}

func TestRun_ConsumeError(t *testing.T) {
	failure := errors.New("mapping gone")
	ch := &queueChannel{consumeErr: failure}

	result, err := New(ch, Options{}).Run(context.Background())
	assert.ErrorIs(t, err, failure)
	assert.False(t, result.Interrupted)
	assert.True(t, result.Best.Infinite())
}

func TestShutdown(t *testing.T) {
	ch := &queueChannel{}
	sup := New(ch, Options{})

	require.NoError(t, sup.Shutdown(context.Background()))
	assert.True(t, ch.terminated)
	assert.True(t, ch.destroyed)
}

func TestShutdown_AttemptsEveryStep(t *testing.T) {
	termErr := errors.New("wake failed")
	segErr := errors.New("segment busy")
	semErr := errors.New("semaphore busy")
	ch := &queueChannel{
		terminateErr: termErr,
		destroyErr:   multierr.Combine(segErr, semErr),
	}

	err := New(ch, Options{}).Shutdown(context.Background())
	require.Error(t, err)
	assert.True(t, ch.destroyed)

	errs := multierr.Errors(err)
	assert.Len(t, errs, 3)
	assert.ErrorIs(t, err, termErr)
	assert.ErrorIs(t, err, segErr)
	assert.ErrorIs(t, err, semErr)
}

// TestRun_SharedChannel drives a real channel of capacity 2 with candidates
// of size 3, 1 and 2: only the first two are reported.
func TestRun_SharedChannel(t *testing.T) {
	opts := channel.DefaultOptions()
	opts.Name = "test-" + uuid.NewString()
	opts.Dir = t.TempDir()
	opts.Capacity = 2
	opts.SlotCapacity = 4
	opts.Wait = shm.WaitConfig{InitialInterval: time.Millisecond, MaxInterval: 10 * time.Millisecond}

	owner, err := channel.Create(opts)
	require.NoError(t, err)

	producer, err := channel.Attach(opts)
	require.NoError(t, err)
	defer producer.Detach()

	var out bytes.Buffer
	monitor := metrics.NewMonitor()
	sup := New(owner, Options{Out: &out, Monitor: monitor})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		result, err := sup.Run(ctx)
		assert.NoError(t, err)
		done <- result
	}()

	candidates := []protocol.Solution{
		solution(1, 2, 2, 3, 3, 1),
		solution(3, 1),
		solution(2, 3, 3, 1),
	}
	for _, c := range candidates {
		require.NoError(t, producer.Publish(context.Background(), c.Edges))
	}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(monitor.CandidatesConsumed) == 3
	}, 5*time.Second, 5*time.Millisecond)
	cancel()

	var result Result
	select {
	case result = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}

	assert.True(t, result.Interrupted)
	assert.Equal(t, uint32(1), result.Best.Count)
	assert.Equal(t,
		"[arcset] Solution with 3 edges: 1-2 2-3 3-1 \n"+
			"[arcset] Solution with 1 edges: 3-1 \n",
		out.String())

	require.NoError(t, sup.Shutdown(context.Background()))
	assert.True(t, producer.Terminated())
	assert.ErrorIs(t, producer.Publish(context.Background(), solution(1, 2).Edges), arcerrors.ErrTerminated)
}
