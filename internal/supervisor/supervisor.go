// Package supervisor implements the aggregating side of arcset: it drains
// candidate solutions from the shared channel, keeps the best one seen so far
// and runs the shutdown protocol once the search is over.
package supervisor

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/bebsworthy/arcset/internal/buffer"
	"github.com/bebsworthy/arcset/internal/logging"
	"github.com/bebsworthy/arcset/internal/metrics"
	"github.com/bebsworthy/arcset/internal/protocol"
)

// Channel is the part of the shared channel the supervisor drives
type Channel interface {
	Consume(ctx context.Context) (protocol.Solution, error)
	Terminate() error
	Destroy() error
}

// Options configure a Supervisor
type Options struct {
	// Program prefixes every console line, e.g. "[arcset]"
	Program string
	// History is the number of improvements kept for the shutdown log
	History int
	// Out receives improvement and acyclic lines
	Out     io.Writer
	Logger  *logging.Logger
	Monitor *metrics.Monitor
}

// Result summarizes a finished Run
type Result struct {
	Best         protocol.Solution
	Consumed     uint64
	Improvements uint64
	Acyclic      bool
	Interrupted  bool
	Duration     time.Duration
}

// Supervisor consumes candidates and tracks the best one
type Supervisor struct {
	channel Channel
	program string
	out     io.Writer
	logger  *logging.Logger
	monitor *metrics.Monitor
	history *buffer.RingBuffer

	best protocol.Solution
}

// New creates a supervisor reading from ch
func New(ch Channel, opts Options) *Supervisor {
	if opts.Program == "" {
		opts.Program = "arcset"
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Monitor == nil {
		opts.Monitor = metrics.NewMonitor()
	}

	return &Supervisor{
		channel: ch,
		program: opts.Program,
		out:     opts.Out,
		logger:  opts.Logger,
		monitor: opts.Monitor,
		history: buffer.NewRingBuffer(opts.History),
		best:    protocol.EmptyBest(),
	}
}

// Best returns a copy of the best solution seen so far
func (s *Supervisor) Best() protocol.Solution {
	return s.best.Clone()
}

// History returns the ring of recorded improvements
func (s *Supervisor) History() *buffer.RingBuffer {
	return s.history
}

// Run consumes candidates until a solution with zero edges arrives or ctx is
// cancelled. Cancellation is a normal stop and is reported through
// Result.Interrupted rather than as an error.
func (s *Supervisor) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	result := Result{}

	s.logger.InfoContext(ctx, "Supervisor waiting for candidates")

	for !s.best.Acyclic() {
		var candidate protocol.Solution
		err := s.monitor.TrackOperation(ctx, "consume", func() error {
			var err error
			candidate, err = s.channel.Consume(ctx)
			return err
		})
		if err != nil {
			if ctx.Err() != nil && goerrors.Is(err, ctx.Err()) {
				result.Interrupted = true
				break
			}
			result.Best = s.Best()
			result.Duration = time.Since(start)
			return result, err
		}

		result.Consumed++
		s.monitor.CandidatesConsumed.Inc()

		if !candidate.BetterThan(s.best) {
			continue
		}

		s.best = candidate.Clone()
		result.Improvements++
		s.monitor.Improvements.Inc()
		s.monitor.BestSolutionEdges.Set(float64(s.best.Count))
		entry := s.history.Add(s.best)

		fmt.Fprintln(s.out, protocol.FormatImprovement(s.program, s.best))
		s.logger.LogAttrs(ctx, slog.LevelDebug, "New best solution",
			slog.Uint64("sequence", entry.Sequence),
			slog.Int("edges", int(s.best.Count)),
			slog.Uint64("consumed", result.Consumed),
		)
	}

	if s.best.Acyclic() {
		result.Acyclic = true
		fmt.Fprintln(s.out, protocol.FormatAcyclic(s.program))
	}

	result.Best = s.Best()
	result.Duration = time.Since(start)

	s.logger.LogAttrs(ctx, slog.LevelInfo, "Supervisor stopped",
		slog.Uint64("consumed", result.Consumed),
		slog.Uint64("improvements", result.Improvements),
		slog.Bool("acyclic", result.Acyclic),
		slog.Bool("interrupted", result.Interrupted),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}

// Shutdown raises the terminate flag, then destroys the channel. Both steps
// are always attempted; every failure is logged and the combined error can
// be split with multierr.Errors.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	var err error

	if termErr := s.channel.Terminate(); termErr != nil {
		s.logger.LogError(ctx, "Failed to terminate channel", termErr)
		err = multierr.Append(err, termErr)
	}

	destroyErr := s.channel.Destroy()
	for _, e := range multierr.Errors(destroyErr) {
		s.logger.LogError(ctx, "Failed to destroy channel object", e)
	}
	err = multierr.Append(err, destroyErr)

	s.logHistory(ctx)
	s.monitor.LogMetricsSummary(ctx)

	return err
}

func (s *Supervisor) logHistory(ctx context.Context) {
	s.logger.InfoContext(ctx, s.history.GetStats().String())
	for _, entry := range s.history.Get(0) {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "Improvement",
			slog.Uint64("sequence", entry.Sequence),
			slog.Int("edges", int(entry.Solution.Count)),
			slog.String("arcs", protocol.FormatEdges(entry.Solution.Edges)),
			slog.Time("at", entry.Timestamp),
		)
	}
}
