// Package generator implements the worker side of arcset: it repeatedly
// draws random feedback arc sets of one graph and publishes them into the
// shared channel until the supervisor terminates the search.
package generator

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bebsworthy/arcset/internal/errors"
	"github.com/bebsworthy/arcset/internal/graph"
	"github.com/bebsworthy/arcset/internal/logging"
	"github.com/bebsworthy/arcset/internal/metrics"
	"github.com/bebsworthy/arcset/internal/protocol"
)

// Channel is the part of the shared channel a generator drives
type Channel interface {
	Publish(ctx context.Context, edges []protocol.Edge) error
	Terminated() bool
	SlotCapacity() int
}

// Options configure a Generator
type Options struct {
	// InstanceID identifies this worker in logs; generated when empty
	InstanceID string
	// Seed for the heuristic; 0 draws a random one
	Seed uint64
	// Verify checks every candidate against the graph before publishing
	Verify bool
	// PrintCandidates writes every published candidate to Out
	PrintCandidates bool
	// PrintRate caps printed candidates per second; 0 means unlimited
	PrintRate float64
	Out       io.Writer
	Logger    *logging.Logger
	Monitor   *metrics.Monitor
}

// Stats summarize a finished Run
type Stats struct {
	Generated   uint64
	Published   uint64
	Dropped     uint64
	Smallest    uint32
	Interrupted bool
	Duration    time.Duration
}

// Generator publishes candidates for one graph
type Generator struct {
	id        string
	graph     *graph.Graph
	heuristic *graph.Heuristic
	channel   Channel
	verify    bool
	print     bool
	limiter   *rate.Limiter
	out       io.Writer
	logger    *logging.Logger
	monitor   *metrics.Monitor
}

// New creates a generator for g publishing into ch
func New(g *graph.Graph, ch Channel, opts Options) *Generator {
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.New().String()
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

	return &Generator{
		id:        opts.InstanceID,
		graph:     g,
		heuristic: graph.NewHeuristic(g, opts.Seed),
		channel:   ch,
		verify:    opts.Verify,
		print:     opts.PrintCandidates,
		limiter:   newPrintLimiter(opts.PrintRate),
		out:       opts.Out,
		logger:    opts.Logger,
		monitor:   opts.Monitor,
	}
}

func newPrintLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
}

// ID returns the instance id used in logs
func (g *Generator) ID() string {
	return g.id
}

// Run publishes candidates until the channel is terminated or ctx is done.
// Both are normal stops; only channel failures and verification failures
// are returned as errors.
func (g *Generator) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	stats := Stats{Smallest: protocol.InfiniteCount}
	slotCapacity := g.channel.SlotCapacity()

	g.logger.LogAttrs(ctx, slog.LevelInfo, "Generator started",
		slog.Int("nodes", g.graph.NodeCount()),
		slog.Int("edges", g.graph.EdgeCount()),
		slog.Bool("acyclic", g.graph.Acyclic()),
		slog.Int("slot_capacity", slotCapacity),
	)

	finish := func(err error) (Stats, error) {
		stats.Duration = time.Since(start)
		g.logger.LogAttrs(ctx, slog.LevelInfo, "Generator stopped",
			slog.Uint64("generated", stats.Generated),
			slog.Uint64("published", stats.Published),
			slog.Uint64("dropped", stats.Dropped),
			slog.Bool("interrupted", stats.Interrupted),
			slog.Duration("duration", stats.Duration),
		)
		return stats, err
	}

	for !g.channel.Terminated() {
		if ctx.Err() != nil {
			stats.Interrupted = true
			return finish(nil)
		}

		arcs := g.heuristic.Next()
		stats.Generated++

		if g.verify && !g.graph.IsFeedbackArcSet(arcs) {
			err := errors.InternalError(errors.CodeUnknown, "candidate leaves a cycle in the graph", nil).
				WithDetails("order", fmt.Sprint(g.heuristic.Order()))
			g.logger.LogError(ctx, "Candidate verification failed", err)
			return finish(err)
		}

		if len(arcs) > slotCapacity {
			stats.Dropped++
			g.monitor.CandidatesDropped.Inc()
			continue
		}

		candidate := protocol.NewSolution(arcs)
		if g.print && g.limiter.Allow() {
			fmt.Fprintln(g.out, protocol.FormatCandidate(candidate))
		}

		err := g.monitor.TrackOperation(ctx, "publish", func() error {
			return g.channel.Publish(ctx, arcs)
		})
		switch {
		case err == nil:
		case goerrors.Is(err, errors.ErrTerminated):
			return finish(nil)
		case ctx.Err() != nil && goerrors.Is(err, ctx.Err()):
			stats.Interrupted = true
			return finish(nil)
		default:
			g.logger.LogError(ctx, "Failed to publish candidate", err)
			return finish(err)
		}

		stats.Published++
		g.monitor.CandidatesPublished.Inc()
		if candidate.Count < stats.Smallest {
			stats.Smallest = candidate.Count
		}
	}

	return finish(nil)
}
