package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/bebsworthy/arcset/internal/channel"
	"github.com/bebsworthy/arcset/internal/logging"
	"github.com/bebsworthy/arcset/internal/metrics"
	"github.com/bebsworthy/arcset/internal/supervisor"
)

var (
	// Supervise command flags
	metricsAddr string
	history     int
)

// metricsShutdownTimeout bounds the graceful stop of the metrics listener
const metricsShutdownTimeout = 2 * time.Second

// superviseCmd represents the supervise command
var superviseCmd = &cobra.Command{
	Use:   "supervise",
	Short: "Create the channel and collect candidate solutions",
	Long: `Create the shared channel and collect candidate feedback arc sets published
by generators.

Every strict improvement of the best solution is printed. The supervisor stops
when a solution with zero edges arrives (the graph is acyclic) or on SIGINT or
SIGTERM. On stop it raises the terminate flag so that generators exit, then
removes the shared segment and its semaphores.`,
	Example: `  # Start the supervisor, then generators in other shells
  arcset supervise
  arcset generate 1-2 2-3 3-1

  # Use a separate channel and expose metrics
  arcset supervise --channel demo --metrics-addr :9090`,
	Args: noArgs,
	RunE: runSupervise,
}

func init() {
	rootCmd.AddCommand(superviseCmd)

	superviseCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the Prometheus /metrics listener (overrides config)")
	superviseCmd.Flags().IntVar(&history, "history", -1, "number of improvements logged at shutdown (overrides config)")
}

func runSupervise(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if metricsAddr != "" {
		cfg.Metrics.ListenAddr = metricsAddr
	}
	if history >= 0 {
		cfg.Supervisor.History = history
	}

	logger, err := logging.NewSupervisorLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithCorrelationID(ctx, uuid.New().String())
	defer logger.LogTiming(ctx, "supervise", time.Now())

	monitor := metrics.NewMonitor()
	monitor.SetLogger(logger.Logger)

	opts := channel.OptionsFromConfig(cfg.Channel)
	ch, err := channel.Create(opts)
	if err != nil {
		logger.LogError(ctx, "Failed to create channel", err)
		return err
	}
	logger.InfoContext(ctx, "Channel created",
		"name", opts.Name,
		"segment", ch.Paths().Segment,
		"capacity", ch.Capacity(),
		"slot_capacity", ch.SlotCapacity(),
	)

	if cfg.Metrics.ListenAddr != "" {
		shutdown := serveMetrics(ctx, cfg.Metrics.ListenAddr, monitor, logger)
		defer shutdown()
	}

	sup := supervisor.New(ch, supervisor.Options{
		Program: programName,
		History: cfg.Supervisor.History,
		Out:     cmd.OutOrStdout(),
		Logger:  logger,
		Monitor: monitor,
	})

	_, runErr := sup.Run(ctx)
	if runErr != nil {
		logger.LogError(ctx, "Supervisor failed", runErr)
	}

	stats := ch.Stats()
	logger.DebugContext(ctx, "Channel state before shutdown",
		"used", stats.Used,
		"free", stats.Free,
		"write_cursor", stats.WriteCursor,
		"read_cursor", stats.ReadCursor,
	)

	return multierr.Append(runErr, sup.Shutdown(context.WithoutCancel(ctx)))
}

// serveMetrics starts the Prometheus listener and returns its shutdown func
func serveMetrics(ctx context.Context, addr string, monitor *metrics.Monitor, logger *logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitor.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "Metrics listener started", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogError(ctx, "Metrics listener failed", fmt.Errorf("listen on %s: %w", addr, err))
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.LogError(ctx, "Metrics listener shutdown failed", err)
		}
	}
}
