package cmd

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/bebsworthy/arcset/internal/channel"
	"github.com/bebsworthy/arcset/internal/generator"
	"github.com/bebsworthy/arcset/internal/graph"
	"github.com/bebsworthy/arcset/internal/logging"
	"github.com/bebsworthy/arcset/internal/metrics"
)

var (
	// Generate command flags
	seed   uint64
	verify bool
	quiet  bool
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate EDGE...",
	Short: "Publish random feedback arc sets of a graph",
	Long: `Attach to the supervisor's channel and publish random feedback arc sets of the
graph given on the command line until the supervisor terminates the search.

Each edge is written as SOURCE-DESTINATION with nonnegative decimal node ids.
Any number of generators may run against the same supervisor.`,
	Example: `  # A 3-cycle
  arcset generate 1-2 2-3 3-1

  # Reproducible candidates, checked before publishing, without console output
  arcset generate --seed 42 --verify --quiet 0-1 1-2 2-0 2-3`,
	Args: cobra.ArbitraryArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().Uint64Var(&seed, "seed", 0, "heuristic seed, 0 draws a random one (overrides config)")
	generateCmd.Flags().BoolVar(&verify, "verify", false, "check every candidate before publishing (overrides config)")
	generateCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print candidates")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	// Arguments are checked before any shared resource is touched
	edges, err := graph.ParseEdges(args)
	if err != nil {
		return err
	}

	cfg := GetConfig()
	if cmd.Flags().Changed("seed") {
		cfg.Generator.Seed = seed
	}
	if cmd.Flags().Changed("verify") {
		cfg.Generator.Verify = verify
	}
	if quiet {
		cfg.Generator.PrintCandidates = false
	}

	instanceID := uuid.New().String()
	logger, err := logging.NewGeneratorLogger(cfg.Logging, instanceID)
	if err != nil {
		return err
	}
	defer logger.Close()
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithCorrelationID(ctx, instanceID)
	defer logger.LogTiming(ctx, "generate", time.Now())

	ch, err := channel.Attach(channel.OptionsFromConfig(cfg.Channel))
	if err != nil {
		logger.LogError(ctx, "Failed to attach to channel", err)
		return err
	}

	monitor := metrics.NewMonitor()
	monitor.SetLogger(logger.Logger)

	gen := generator.New(graph.New(edges), ch, generator.Options{
		InstanceID:      instanceID,
		Seed:            cfg.Generator.Seed,
		Verify:          cfg.Generator.Verify,
		PrintCandidates: cfg.Generator.PrintCandidates,
		PrintRate:       cfg.Generator.PrintRate,
		Out:             cmd.OutOrStdout(),
		Logger:          logger,
		Monitor:         monitor,
	})

	_, runErr := gen.Run(ctx)
	monitor.LogMetricsSummary(ctx)

	return multierr.Append(runErr, ch.Detach())
}
